package main

import (
	"fmt"
	"os"
	"time"

	"github.com/arocore/core/common/environment"
	"github.com/arocore/core/common/retry"
	"github.com/arocore/core/common/version"
	"github.com/arocore/core/internal/core/app"
	"github.com/arocore/core/internal/core/resilience"
	"github.com/arocore/core/internal/core/matrix"
)

func main() {
	fmt.Printf("ARO Core Engine %s (%s) built at %s\n", version.Version, version.GitCommit, version.BuildTime)

	cfg := loadConfig()

	if cfg.ServiceToken == "" {
		fmt.Fprintln(os.Stderr, "Error: CORE_SERVICE_TOKEN is required")
		os.Exit(1)
	}

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Core Engine: %v\n", err)
		os.Exit(1)
	}
	defer a.Stop()

	if err := a.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Core Engine: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() *app.Config {
	adminRooms := environment.StringSliceOr("MATRIX_ADMIN_ROOMS", nil)

	return &app.Config{
		DatabasePath: environment.StringOr("DATABASE_PATH", "./core.db"),
		QueuePath:    environment.StringOr("QUEUE_PATH", "./core-queue.json"),
		HTTPAddr:     environment.StringOr("HTTP_ADDR", ":8080"),

		ServiceToken:      environment.StringOr("CORE_SERVICE_TOKEN", ""),
		AdminUsername:     environment.StringOr("CORE_ADMIN_USERNAME", ""),
		AdminPasswordHash: environment.StringOr("CORE_ADMIN_PASSWORD_HASH", ""),
		AdminTokenTTL:     environment.DurationOr("CORE_ADMIN_TOKEN_TTL", 0),
		IdempotencyTTL:    environment.DurationOr("CORE_IDEMPOTENCY_TTL", 0),

		InboundRateLimit:  environment.IntOr("CORE_INBOUND_RATE_LIMIT", 0),
		InboundRateWindow: environment.DurationOr("CORE_INBOUND_RATE_WINDOW", 0),

		Twilio: app.ProviderConfig{
			Enabled:    environment.BoolOr("TWILIO_ENABLE", false),
			AccountSID: environment.StringOr("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  environment.StringOr("TWILIO_AUTH_TOKEN", ""),
			FromNumber: environment.StringOr("TWILIO_FROM_NUMBER", ""),
			BaseURL:    environment.StringOr("TWILIO_BASE_URL", ""),
			Secret:     environment.StringOr("TWILIO_WEBHOOK_SECRET", ""),
		},
		Stripe: app.ProviderConfig{
			Enabled: environment.BoolOr("STRIPE_ENABLE", false),
			APIKey:  environment.StringOr("STRIPE_SECRET_KEY", ""),
			BaseURL: environment.StringOr("STRIPE_BASE_URL", ""),
			Secret:  environment.StringOr("STRIPE_WEBHOOK_SECRET", ""),
		},
		Calendly: app.ProviderConfig{
			Enabled: environment.BoolOr("CALENDLY_ENABLE", false),
			APIKey:  environment.StringOr("CALENDLY_API_TOKEN", ""),
			BaseURL: environment.StringOr("CALENDLY_BASE_URL", ""),
			Secret:  environment.StringOr("CALENDLY_WEBHOOK_SECRET", ""),
		},

		Bucket: resilience.BucketConfig{
			Requests: environment.IntOr("OUTBOUND_BUCKET_REQUESTS", 10),
			Period:   environment.DurationOr("OUTBOUND_BUCKET_PERIOD", time.Second),
			Burst:    environment.IntOr("OUTBOUND_BUCKET_BURST", 5),
		},
		Circuit: resilience.CircuitConfig{
			FailureThreshold: environment.IntOr("CIRCUIT_FAILURE_THRESHOLD", 0),
			SuccessThreshold: environment.IntOr("CIRCUIT_SUCCESS_THRESHOLD", 0),
			Timeout:          environment.DurationOr("CIRCUIT_TIMEOUT", 0),
			MonitoringPeriod: environment.DurationOr("CIRCUIT_MONITORING_PERIOD", 0),
		},
		Retry: retry.Config{
			MaxAttempts:  environment.IntOr("OUTBOUND_RETRY_MAX_ATTEMPTS", 3),
			InitialDelay: environment.DurationOr("OUTBOUND_RETRY_INITIAL_DELAY", 0),
			MaxDelay:     environment.DurationOr("OUTBOUND_RETRY_MAX_DELAY", 0),
		},

		Matrix: matrix.Config{
			Homeserver:  environment.StringOr("MATRIX_HOMESERVER", ""),
			UserID:      environment.StringOr("MATRIX_USER_ID", ""),
			AccessToken: environment.StringOr("MATRIX_ACCESS_TOKEN", ""),
			AdminRooms:  adminRooms,
		},
		AdminRoomID: environment.StringOr("MATRIX_AUDIT_ROOM_ID", ""),

		ExecutorURL:               environment.StringOr("OPENCLAW_EXECUTOR_URL", ""),
		ExecutorSharedToken:       environment.StringOr("OPENCLAW_SHARED_TOKEN", ""),
		PermissionManifestVersion: environment.StringOr("OPENCLAW_PERMISSION_MANIFEST_VERSION", "v1"),
	}
}
