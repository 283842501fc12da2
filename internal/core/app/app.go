// Package app wires the Core Engine's subsystems (store, audit, queue,
// resilience, adapters, notify, privacy, httpapi) into a single running
// process.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arocore/core/common/retry"
	"github.com/arocore/core/internal/core/adapters"
	"github.com/arocore/core/internal/core/audit"
	"github.com/arocore/core/internal/core/executorclient"
	"github.com/arocore/core/internal/core/httpapi"
	"github.com/arocore/core/internal/core/matrix"
	"github.com/arocore/core/internal/core/notify"
	"github.com/arocore/core/internal/core/privacy"
	"github.com/arocore/core/internal/core/queue"
	"github.com/arocore/core/internal/core/resilience"
	"github.com/arocore/core/internal/core/store"
)

// ProviderConfig names the credentials a single provider adapter needs.
// Fields not relevant to a given provider (e.g. FromNumber for Stripe) are
// ignored by that provider's constructor.
type ProviderConfig struct {
	Enabled    bool
	APIKey     string // Stripe secret key / Calendly API token
	AuthToken  string // Twilio auth token
	AccountSID string // Twilio account SID
	FromNumber string // Twilio sending number
	BaseURL    string
	Secret     string // inbound webhook signing secret
}

// Config holds every knob New needs to assemble an App.
type Config struct {
	DatabasePath string
	QueuePath    string
	HTTPAddr     string

	ServiceToken      string
	AdminUsername     string
	AdminPasswordHash string
	AdminTokenTTL     time.Duration
	IdempotencyTTL    time.Duration

	InboundRateLimit  int
	InboundRateWindow time.Duration

	Twilio   ProviderConfig
	Stripe   ProviderConfig
	Calendly ProviderConfig

	Bucket  resilience.BucketConfig
	Circuit resilience.CircuitConfig
	Retry   retry.Config

	Dispatcher queue.DispatcherConfig

	// Matrix is optional; when Homeserver is empty, admin notifications are
	// a no-op rather than posted to a chat room.
	Matrix      matrix.Config
	AdminRoomID string

	// ExecutorURL, ExecutorSharedToken and PermissionManifestVersion
	// configure the HTTP client Core uses to cross into the separate
	// Executor process for every integration.* command, async or
	// synchronous alike.
	ExecutorURL               string
	ExecutorSharedToken       string
	PermissionManifestVersion string
}

// App is the assembled, runnable Core Engine process.
type App struct {
	config *Config

	store      *store.Store
	audit      *audit.Log
	queue      *queue.FileQueue
	dispatcher *queue.Dispatcher
	notifier   notify.Notifier
	matrixCli  *matrix.Client
	privacy    *privacy.Service
	adapters   map[string]*adapters.Wrapped
	executor   *executorclient.Client
	http       *httpapi.Server
}

// New assembles every subsystem. Optional subsystems (Matrix notifications,
// any one provider adapter) degrade to a logged warning and a no-op
// implementation rather than failing the whole process, mirroring how the
// control plane treats its own optional subsystems.
func New(cfg *Config) (*App, error) {
	slog.Info("opening database", "path", cfg.DatabasePath)
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	auditLog := audit.New(st)

	var notifier notify.Notifier = notify.Noop{}
	var matrixCli *matrix.Client
	if cfg.Matrix.Homeserver != "" {
		matrixCli, err = matrix.New(&cfg.Matrix)
		if err != nil {
			slog.Warn("matrix notifier unavailable; admin notifications disabled", "err", err)
		} else if cfg.AdminRoomID != "" {
			notifier = notify.NewMatrixNotifier(matrixCli, cfg.AdminRoomID)
			slog.Info("admin room notifier ready", "room", cfg.AdminRoomID)
		}
	}
	fallbackBridge := notify.NewFallbackBridge(notifier)
	fallbackQueue := resilience.NewFallbackQueue(fallbackBridge)

	wrapCfg := adapters.WrapConfig{
		Bucket:   cfg.Bucket,
		Circuit:  cfg.Circuit,
		Retry:    cfg.Retry,
		Fallback: fallbackQueue,
	}

	wrapped := make(map[string]*adapters.Wrapped)
	if cfg.Twilio.Enabled {
		w := adapters.Wrap(adapters.NewTwilioAdapter(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber, cfg.Twilio.BaseURL), "twilio", wrapCfg)
		w.RestoreColdStart()
		wrapped["twilio"] = w
	} else {
		slog.Warn("twilio adapter not configured; inbound-reply webhook signatures will not be verified")
	}
	if cfg.Stripe.Enabled {
		w := adapters.Wrap(adapters.NewStripeAdapter(cfg.Stripe.APIKey, cfg.Stripe.BaseURL), "stripe", wrapCfg)
		w.RestoreColdStart()
		wrapped["stripe"] = w
	} else {
		slog.Warn("stripe adapter not configured")
	}
	if cfg.Calendly.Enabled {
		w := adapters.Wrap(adapters.NewCalendlyAdapter(cfg.Calendly.APIKey, cfg.Calendly.BaseURL), "calendly", wrapCfg)
		w.RestoreColdStart()
		wrapped["calendly"] = w
	} else {
		slog.Warn("calendly adapter not configured; booking webhooks will be rejected with 503")
	}

	q, err := queue.Open(cfg.QueuePath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("app: open queue: %w", err)
	}

	privacySvc := privacy.New(st, auditLog)

	executor := executorclient.New(executorclient.Config{
		BaseURL:         cfg.ExecutorURL,
		SharedToken:     cfg.ExecutorSharedToken,
		ManifestVersion: cfg.PermissionManifestVersion,
	})
	if cfg.ExecutorURL == "" {
		slog.Warn("no executor URL configured; integration.* commands will fail at dispatch")
	}

	a := &App{
		config:    cfg,
		store:     st,
		audit:     auditLog,
		queue:     q,
		notifier:  notifier,
		matrixCli: matrixCli,
		privacy:   privacySvc,
		adapters:  wrapped,
		executor:  executor,
	}

	sink := &storeDeadLetterSink{store: st}
	a.dispatcher = queue.NewDispatcher(q, a.dispatchCommand, sink, cfg.Dispatcher)

	adapterIface := make(map[string]adapters.Adapter, len(wrapped))
	for name, w := range wrapped {
		adapterIface[name] = w
	}

	httpCfg := httpapi.DefaultConfig
	httpCfg.ServiceToken = cfg.ServiceToken
	httpCfg.AdminUsername = cfg.AdminUsername
	httpCfg.AdminPasswordHash = cfg.AdminPasswordHash
	if cfg.AdminTokenTTL > 0 {
		httpCfg.AdminTokenTTL = cfg.AdminTokenTTL
	}
	if cfg.IdempotencyTTL > 0 {
		httpCfg.IdempotencyTTL = cfg.IdempotencyTTL
	}
	if cfg.InboundRateLimit > 0 {
		httpCfg.InboundRateLimit = cfg.InboundRateLimit
	}
	if cfg.InboundRateWindow > 0 {
		httpCfg.InboundRateWindow = cfg.InboundRateWindow
	}
	httpCfg.WebhookSecrets = map[string]string{
		"twilio":   cfg.Twilio.Secret,
		"stripe":   cfg.Stripe.Secret,
		"calendly": cfg.Calendly.Secret,
	}

	a.http = httpapi.New(cfg.HTTPAddr, httpCfg, httpapi.Deps{
		Store:    st,
		Audit:    auditLog,
		Privacy:  privacySvc,
		Queue:    q,
		Notifier: notifier,
		Adapters: adapterIface,
		Executor: executor,
	})

	return a, nil
}

// Run starts the HTTP server and the queue dispatcher, blocking until an
// interrupt or SIGTERM is received.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.http.Start(ctx); err != nil {
		return fmt.Errorf("app: start http server: %w", err)
	}

	go a.dispatcher.Run(ctx)

	if a.matrixCli != nil {
		for _, roomID := range a.config.Matrix.AdminRooms {
			a.matrixCli.SendNotice(roomID, "Core Engine started.")
		}
	}

	slog.Info("core engine running", "addr", a.config.HTTPAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop gracefully shuts the HTTP server down and closes the store.
func (a *App) Stop() {
	slog.Info("stopping http server")
	a.http.Stop()

	if a.matrixCli != nil {
		a.matrixCli.Stop()
	}

	slog.Info("closing database")
	a.store.Close()
}
