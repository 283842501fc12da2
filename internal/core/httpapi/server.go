// Package httpapi implements the Core Engine's HTTP surface: the /v1/*
// routes described by the command/event/subscription/webhook contract, the
// admin endpoints, and the privacy endpoints, all behind a shared
// request pipeline (rate limit, service auth, correlation id, structured
// logging, error mapping).
package httpapi

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/arocore/core/common/spec/envelope"
	"github.com/arocore/core/internal/core/adapters"
	"github.com/arocore/core/internal/core/audit"
	"github.com/arocore/core/internal/core/notify"
	"github.com/arocore/core/internal/core/privacy"
	"github.com/arocore/core/internal/core/queue"
	"github.com/arocore/core/internal/core/resilience"
	"github.com/arocore/core/internal/core/store"
)

// Store is the subset of *store.Store the HTTP surface reads and writes
// directly. *store.Store satisfies it; handlers depend on the interface so
// httpapi_test.go can supply an in-memory fake.
type Store interface {
	AppendEvent(ctx context.Context, evt envelope.Event) (int64, error)
	ListEventsAfter(ctx context.Context, tenantID string, afterCursor int64, limit int) ([]envelope.Event, error)
	ListEventsByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]envelope.Event, error)

	CreateSubscription(ctx context.Context, sub *store.Subscription) error
	GetSubscription(ctx context.Context, id string) (*store.Subscription, error)
	AdvanceSubscriptionCursor(ctx context.Context, id string, cursor int64) error

	CreateAppointment(ctx context.Context, a *store.Appointment) error
	GetAppointment(ctx context.Context, id string) (*store.Appointment, error)
	GetAppointmentByExternalID(ctx context.Context, tenantID, externalID string) (*store.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id, newStatus string) error
	ConfirmAppointment(ctx context.Context, id, intent string) error
	ListUpcomingAppointments(ctx context.Context, tenantID string, from, to time.Time) ([]*store.Appointment, error)

	GetCustomer(ctx context.Context, id string) (*store.Customer, error)
	GetCustomerByPhone(ctx context.Context, tenantID, phone string) (*store.Customer, error)
	CreateCustomer(ctx context.Context, c *store.Customer) error

	ReserveIdempotencyKey(ctx context.Context, id, tenantID, source, providerEventID string, ttl time.Duration) error
	StoreIdempotentResponse(ctx context.Context, tenantID, source, providerEventID, responseJSON string) error
	GetIdempotentResponse(ctx context.Context, tenantID, source, providerEventID string) (sql.NullString, error)
}

// Config parameterizes the server's auth and pipeline behavior.
type Config struct {
	// ServiceToken is the bearer token tenant-facing integrations present on
	// every /v1/* call except the /v1/admin/* routes, which take the admin
	// token (or no token, for /v1/admin/auth/token).
	ServiceToken string

	// AdminUsername/AdminPasswordHash gate POST /v1/admin/auth/token.
	// AdminPasswordHash is the hex-encoded sha256 of the admin password.
	AdminUsername     string
	AdminPasswordHash string
	AdminTokenTTL     time.Duration

	IdempotencyTTL time.Duration

	InboundRateLimit  int
	InboundRateWindow time.Duration

	DefaultEventsLimit int
	MaxEventsLimit     int

	// WebhookSecrets maps adapter provider name ("twilio", "calendly", ...)
	// to the shared secret used to verify that provider's inbound signature.
	WebhookSecrets map[string]string
}

// webhookSecret returns the configured signing secret for provider, or "".
func (c Config) webhookSecret(provider string) string {
	return c.WebhookSecrets[provider]
}

// DefaultConfig mirrors the request-pipeline defaults from the HTTP surface
// spec: a 100 req/60s inbound bucket keyed by caller, events pages capped
// at 500.
var DefaultConfig = Config{
	AdminTokenTTL:      time.Hour,
	IdempotencyTTL:     24 * time.Hour,
	InboundRateLimit:   100,
	InboundRateWindow:  60 * time.Second,
	DefaultEventsLimit: 100,
	MaxEventsLimit:     500,
}

// Executor is the synchronous half of the Core/Executor split: the one
// webhook handler that cannot wait for the async dispatch worker (inbound
// reply classification must answer within the same HTTP request) calls this
// directly rather than enqueuing.
type Executor interface {
	Execute(ctx context.Context, executionID, tenantID, correlationID, commandType string, payload map[string]interface{}) (*envelope.Event, error)
}

// Deps bundles the subsystems route handlers delegate to.
type Deps struct {
	Store    Store
	Audit    *audit.Log
	Privacy  *privacy.Service
	Queue    *queue.FileQueue
	Notifier notify.Notifier
	Adapters map[string]adapters.Adapter // keyed by provider name, e.g. "twilio"
	Executor Executor
}

// Server is the Core Engine HTTP server. It implements http.Handler
// directly so it is testable with httptest.NewRecorder without binding a
// real listener.
type Server struct {
	cfg  Config
	deps Deps

	inbound *resilience.InboundLimiter
	mux     *http.ServeMux
	server  *http.Server

	tokenMu sync.Mutex
	tokens  map[string]time.Time // admin bearer token -> expiry
}

// New builds a Server wired to deps.
func New(addr string, cfg Config, deps Deps) *Server {
	if cfg.InboundRateLimit <= 0 {
		cfg.InboundRateLimit = DefaultConfig.InboundRateLimit
	}
	if cfg.InboundRateWindow <= 0 {
		cfg.InboundRateWindow = DefaultConfig.InboundRateWindow
	}
	if cfg.DefaultEventsLimit <= 0 {
		cfg.DefaultEventsLimit = DefaultConfig.DefaultEventsLimit
	}
	if cfg.MaxEventsLimit <= 0 {
		cfg.MaxEventsLimit = DefaultConfig.MaxEventsLimit
	}
	if cfg.AdminTokenTTL <= 0 {
		cfg.AdminTokenTTL = DefaultConfig.AdminTokenTTL
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = DefaultConfig.IdempotencyTTL
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		inbound: resilience.NewInboundLimiter(cfg.InboundRateLimit, cfg.InboundRateWindow),
		tokens:  make(map[string]time.Time),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	mux.Handle("POST /v1/commands", s.pipeline(s.handleCommands, authService))
	mux.Handle("GET /v1/events", s.pipeline(s.handleListEvents, authService))
	mux.Handle("POST /v1/subscriptions", s.pipeline(s.handleCreateSubscription, authService))
	mux.Handle("POST /v1/subscriptions/{id}/replay", s.pipeline(s.handleReplaySubscription, authService))
	mux.Handle("POST /v1/webhooks/booking", s.pipeline(s.handleBookingWebhook, authService))
	mux.Handle("POST /v1/webhooks/inbound-reply", s.pipeline(s.handleInboundReply, authService))

	mux.Handle("POST /v1/admin/auth/token", s.pipeline(s.handleAdminAuthToken, authNone))
	mux.Handle("GET /v1/admin/audit/logs", s.pipeline(s.handleAdminAuditLogs, authAdmin))
	mux.Handle("POST /v1/admin/manual-overrides", s.pipeline(s.handleManualOverride, authAdmin))

	mux.Handle("POST /v1/privacy/consent", s.pipeline(s.handleGrantConsent, authService))
	mux.Handle("POST /v1/privacy/opt-out", s.pipeline(s.handleOptOut, authService))
	mux.Handle("GET /v1/privacy/export/{customerId}", s.pipeline(s.handleExport, authService))
	mux.Handle("POST /v1/privacy/delete", s.pipeline(s.handleDelete, authService))

	s.mux = mux
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// ServeHTTP delegates to the internal mux; the server itself performs no
// pipeline work outside what each registered route already wraps.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start binds the listener and serves in the background. It returns once
// the listener is bound so callers can start issuing requests immediately.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen %s: %w", s.server.Addr, err)
	}
	slog.Info("httpapi: listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("httpapi: server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
