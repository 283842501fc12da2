// Package server implements the Executor's HTTP surface: a single
// POST /v1/executions endpoint guarded by the admission pipeline, backed
// by an idempotency store and an outbox, and dispatching to whichever
// runtime.Runtime mode is configured.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/arocore/core/common/spec/envelope"
	"github.com/arocore/core/common/spec/executor"
	"github.com/arocore/core/internal/executor/runtime"
	"github.com/arocore/core/internal/executor/store"
)

// tenantRateWindow is the fixed window the per-tenant rate limit is
// measured over; spec.md expresses the limit as "N per minute".
const tenantRateWindow = time.Minute

// Config parameterizes the Executor HTTP server.
type Config struct {
	InvokeTimeout time.Duration
}

// Server is the Executor's HTTP server.
type Server struct {
	cfg       Config
	admission *Admission
	runtime   runtime.Runtime
	idemp     *store.IdempotencyStore
	outbox    *store.Outbox

	mux    *http.ServeMux
	server *http.Server
}

// New builds a Server listening on addr.
func New(addr string, cfg Config, admission *Admission, rt runtime.Runtime, idemp *store.IdempotencyStore, outbox *store.Outbox) *Server {
	if cfg.InvokeTimeout <= 0 {
		cfg.InvokeTimeout = 30 * time.Second
	}

	s := &Server{
		cfg:       cfg,
		admission: admission,
		runtime:   rt,
		idemp:     idemp,
		outbox:    outbox,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/executions", s.handleExecutions)
	s.mux = mux

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// ServeHTTP delegates to the internal mux; Server implements http.Handler
// directly so it is testable with httptest.NewRecorder without binding a
// real listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start binds the listener and serves in the background, returning once
// the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("executor server: listen %s: %w", s.server.Addr, err)
	}
	slog.Info("executor: listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("executor: server error", "err", err)
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

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleExecutions implements the admission-then-idempotency-then-invoke
// flow. A duplicate executionId returns the stored result without invoking
// the runtime again; otherwise the runtime is invoked, the result is
// appended to the outbox, then stored in the idempotency map, and only then
// returned to the caller -- in that order, so a crash between invocation
// and response never loses the record of what happened.
func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	var cmd executor.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, envelope.CodeValidationError, "invalid JSON body: "+err.Error())
		return
	}
	if err := cmd.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, envelope.CodeValidationError, err.Error())
		return
	}

	if admErr := s.admission.Check(bearerToken(r), r.Header.Get("X-Tenant-Id"), cmd); admErr != nil {
		writeError(w, admErr.status, admErr.code, admErr.message)
		return
	}

	if evt, ok := s.idemp.Get(cmd.ExecutionID); ok {
		writeJSON(w, http.StatusOK, evt)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.InvokeTimeout)
	defer cancel()

	result, err := s.runtime.Invoke(ctx, runtime.Invocation{
		ExecutionID:   cmd.ExecutionID,
		TenantID:      cmd.TenantID,
		CorrelationID: cmd.CorrelationID,
		CommandType:   cmd.CommandType,
		Payload:       cmd.Payload,
		Timeout:       s.cfg.InvokeTimeout,
	})

	var evt envelope.Event
	if err != nil {
		slog.Warn("executor: invocation failed", "executionId", cmd.ExecutionID, "err", err)
		evt = executor.NewFailureEvent(cmd, runtimeModeOf(result), err.Error())
	} else {
		evt = executor.NewResultEvent(cmd, result.RuntimeMode, result.Output)
	}

	if err := s.outbox.Append(evt); err != nil {
		slog.Error("executor: outbox append failed", "executionId", cmd.ExecutionID, "err", err)
		writeError(w, http.StatusInternalServerError, envelope.CodeInternalError, "failed to record result")
		return
	}
	if err := s.idemp.Put(cmd.ExecutionID, evt); err != nil {
		slog.Error("executor: idempotency store failed", "executionId", cmd.ExecutionID, "err", err)
		writeError(w, http.StatusInternalServerError, envelope.CodeInternalError, "failed to record result")
		return
	}

	writeJSON(w, http.StatusOK, evt)
}

func runtimeModeOf(result *runtime.Result) string {
	if result == nil {
		return ""
	}
	return result.RuntimeMode
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope.NewErrorEnvelope(code, message))
}
