package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arocore/core/common/spec/envelope"
	"github.com/arocore/core/common/trace"
)

// apiError is the error type route handlers return. The pipeline maps it to
// an envelope.ErrorEnvelope with the given status; any other error maps to
// a 500 INTERNAL_ERROR so handler bugs never leak internals to callers.
type apiError struct {
	status     int
	code       string
	message    string
	retryAfter int
}

func (e *apiError) Error() string { return e.message }

func newAPIError(status int, code, message string) *apiError {
	return &apiError{status: status, code: code, message: message}
}

func badRequest(message string) *apiError {
	return newAPIError(http.StatusBadRequest, envelope.CodeValidationError, message)
}

func notFound(code, message string) *apiError {
	return newAPIError(http.StatusNotFound, code, message)
}

func internalError(err error) *apiError {
	return newAPIError(http.StatusInternalServerError, envelope.CodeInternalError, err.Error())
}

// apiHandler is a route handler that reports failure via error rather than
// writing an error response itself; the pipeline performs the mapping so
// every route gets identical error-envelope behavior.
type apiHandler func(w http.ResponseWriter, r *http.Request) error

// authMode selects which auth stage a route requires.
type authMode int

const (
	authNone authMode = iota
	authService
	authAdmin
)

// pipeline wraps h with the request pipeline: inbound rate limit, auth,
// correlation id, structured logging and error mapping. Stage order follows
// the HTTP surface's documented request pipeline.
func (s *Server) pipeline(h apiHandler, mode authMode) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		callerKey := callerIdentity(r)
		if !s.inbound.Allow(callerKey) {
			w.Header().Set("Retry-After", "60")
			writeEnvelopeError(w, http.StatusTooManyRequests,
				envelope.NewErrorEnvelope(envelope.CodeRateLimitExceeded, "rate limit exceeded").WithRetryAfter(60))
			return
		}

		if apiErr := s.authenticate(r, mode); apiErr != nil {
			writeAPIError(w, apiErr)
			return
		}

		correlationID := r.Header.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = trace.GenerateID()
		}
		ctx := trace.WithTraceID(r.Context(), correlationID)
		r = r.WithContext(ctx)
		w.Header().Set("X-Correlation-Id", correlationID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		err := h(rec, r)
		duration := time.Since(start)

		if err != nil {
			var apiErr *apiError
			if !errors.As(err, &apiErr) {
				apiErr = internalError(err)
			}
			slog.Warn("httpapi: request failed",
				"method", r.Method, "path", r.URL.Path, "correlationId", correlationID,
				"status", apiErr.status, "code", apiErr.code, "err", apiErr.message, "durationMs", duration.Milliseconds())
			writeAPIError(rec, apiErr)
			return
		}

		slog.Info("httpapi: request completed",
			"method", r.Method, "path", r.URL.Path, "correlationId", correlationID,
			"status", rec.status, "durationMs", duration.Milliseconds())
	})
}

// authenticate checks the auth stage appropriate for mode. Service auth is a
// single shared bearer token (tenant identity travels in X-Tenant-Id and is
// validated per-route); admin auth is a short-lived bearer token minted by
// POST /v1/admin/auth/token.
func (s *Server) authenticate(r *http.Request, mode authMode) *apiError {
	if mode == authNone {
		return nil
	}

	token := bearerToken(r)
	if token == "" {
		return newAPIError(http.StatusUnauthorized, envelope.CodeUnauthorized, "missing bearer token")
	}

	switch mode {
	case authService:
		if s.cfg.ServiceToken == "" || !constantTimeEqual(token, s.cfg.ServiceToken) {
			return newAPIError(http.StatusUnauthorized, envelope.CodeUnauthorized, "invalid service token")
		}
		if r.Header.Get("X-Tenant-Id") == "" {
			return newAPIError(http.StatusBadRequest, envelope.CodeTenantHeaderRequired, "missing X-Tenant-Id header")
		}
	case authAdmin:
		if !s.validAdminToken(token) {
			return newAPIError(http.StatusUnauthorized, envelope.CodeUnauthorized, "invalid or expired admin token")
		}
	}
	return nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// callerIdentity is the key the inbound rate limiter buckets on: the
// left-most X-Forwarded-For entry, or "local" when absent.
func callerIdentity(r *http.Request) string {
	fwd := r.Header.Get("X-Forwarded-For")
	if fwd == "" {
		return "local"
	}
	if idx := strings.Index(fwd, ","); idx >= 0 {
		fwd = fwd[:idx]
	}
	return strings.TrimSpace(fwd)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func writeAPIError(w http.ResponseWriter, e *apiError) {
	env := envelope.NewErrorEnvelope(e.code, e.message)
	if e.retryAfter > 0 {
		env = env.WithRetryAfter(e.retryAfter)
	}
	writeEnvelopeError(w, e.status, env)
}

func writeEnvelopeError(w http.ResponseWriter, status int, env envelope.ErrorEnvelope) {
	writeJSON(w, status, env)
}

func decodeJSON(r *http.Request, v interface{}) *apiError {
	if r.Body == nil {
		return badRequest("request body is required")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
