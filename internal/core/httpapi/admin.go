package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/arocore/core/common/spec/envelope"
	"github.com/arocore/core/internal/core/audit"
	"github.com/arocore/core/internal/core/workflow"
)

type adminAuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type adminAuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleAdminAuthToken serves POST /v1/admin/auth/token: exchanges a
// configured admin username/password for a short-lived bearer token.
func (s *Server) handleAdminAuthToken(w http.ResponseWriter, r *http.Request) error {
	var req adminAuthRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		return apiErr
	}

	if s.cfg.AdminUsername == "" || !constantTimeEqual(req.Username, s.cfg.AdminUsername) ||
		!constantTimeEqual(hashPassword(req.Password), s.cfg.AdminPasswordHash) {
		return newAPIError(http.StatusUnauthorized, envelope.CodeUnauthorized, "invalid admin credentials")
	}

	token := s.issueAdminToken()
	writeJSON(w, http.StatusOK, adminAuthResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(s.cfg.AdminTokenTTL),
	})
	return nil
}

func (s *Server) issueAdminToken() string {
	buf := make([]byte, 24)
	_, _ = rand.Read(buf)
	token := hex.EncodeToString(buf)

	s.tokenMu.Lock()
	s.tokens[token] = time.Now().Add(s.cfg.AdminTokenTTL)
	s.tokenMu.Unlock()
	return token
}

func (s *Server) validAdminToken(token string) bool {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	expiry, ok := s.tokens[token]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(s.tokens, token)
		return false
	}
	return true
}

type auditLogEntry struct {
	ID           int64  `json:"id"`
	TraceID      string `json:"traceId"`
	Actor        string `json:"actor"`
	Action       string `json:"action"`
	Target       string `json:"target,omitempty"`
	Result       string `json:"result"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type auditLogResponse struct {
	Entries     []auditLogEntry `json:"entries"`
	ChainIntact bool            `json:"chainIntact"`
}

// handleAdminAuditLogs serves GET /v1/admin/audit/logs?limit=..., verifying
// the hash chain over the returned window so operators immediately see if
// tampering occurred.
func (s *Server) handleAdminAuditLogs(w http.ResponseWriter, r *http.Request) error {
	if s.deps.Audit == nil {
		return newAPIError(http.StatusServiceUnavailable, envelope.CodeServiceUnavailable, "audit log not configured")
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return badRequest("limit must be an integer")
		}
		limit = parsed
	}

	entries, err := s.deps.Audit.Recent(r.Context(), limit)
	if err != nil {
		return internalError(err)
	}

	ok, _ := audit.VerifyChain(entries)

	resp := auditLogResponse{ChainIntact: ok}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, auditLogEntry{
			ID:           e.ID,
			TraceID:      e.TraceID,
			Actor:        e.Actor,
			Action:       e.Action,
			Target:       e.Target.String,
			Result:       e.Result,
			ErrorMessage: e.ErrorMessage.String,
		})
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

type manualOverrideRequest struct {
	TenantID      string `json:"tenantId"`
	AppointmentID string `json:"appointmentId"`
	ToStatus      string `json:"toStatus"`
	Actor         string `json:"actor"`
	Reason        string `json:"reason"`
}

// handleManualOverride serves POST /v1/admin/manual-overrides: an operator
// forcing an appointment transition outside the normal event-driven flow.
// Guardrail (1)/(2) still applies — actor="system" may not drive a
// cancellation or charge transition, even through this endpoint.
func (s *Server) handleManualOverride(w http.ResponseWriter, r *http.Request) error {
	var req manualOverrideRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		return apiErr
	}
	if req.TenantID == "" || req.AppointmentID == "" || req.ToStatus == "" || req.Actor == "" {
		return badRequest("tenantId, appointmentId, toStatus and actor are required")
	}

	ctx := r.Context()
	appt, err := s.deps.Store.GetAppointment(ctx, req.AppointmentID)
	if err != nil {
		return notFound(envelope.CodeAppointmentNotFound, "appointment not found")
	}

	from := workflow.AppointmentStatus(appt.Status)
	to := workflow.AppointmentStatus(req.ToStatus)

	if err := workflow.TransitionAppointment(from, to, req.Actor); err != nil {
		s.recordOverrideAudit(ctx, req, "failed", err.Error())
		return badRequest(err.Error())
	}

	if err := s.deps.Store.UpdateAppointmentStatus(ctx, appt.ID, string(to)); err != nil {
		s.recordOverrideAudit(ctx, req, "failed", err.Error())
		return internalError(err)
	}

	_, _ = s.deps.Store.AppendEvent(ctx, envelope.NewEvent(
		"appointment.manual_override",
		req.TenantID,
		envelope.Aggregate{Type: "appointment", ID: appt.ID},
		map[string]interface{}{"from": string(from), "to": string(to), "actor": req.Actor, "reason": req.Reason},
		envelope.Metadata{},
	))

	s.recordOverrideAudit(ctx, req, "succeeded", "")
	writeJSON(w, http.StatusOK, map[string]string{"appointmentId": appt.ID, "status": string(to)})
	return nil
}

func (s *Server) recordOverrideAudit(ctx context.Context, req manualOverrideRequest, result, errMsg string) {
	if s.deps.Audit == nil {
		return
	}
	_, _ = s.deps.Audit.Write(ctx, audit.Record{
		TraceID:      req.TenantID,
		Actor:        req.Actor,
		Action:       "admin.manual_override",
		Target:       req.AppointmentID,
		Payload:      req,
		Result:       result,
		ErrorMessage: errMsg,
	})
}
