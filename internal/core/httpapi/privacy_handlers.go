package httpapi

import (
	"net/http"

	"github.com/arocore/core/common/spec/envelope"
	"github.com/arocore/core/internal/core/privacy"
)

func (s *Server) requirePrivacyService() *apiError {
	if s.deps.Privacy == nil {
		return newAPIError(http.StatusServiceUnavailable, envelope.CodeServiceUnavailable, "privacy service not configured")
	}
	return nil
}

// handleGrantConsent serves POST /v1/privacy/consent.
func (s *Server) handleGrantConsent(w http.ResponseWriter, r *http.Request) error {
	if apiErr := s.requirePrivacyService(); apiErr != nil {
		return apiErr
	}
	var req privacy.GrantConsentRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		return apiErr
	}
	if req.IP == "" {
		req.IP = callerIdentity(r)
	}
	if err := s.deps.Privacy.GrantConsent(r.Context(), req); err != nil {
		return internalError(err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
	return nil
}

// handleOptOut serves POST /v1/privacy/opt-out.
func (s *Server) handleOptOut(w http.ResponseWriter, r *http.Request) error {
	if apiErr := s.requirePrivacyService(); apiErr != nil {
		return apiErr
	}
	var req privacy.OptOutRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		return apiErr
	}
	if err := s.deps.Privacy.OptOut(r.Context(), req); err != nil {
		return internalError(err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "opted_out"})
	return nil
}

// handleExport serves GET /v1/privacy/export/{customerId}.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) error {
	if apiErr := s.requirePrivacyService(); apiErr != nil {
		return apiErr
	}
	tenantID := r.Header.Get("X-Tenant-Id")
	customerID := r.PathValue("customerId")
	if tenantID == "" || customerID == "" {
		return badRequest("X-Tenant-Id header and customerId path segment are required")
	}

	result, err := s.deps.Privacy.Export(r.Context(), tenantID, customerID)
	if err != nil {
		return internalError(err)
	}
	writeJSON(w, http.StatusOK, result)
	return nil
}

type privacyDeleteRequest struct {
	TenantID   string `json:"tenantId"`
	CustomerID string `json:"customerId"`
}

// handleDelete serves POST /v1/privacy/delete.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) error {
	if apiErr := s.requirePrivacyService(); apiErr != nil {
		return apiErr
	}
	var req privacyDeleteRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		return apiErr
	}
	if req.TenantID == "" || req.CustomerID == "" {
		return badRequest("tenantId and customerId are required")
	}
	if err := s.deps.Privacy.Delete(r.Context(), req.TenantID, req.CustomerID); err != nil {
		return internalError(err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	return nil
}
