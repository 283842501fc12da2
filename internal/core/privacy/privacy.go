// Package privacy implements the GDPR/TCPA operations exposed under
// /v1/privacy/*: recording consent, recording opt-out, exporting a
// customer's data, and deleting it. Every operation is audit-logged.
package privacy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arocore/core/internal/core/audit"
	"github.com/arocore/core/internal/core/store"
)

// DataStore is the subset of store.Store the privacy operations need.
type DataStore interface {
	GetCustomerByPhone(ctx context.Context, tenantID, phone string) (*store.Customer, error)
	CreateCustomer(ctx context.Context, c *store.Customer) error
	GetCustomer(ctx context.Context, id string) (*store.Customer, error)
	UpsertConsent(ctx context.Context, c *store.Consent) error
	GetConsent(ctx context.Context, tenantID, phone string) (*store.Consent, error)
	RecordOptOut(ctx context.Context, tenantID, phone string) error
	ListUpcomingAppointments(ctx context.Context, tenantID string, from, to time.Time) ([]*store.Appointment, error)
	DeleteCustomerData(ctx context.Context, tenantID, customerID string) error
}

// Service implements the four privacy operations.
type Service struct {
	store DataStore
	audit *audit.Log
}

// New builds a privacy Service. a may be nil in tests that don't assert on
// the audit trail.
func New(s DataStore, a *audit.Log) *Service {
	return &Service{store: s, audit: a}
}

// GrantConsentRequest is the body of POST /v1/privacy/consent.
type GrantConsentRequest struct {
	TenantID string `json:"tenantId"`
	Phone    string `json:"phone"`
	Method   string `json:"method"`
	IP       string `json:"ip"`
}

// GrantConsent records that a phone number has consented to outbound
// messaging, creating the customer record lazily if this is their first
// interaction with Core.
func (s *Service) GrantConsent(ctx context.Context, req GrantConsentRequest) error {
	if req.TenantID == "" || req.Phone == "" {
		return fmt.Errorf("privacy: tenantId and phone are required")
	}

	cust, err := s.resolveOrCreateCustomer(ctx, req.TenantID, req.Phone)
	if err != nil {
		return fmt.Errorf("privacy: resolve customer: %w", err)
	}

	now := time.Now()
	c := &store.Consent{
		ID:          uuid.NewString(),
		TenantID:    req.TenantID,
		CustomerID:  cust.ID,
		Phone:       req.Phone,
		Granted:     true,
		GrantedAt:   sql.NullTime{Time: now, Valid: true},
		GrantMethod: nullString(req.Method),
		IPAddress:   nullString(req.IP),
	}
	if err := s.store.UpsertConsent(ctx, c); err != nil {
		return fmt.Errorf("privacy: grant consent: %w", err)
	}

	s.recordAudit(ctx, req.TenantID, "privacy.consent.granted", req.Phone, req, "succeeded", "")
	return nil
}

// OptOutRequest is the body of POST /v1/privacy/opt-out.
type OptOutRequest struct {
	TenantID string `json:"tenantId"`
	Phone    string `json:"phone"`
}

// OptOut records that a phone number has opted out of outbound messaging.
// Per the consent invariant, outbound sends MUST fail-close once recorded.
func (s *Service) OptOut(ctx context.Context, req OptOutRequest) error {
	if req.TenantID == "" || req.Phone == "" {
		return fmt.Errorf("privacy: tenantId and phone are required")
	}

	if err := s.store.RecordOptOut(ctx, req.TenantID, req.Phone); err != nil {
		return fmt.Errorf("privacy: record opt-out: %w", err)
	}

	s.recordAudit(ctx, req.TenantID, "privacy.opt_out.recorded", req.Phone, req, "succeeded", "")
	return nil
}

// ExportResult is the payload returned by GET /v1/privacy/export/:id.
type ExportResult struct {
	Customer     *store.Customer      `json:"customer"`
	Appointments []*store.Appointment `json:"appointments"`
	Consent      *store.Consent       `json:"consent,omitempty"`
}

// Export assembles a customer's full data for a GDPR subject-access request.
func (s *Service) Export(ctx context.Context, tenantID, customerID string) (*ExportResult, error) {
	cust, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("privacy: export: customer lookup: %w", err)
	}

	appts, err := s.store.ListUpcomingAppointments(ctx, tenantID, time.Time{}, time.Now().AddDate(100, 0, 0))
	if err != nil {
		return nil, fmt.Errorf("privacy: export: appointment lookup: %w", err)
	}

	var owned []*store.Appointment
	for _, a := range appts {
		if a.CustomerID == customerID {
			owned = append(owned, a)
		}
	}

	var consent *store.Consent
	if cust.Phone != "" {
		consent, _ = s.store.GetConsent(ctx, tenantID, cust.Phone)
	}

	result := &ExportResult{Customer: cust, Appointments: owned, Consent: consent}
	s.recordAudit(ctx, tenantID, "privacy.export.completed", customerID, nil, "succeeded", "")
	return result, nil
}

// Delete erases a customer's data per a GDPR erasure request, cascading to
// their appointments, reminder logs and consent record.
func (s *Service) Delete(ctx context.Context, tenantID, customerID string) error {
	if err := s.store.DeleteCustomerData(ctx, tenantID, customerID); err != nil {
		s.recordAudit(ctx, tenantID, "privacy.delete.failed", customerID, nil, "failed", err.Error())
		return fmt.Errorf("privacy: delete customer data: %w", err)
	}

	s.recordAudit(ctx, tenantID, "privacy.delete.completed", customerID, nil, "succeeded", "")
	return nil
}

// resolveOrCreateCustomer looks up a customer by phone, creating a bare
// record if none exists yet — consent may be granted before any booking.
func (s *Service) resolveOrCreateCustomer(ctx context.Context, tenantID, phone string) (*store.Customer, error) {
	cust, err := s.store.GetCustomerByPhone(ctx, tenantID, phone)
	if err == nil {
		return cust, nil
	}

	cust = &store.Customer{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		Phone:         phone,
		PaymentStatus: "no_history",
		RiskCategory:  "low",
	}
	if createErr := s.store.CreateCustomer(ctx, cust); createErr != nil {
		return nil, createErr
	}
	return cust, nil
}

func (s *Service) recordAudit(ctx context.Context, tenantID, action, target string, payload interface{}, result, errMsg string) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Write(ctx, audit.Record{
		TraceID:      tenantID,
		Actor:        "privacy-service",
		Action:       action,
		Target:       target,
		Payload:      payload,
		Result:       result,
		ErrorMessage: errMsg,
	}); err != nil {
		// Audit-write failure must not block the privacy operation itself;
		// the caller has already completed the underlying mutation.
		_ = err
	}
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
