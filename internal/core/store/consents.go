package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Consent mirrors the consents table, tracking TCPA/GDPR messaging consent
// per customer.
type Consent struct {
	ID          string
	TenantID    string
	CustomerID  string
	Phone       string
	Granted     bool
	GrantedAt   sql.NullTime
	GrantMethod sql.NullString
	OptedOutAt  sql.NullTime
	IPAddress   sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UpsertConsent records or updates a customer's consent state.
func (s *Store) UpsertConsent(ctx context.Context, c *Consent) error {
	now := time.Now()
	c.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consents (id, tenant_id, customer_id, phone, granted, granted_at, grant_method, opted_out_at, ip_address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, phone) DO UPDATE SET
			granted = excluded.granted,
			granted_at = excluded.granted_at,
			grant_method = excluded.grant_method,
			opted_out_at = excluded.opted_out_at,
			ip_address = excluded.ip_address,
			updated_at = excluded.updated_at
	`, c.ID, c.TenantID, c.CustomerID, c.Phone, c.Granted, c.GrantedAt, c.GrantMethod, c.OptedOutAt, c.IPAddress, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert consent: %w", err)
	}
	return nil
}

// GetConsent retrieves a customer's current consent record.
func (s *Store) GetConsent(ctx context.Context, tenantID, phone string) (*Consent, error) {
	c := &Consent{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, customer_id, phone, granted, granted_at, grant_method, opted_out_at, ip_address, created_at, updated_at
		FROM consents WHERE tenant_id = ? AND phone = ?
	`, tenantID, phone).Scan(
		&c.ID, &c.TenantID, &c.CustomerID, &c.Phone, &c.Granted, &c.GrantedAt,
		&c.GrantMethod, &c.OptedOutAt, &c.IPAddress, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("consent not found: tenant=%s phone=%s", tenantID, phone)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}
	return c, nil
}

// RecordOptOut marks a customer as opted out (e.g. on inbound STOP).
func (s *Store) RecordOptOut(ctx context.Context, tenantID, phone string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE consents SET granted = 0, opted_out_at = ?, updated_at = ?
		WHERE tenant_id = ? AND phone = ?
	`, now, now, tenantID, phone)
	if err != nil {
		return fmt.Errorf("failed to record opt-out: %w", err)
	}
	return nil
}

// DeleteCustomerData removes all rows referencing a customer, used by the
// GDPR erasure endpoint. Foreign keys with ON DELETE behaviour are not
// assumed; callers rely on explicit per-table deletes for auditability.
func (s *Store) DeleteCustomerData(ctx context.Context, tenantID, customerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin erasure transaction: %w", err)
	}
	defer tx.Rollback()

	stmts := []struct {
		query string
		args  []interface{}
	}{
		{"DELETE FROM reminder_logs WHERE appointment_id IN (SELECT id FROM appointments WHERE customer_id = ?)", []interface{}{customerID}},
		{"DELETE FROM appointments WHERE tenant_id = ? AND customer_id = ?", []interface{}{tenantID, customerID}},
		{"DELETE FROM consents WHERE tenant_id = ? AND customer_id = ?", []interface{}{tenantID, customerID}},
		{"DELETE FROM customers WHERE tenant_id = ? AND id = ?", []interface{}{tenantID, customerID}},
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return fmt.Errorf("failed to erase customer data: %w", err)
		}
	}

	return tx.Commit()
}
