package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Customer mirrors the customers table.
type Customer struct {
	ID                  string
	TenantID            string
	Phone               string
	Email               sql.NullString
	Name                sql.NullString
	NoShowCount         int
	RescheduleCount     int
	CancelCount         int
	ConfirmationRate    float64
	LifetimeValueCents  int64
	PaymentStatus       string
	RiskScore           int
	RiskCategory        string
	RequiresDeposit     bool
	Timezone            sql.NullString
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CreateCustomer inserts a new customer.
func (s *Store) CreateCustomer(ctx context.Context, c *Customer) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (
			id, tenant_id, phone, email, name, no_show_count, reschedule_count,
			cancel_count, confirmation_rate, lifetime_value_cents, payment_status,
			risk_score, risk_category, requires_deposit, timezone, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.TenantID, c.Phone, c.Email, c.Name, c.NoShowCount, c.RescheduleCount,
		c.CancelCount, c.ConfirmationRate, c.LifetimeValueCents, c.PaymentStatus,
		c.RiskScore, c.RiskCategory, c.RequiresDeposit, c.Timezone, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetCustomer retrieves a customer by ID.
func (s *Store) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	c := &Customer{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, phone, email, name, no_show_count, reschedule_count,
		       cancel_count, confirmation_rate, lifetime_value_cents, payment_status,
		       risk_score, risk_category, requires_deposit, timezone, created_at, updated_at
		FROM customers WHERE id = ?
	`, id).Scan(
		&c.ID, &c.TenantID, &c.Phone, &c.Email, &c.Name, &c.NoShowCount, &c.RescheduleCount,
		&c.CancelCount, &c.ConfirmationRate, &c.LifetimeValueCents, &c.PaymentStatus,
		&c.RiskScore, &c.RiskCategory, &c.RequiresDeposit, &c.Timezone, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("customer not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// GetCustomerByPhone looks up a customer by tenant and phone number.
func (s *Store) GetCustomerByPhone(ctx context.Context, tenantID, phone string) (*Customer, error) {
	c := &Customer{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, phone, email, name, no_show_count, reschedule_count,
		       cancel_count, confirmation_rate, lifetime_value_cents, payment_status,
		       risk_score, risk_category, requires_deposit, timezone, created_at, updated_at
		FROM customers WHERE tenant_id = ? AND phone = ?
	`, tenantID, phone).Scan(
		&c.ID, &c.TenantID, &c.Phone, &c.Email, &c.Name, &c.NoShowCount, &c.RescheduleCount,
		&c.CancelCount, &c.ConfirmationRate, &c.LifetimeValueCents, &c.PaymentStatus,
		&c.RiskScore, &c.RiskCategory, &c.RequiresDeposit, &c.Timezone, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("customer not found: tenant=%s phone=%s", tenantID, phone)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer by phone: %w", err)
	}
	return c, nil
}

// UpdateCustomerRisk persists a recomputed risk score/category/deposit requirement.
func (s *Store) UpdateCustomerRisk(ctx context.Context, id string, score int, category string, requiresDeposit bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE customers SET risk_score = ?, risk_category = ?, requires_deposit = ?, updated_at = ?
		WHERE id = ?
	`, score, category, requiresDeposit, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update customer risk: %w", err)
	}
	return nil
}

// IncrementCustomerCounter bumps one of the behavioural counters used by the
// risk-score formula (no_show_count, reschedule_count, cancel_count).
func (s *Store) IncrementCustomerCounter(ctx context.Context, id, column string) error {
	switch column {
	case "no_show_count", "reschedule_count", "cancel_count":
	default:
		return fmt.Errorf("invalid counter column: %s", column)
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE customers SET %s = %s + 1, updated_at = ? WHERE id = ?", column, column),
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to increment customer counter %s: %w", column, err)
	}
	return nil
}
