package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Appointment mirrors the appointments table.
type Appointment struct {
	ID                  string
	TenantID            string
	CustomerID          string
	ExternalID          sql.NullString
	ScheduledAt         time.Time
	Timezone            string
	DurationMinutes     int
	ServiceType         sql.NullString
	CostCents           int64
	Status              string
	PreviousStatus      sql.NullString
	Confirmed           bool
	ConfirmedAt         sql.NullTime
	ConfirmationIntent  sql.NullString
	DepositRequired     bool
	DepositAmountCents  int64
	DepositPaid         bool
	DepositPaymentID    sql.NullString
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CreateAppointment inserts a new appointment.
func (s *Store) CreateAppointment(ctx context.Context, a *Appointment) error {
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO appointments (
			id, tenant_id, customer_id, external_id, scheduled_at, timezone,
			duration_minutes, service_type, cost_cents, status, previous_status,
			confirmed, confirmed_at, confirmation_intent, deposit_required,
			deposit_amount_cents, deposit_paid, deposit_payment_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.TenantID, a.CustomerID, a.ExternalID, a.ScheduledAt, a.Timezone,
		a.DurationMinutes, a.ServiceType, a.CostCents, a.Status, a.PreviousStatus,
		a.Confirmed, a.ConfirmedAt, a.ConfirmationIntent, a.DepositRequired,
		a.DepositAmountCents, a.DepositPaid, a.DepositPaymentID, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

const appointmentColumns = `
	id, tenant_id, customer_id, external_id, scheduled_at, timezone,
	duration_minutes, service_type, cost_cents, status, previous_status,
	confirmed, confirmed_at, confirmation_intent, deposit_required,
	deposit_amount_cents, deposit_paid, deposit_payment_id, created_at, updated_at
`

func scanAppointment(row *sql.Row) (*Appointment, error) {
	a := &Appointment{}
	err := row.Scan(
		&a.ID, &a.TenantID, &a.CustomerID, &a.ExternalID, &a.ScheduledAt, &a.Timezone,
		&a.DurationMinutes, &a.ServiceType, &a.CostCents, &a.Status, &a.PreviousStatus,
		&a.Confirmed, &a.ConfirmedAt, &a.ConfirmationIntent, &a.DepositRequired,
		&a.DepositAmountCents, &a.DepositPaid, &a.DepositPaymentID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan appointment: %w", err)
	}
	return a, nil
}

// GetAppointment retrieves an appointment by ID.
func (s *Store) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+appointmentColumns+" FROM appointments WHERE id = ?", id)
	a, err := scanAppointment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("appointment not found: %s", id)
	}
	return a, err
}

// GetAppointmentByExternalID looks up an appointment by tenant and provider-side ID.
func (s *Store) GetAppointmentByExternalID(ctx context.Context, tenantID, externalID string) (*Appointment, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+appointmentColumns+" FROM appointments WHERE tenant_id = ? AND external_id = ?",
		tenantID, externalID)
	a, err := scanAppointment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("appointment not found: tenant=%s external_id=%s", tenantID, externalID)
	}
	return a, err
}

// UpdateAppointmentStatus transitions an appointment to a new status, recording
// the previous one for FSM guard checks and audit purposes.
func (s *Store) UpdateAppointmentStatus(ctx context.Context, id, newStatus string) error {
	current, err := s.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE appointments SET status = ?, previous_status = ?, updated_at = ? WHERE id = ?
	`, newStatus, current.Status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	return nil
}

// ConfirmAppointment records a confirmation with the customer's reply intent.
func (s *Store) ConfirmAppointment(ctx context.Context, id, intent string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE appointments
		SET confirmed = 1, confirmed_at = ?, confirmation_intent = ?, status = 'confirmed',
		    previous_status = status, updated_at = ?
		WHERE id = ?
	`, now, intent, now, id)
	if err != nil {
		return fmt.Errorf("failed to confirm appointment: %w", err)
	}
	return nil
}

// ListUpcomingAppointments returns appointments scheduled within [from, to) for
// a tenant, used by the reminder trigger scan.
func (s *Store) ListUpcomingAppointments(ctx context.Context, tenantID string, from, to time.Time) ([]*Appointment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+appointmentColumns+` FROM appointments
		 WHERE tenant_id = ? AND scheduled_at >= ? AND scheduled_at < ? AND status NOT IN ('cancelled', 'completed', 'no_show')
		 ORDER BY scheduled_at ASC`,
		tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming appointments: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a := &Appointment{}
		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.CustomerID, &a.ExternalID, &a.ScheduledAt, &a.Timezone,
			&a.DurationMinutes, &a.ServiceType, &a.CostCents, &a.Status, &a.PreviousStatus,
			&a.Confirmed, &a.ConfirmedAt, &a.ConfirmationIntent, &a.DepositRequired,
			&a.DepositAmountCents, &a.DepositPaid, &a.DepositPaymentID, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating upcoming appointments: %w", err)
	}
	return out, nil
}
