package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ReminderLog mirrors the reminder_logs table.
type ReminderLog struct {
	ID                string
	AppointmentID     string
	SentAt            time.Time
	Kind              string
	Channel           string
	ProviderMessageID sql.NullString
	Delivered         bool
	Read              bool
	CreatedAt         time.Time
}

// CreateReminderLog records that a reminder was dispatched for an appointment.
func (s *Store) CreateReminderLog(ctx context.Context, r *ReminderLog) error {
	r.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminder_logs (id, appointment_id, sent_at, kind, channel, provider_message_id, delivered, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.AppointmentID, r.SentAt, r.Kind, r.Channel, r.ProviderMessageID, r.Delivered, r.Read, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create reminder log: %w", err)
	}
	return nil
}

// CountRemindersSince returns how many reminders were sent to the appointment's
// customer across all of the tenant's appointments within the given window,
// used to enforce the per-customer message cap.
func (s *Store) CountRemindersSince(ctx context.Context, customerID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reminder_logs
		JOIN appointments ON appointments.id = reminder_logs.appointment_id
		WHERE appointments.customer_id = ? AND reminder_logs.sent_at >= ?
	`, customerID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reminders: %w", err)
	}
	return count, nil
}

// MarkReminderDelivered updates delivery status once the provider confirms it.
func (s *Store) MarkReminderDelivered(ctx context.Context, providerMessageID string, delivered bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reminder_logs SET delivered = ? WHERE provider_message_id = ?
	`, delivered, providerMessageID)
	if err != nil {
		return fmt.Errorf("failed to mark reminder delivered: %w", err)
	}
	return nil
}
