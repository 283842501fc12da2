package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Subscription mirrors the subscriptions table: a consumer's cursor into the
// tenant's event stream, with an optional push callback.
type Subscription struct {
	ID          string
	TenantID    string
	CallbackURL sql.NullString
	Cursor      int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateSubscription registers a new subscription starting at cursor 0.
func (s *Store) CreateSubscription(ctx context.Context, sub *Subscription) error {
	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, tenant_id, callback_url, cursor, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sub.ID, sub.TenantID, sub.CallbackURL, sub.Cursor, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// GetSubscription retrieves a subscription by ID.
func (s *Store) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	sub := &Subscription{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, callback_url, cursor, created_at, updated_at
		FROM subscriptions WHERE id = ?
	`, id).Scan(&sub.ID, &sub.TenantID, &sub.CallbackURL, &sub.Cursor, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("subscription not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// AdvanceSubscriptionCursor persists the last cursor a consumer has acked.
func (s *Store) AdvanceSubscriptionCursor(ctx context.Context, id string, cursor int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET cursor = ?, updated_at = ? WHERE id = ?
	`, cursor, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to advance subscription cursor: %w", err)
	}
	return nil
}

// ListSubscriptionsWithCallback returns subscriptions that have a push
// callback configured. No push fan-out loop in the module calls it.
func (s *Store) ListSubscriptionsWithCallback(ctx context.Context, tenantID string) ([]*Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, callback_url, cursor, created_at, updated_at
		FROM subscriptions WHERE tenant_id = ? AND callback_url IS NOT NULL
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*Subscription
	for rows.Next() {
		sub := &Subscription{}
		if err := rows.Scan(&sub.ID, &sub.TenantID, &sub.CallbackURL, &sub.Cursor, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return out, nil
}
