package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ErrDuplicateIdempotencyKey is returned by ReserveIdempotencyKey when the
// (tenant, source, provider_event_id) tuple has already been recorded.
var ErrDuplicateIdempotencyKey = fmt.Errorf("idempotency key already reserved")

// ReserveIdempotencyKey attempts to claim a (tenant, source, provider event ID)
// tuple. Callers must perform this before processing an inbound webhook or
// command so retried deliveries are no-ops. ttl controls how long the
// reservation (and its cached response) remains valid.
func (s *Store) ReserveIdempotencyKey(ctx context.Context, id, tenantID, source, providerEventID string, ttl time.Duration) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (id, tenant_id, source, provider_event_id, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, tenantID, source, providerEventID, now, now.Add(ttl))
	if err != nil {
		if isUniqueConstraintErr(err) {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	return nil
}

// StoreIdempotentResponse caches the response JSON produced for a reserved key
// so a retried delivery can be answered without reprocessing.
func (s *Store) StoreIdempotentResponse(ctx context.Context, tenantID, source, providerEventID, responseJSON string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_keys SET response_json = ?
		WHERE tenant_id = ? AND source = ? AND provider_event_id = ?
	`, responseJSON, tenantID, source, providerEventID)
	if err != nil {
		return fmt.Errorf("failed to store idempotent response: %w", err)
	}
	return nil
}

// GetIdempotentResponse returns the cached response for a tuple, if any.
func (s *Store) GetIdempotentResponse(ctx context.Context, tenantID, source, providerEventID string) (sql.NullString, error) {
	var resp sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT response_json FROM idempotency_keys
		WHERE tenant_id = ? AND source = ? AND provider_event_id = ?
	`, tenantID, source, providerEventID).Scan(&resp)
	if err == sql.ErrNoRows {
		return sql.NullString{}, nil
	}
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to get idempotent response: %w", err)
	}
	return resp, nil
}

// PruneExpiredIdempotencyKeys deletes reservations past their TTL. Nothing in
// the module calls it on a schedule; expired rows remain until a caller runs it.
func (s *Store) PruneExpiredIdempotencyKeys(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM idempotency_keys WHERE expires_at < ?", time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to prune idempotency keys: %w", err)
	}
	return res.RowsAffected()
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite reports constraint violations via a message
	// containing "UNIQUE constraint failed"; it does not expose a typed
	// sentinel for this driver.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
