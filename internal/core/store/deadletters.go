package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DeadLetter mirrors the dead_letters table: a command that exhausted its
// retry budget and was pulled out of the dispatch queue for operator review.
type DeadLetter struct {
	ID           string
	TenantID     string
	WorkflowID   sql.NullString
	CommandJSON  string
	ErrorMessage string
	Attempts     int
	Archived     bool
	CreatedAt    time.Time
}

// CreateDeadLetter records a command that failed all its retries.
func (s *Store) CreateDeadLetter(ctx context.Context, d *DeadLetter) error {
	d.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (id, tenant_id, workflow_id, command_json, error_message, attempts, archived, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.TenantID, d.WorkflowID, d.CommandJSON, d.ErrorMessage, d.Attempts, d.Archived, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns unarchived dead letters for a tenant, newest first.
func (s *Store) ListDeadLetters(ctx context.Context, tenantID string) ([]*DeadLetter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, workflow_id, command_json, error_message, attempts, archived, created_at
		FROM dead_letters WHERE tenant_id = ? AND archived = 0 ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var out []*DeadLetter
	for rows.Next() {
		d := &DeadLetter{}
		if err := rows.Scan(&d.ID, &d.TenantID, &d.WorkflowID, &d.CommandJSON, &d.ErrorMessage, &d.Attempts, &d.Archived, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}
	return out, nil
}

// ArchiveDeadLetter marks a dead letter as handled by an operator.
func (s *Store) ArchiveDeadLetter(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE dead_letters SET archived = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to archive dead letter: %w", err)
	}
	return nil
}
