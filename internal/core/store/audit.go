package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditEntry mirrors the audit_log table. Hash and PrevHash are computed by
// the audit package before the entry reaches the store; the store itself
// never recomputes or validates the chain.
type AuditEntry struct {
	ID           int64
	Timestamp    time.Time
	TraceID      string
	Actor        string
	Action       string
	Target       sql.NullString
	PayloadJSON  sql.NullString
	Result       string
	ErrorMessage sql.NullString
	PrevHash     string
	Hash         string
}

// AppendAuditEntry inserts a pre-hashed audit entry.
func (s *Store) AppendAuditEntry(ctx context.Context, e *AuditEntry) (int64, error) {
	e.Timestamp = time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, trace_id, actor, action, target, payload_json, result, error_message, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Timestamp, e.TraceID, e.Actor, e.Action, e.Target, e.PayloadJSON, e.Result, e.ErrorMessage, e.PrevHash, e.Hash)
	if err != nil {
		return 0, fmt.Errorf("failed to append audit entry: %w", err)
	}
	return res.LastInsertId()
}

// LastAuditHash returns the hash of the most recently appended entry, or the
// empty string if the log is empty (the genesis entry chains off "").
func (s *Store) LastAuditHash(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT hash FROM audit_log ORDER BY id DESC LIMIT 1").Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read last audit hash: %w", err)
	}
	return hash, nil
}

// ListAuditLog returns up to limit audit entries from the start of the log
// (the genesis entry onward), oldest first.
func (s *Store) ListAuditLog(ctx context.Context, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, trace_id, actor, action, target, payload_json, result, error_message, prev_hash, hash
		FROM audit_log ORDER BY id ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		e := &AuditEntry{}
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.TraceID, &e.Actor, &e.Action, &e.Target,
			&e.PayloadJSON, &e.Result, &e.ErrorMessage, &e.PrevHash, &e.Hash); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}
	return out, nil
}

// ListAuditLogByTrace returns all audit entries for a trace ID, ascending.
func (s *Store) ListAuditLogByTrace(ctx context.Context, traceID string) ([]*AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, trace_id, actor, action, target, payload_json, result, error_message, prev_hash, hash
		FROM audit_log WHERE trace_id = ? ORDER BY id ASC
	`, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log by trace: %w", err)
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		e := &AuditEntry{}
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.TraceID, &e.Actor, &e.Action, &e.Target,
			&e.PayloadJSON, &e.Result, &e.ErrorMessage, &e.PrevHash, &e.Hash); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}
	return out, nil
}
