package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/arocore/core/common/spec/envelope"
)

// AppendEvent persists a canonical event and assigns it a replay cursor.
// The cursor is the table's autoincrement rowid, giving a tenant-global
// monotonic ordering callers can resume streaming from.
func (s *Store) AppendEvent(ctx context.Context, evt envelope.Event) (int64, error) {
	payloadJSON, err := json.Marshal(evt.Payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	var profile sql.NullString
	if evt.Profile != "" {
		profile = sql.NullString{String: evt.Profile, Valid: true}
	}
	var workflowID sql.NullString
	if evt.Metadata.WorkflowID != "" {
		workflowID = sql.NullString{String: evt.Metadata.WorkflowID, Valid: true}
	}
	var causationID sql.NullString
	if evt.Metadata.CausationID != "" {
		causationID = sql.NullString{String: evt.Metadata.CausationID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (
			event_id, event_type, occurred_at, tenant_id, profile,
			aggregate_type, aggregate_id, payload_json, workflow_id,
			correlation_id, causation_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, evt.EventID, evt.EventType, evt.OccurredAt, evt.TenantID, profile,
		evt.Aggregate.Type, evt.Aggregate.ID, string(payloadJSON), workflowID,
		evt.Metadata.CorrelationID, causationID)
	if err != nil {
		return 0, fmt.Errorf("failed to append event: %w", err)
	}

	cursor, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read event cursor: %w", err)
	}
	return cursor, nil
}

func scanEventRow(rows *sql.Rows) (envelope.Event, int64, error) {
	var (
		cursor        int64
		eventID       string
		eventType     string
		occurredAt    sql.NullTime
		tenantID      string
		profile       sql.NullString
		aggType       string
		aggID         string
		payloadJSON   string
		workflowID    sql.NullString
		correlationID string
		causationID   sql.NullString
	)
	if err := rows.Scan(&cursor, &eventID, &eventType, &occurredAt, &tenantID, &profile,
		&aggType, &aggID, &payloadJSON, &workflowID, &correlationID, &causationID); err != nil {
		return envelope.Event{}, 0, fmt.Errorf("failed to scan event: %w", err)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return envelope.Event{}, 0, fmt.Errorf("failed to unmarshal event payload: %w", err)
	}

	evt := envelope.Event{
		EventID:    eventID,
		EventType:  eventType,
		OccurredAt: occurredAt.Time,
		TenantID:   tenantID,
		Profile:    profile.String,
		Aggregate:  envelope.Aggregate{Type: aggType, ID: aggID},
		Payload:    payload,
		Metadata: envelope.Metadata{
			WorkflowID:    workflowID.String,
			CorrelationID: correlationID,
			CausationID:   causationID.String,
		},
		ReplayCursor: strconv.FormatInt(cursor, 10),
	}
	return evt, cursor, nil
}

// ListEventsAfter returns up to limit events for tenantID with a replay cursor
// greater than afterCursor, ordered ascending. Callers must clamp limit
// themselves; this method applies no implicit cap.
func (s *Store) ListEventsAfter(ctx context.Context, tenantID string, afterCursor int64, limit int) ([]envelope.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT replay_cursor, event_id, event_type, occurred_at, tenant_id, profile,
		       aggregate_type, aggregate_id, payload_json, workflow_id, correlation_id, causation_id
		FROM events
		WHERE tenant_id = ? AND replay_cursor > ?
		ORDER BY replay_cursor ASC
		LIMIT ?
	`, tenantID, afterCursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []envelope.Event
	for rows.Next() {
		evt, _, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return out, nil
}

// ListEventsByAggregate returns all events recorded for a given aggregate,
// ascending by replay cursor, used when replaying a workflow instance.
func (s *Store) ListEventsByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]envelope.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT replay_cursor, event_id, event_type, occurred_at, tenant_id, profile,
		       aggregate_type, aggregate_id, payload_json, workflow_id, correlation_id, causation_id
		FROM events
		WHERE aggregate_type = ? AND aggregate_id = ?
		ORDER BY replay_cursor ASC
	`, aggregateType, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by aggregate: %w", err)
	}
	defer rows.Close()

	var out []envelope.Event
	for rows.Next() {
		evt, _, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return out, nil
}
