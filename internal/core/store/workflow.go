package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// WorkflowInstance mirrors the workflow_instances table.
type WorkflowInstance struct {
	ID            string
	TenantID      string
	AggregateType string
	AggregateID   string
	Name          string
	Version       int
	State         string
	StateDataJSON sql.NullString
	RetryCount    int
	MaxRetries    int
	LastError     sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const workflowColumns = `
	id, tenant_id, aggregate_type, aggregate_id, name, version, state,
	state_data_json, retry_count, max_retries, last_error, created_at, updated_at
`

func scanWorkflow(row *sql.Row) (*WorkflowInstance, error) {
	w := &WorkflowInstance{}
	err := row.Scan(&w.ID, &w.TenantID, &w.AggregateType, &w.AggregateID, &w.Name, &w.Version,
		&w.State, &w.StateDataJSON, &w.RetryCount, &w.MaxRetries, &w.LastError, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
	}
	return w, nil
}

// CreateWorkflowInstance inserts a new workflow instance in PENDING state.
func (s *Store) CreateWorkflowInstance(ctx context.Context, w *WorkflowInstance) error {
	now := time.Now()
	w.CreatedAt = now
	w.UpdatedAt = now
	if w.State == "" {
		w.State = "PENDING"
	}
	if w.MaxRetries == 0 {
		w.MaxRetries = 3
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_instances (
			id, tenant_id, aggregate_type, aggregate_id, name, version, state,
			state_data_json, retry_count, max_retries, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.TenantID, w.AggregateType, w.AggregateID, w.Name, w.Version, w.State,
		w.StateDataJSON, w.RetryCount, w.MaxRetries, w.LastError, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workflow instance: %w", err)
	}
	return nil
}

// GetWorkflowInstance retrieves a workflow instance by ID.
func (s *Store) GetWorkflowInstance(ctx context.Context, id string) (*WorkflowInstance, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+workflowColumns+" FROM workflow_instances WHERE id = ?", id)
	w, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workflow instance not found: %s", id)
	}
	return w, err
}

// UpdateWorkflowState transitions a workflow instance to a new state,
// persisting its state data and optionally an error message.
func (s *Store) UpdateWorkflowState(ctx context.Context, id, state string, stateData sql.NullString, lastErr sql.NullString) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE workflow_instances SET state = ?, state_data_json = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, state, stateData, lastErr, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update workflow state: %w", err)
	}
	return nil
}

// IncrementWorkflowRetry bumps the retry counter, used when entering RETRYING.
func (s *Store) IncrementWorkflowRetry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE workflow_instances SET retry_count = retry_count + 1, updated_at = ? WHERE id = ?
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to increment workflow retry count: %w", err)
	}
	return nil
}

// ListWorkflowsByState returns all workflow instances currently in the given state.
func (s *Store) ListWorkflowsByState(ctx context.Context, state string) ([]*WorkflowInstance, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+workflowColumns+" FROM workflow_instances WHERE state = ? ORDER BY updated_at ASC", state)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow instances by state: %w", err)
	}
	defer rows.Close()

	var out []*WorkflowInstance
	for rows.Next() {
		w := &WorkflowInstance{}
		if err := rows.Scan(&w.ID, &w.TenantID, &w.AggregateType, &w.AggregateID, &w.Name, &w.Version,
			&w.State, &w.StateDataJSON, &w.RetryCount, &w.MaxRetries, &w.LastError, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow instances: %w", err)
	}
	return out, nil
}
