package app

import (
	"context"
	"fmt"

	"github.com/arocore/core/common/spec/envelope"
)

// dispatchCommand is the queue.Handler the Dispatcher drains ready entries
// through. It never performs a side effect itself: it crosses the process
// boundary into the Executor over HTTP and records whatever canonical event
// comes back, succeeded or failed alike. executionID is the ID assigned when
// the command was first accepted (at POST /v1/commands, or at
// webhook-triggered enqueue time), carried unchanged across dispatch
// retries so the Executor's idempotency store recognizes a redelivered
// command as the same execution rather than a new one.
func (a *App) dispatchCommand(ctx context.Context, cmd envelope.Command, headers envelope.CommandHeaders, executionID string) error {
	if !cmd.IsIntegration() {
		return fmt.Errorf("app: no dispatcher registered for command type %q", cmd.CommandType)
	}
	if a.executor == nil {
		return fmt.Errorf("app: no executor configured for command type %q", cmd.CommandType)
	}

	evt, err := a.executor.Execute(ctx, executionID, headers.TenantID, headers.CorrelationID, cmd.CommandType, cmd.Payload)
	if err != nil {
		return fmt.Errorf("app: dispatch %s to executor: %w", cmd.CommandType, err)
	}

	_, appendErr := a.store.AppendEvent(ctx, *evt)
	return appendErr
}
