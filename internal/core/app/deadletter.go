package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/arocore/core/common/spec/envelope"
	"github.com/arocore/core/internal/core/store"
)

// storeDeadLetterSink adapts store.Store's concrete CreateDeadLetter to the
// queue.DeadLetterSink interface the dispatcher expects.
type storeDeadLetterSink struct {
	store *store.Store
}

func (s *storeDeadLetterSink) DeadLetter(ctx context.Context, tenantID string, cmd envelope.Command, errMsg string, attempts int) error {
	cmdJSON, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("app: marshal dead-lettered command: %w", err)
	}
	return s.store.CreateDeadLetter(ctx, &store.DeadLetter{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		CommandJSON:  string(cmdJSON),
		ErrorMessage: errMsg,
		Attempts:     attempts,
	})
}
