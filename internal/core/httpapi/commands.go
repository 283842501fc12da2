package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/arocore/core/common/spec/envelope"
)

type commandResponse struct {
	Status         string `json:"status"`
	ExecutionID    string `json:"executionId,omitempty"`
	DispatchStatus string `json:"dispatchStatus,omitempty"`
}

// handleCommands accepts POST /v1/commands: validates the body and required
// headers, reserves the idempotency key so a retried delivery is a no-op,
// durably enqueues the command, and appends a command.accepted event.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) error {
	var cmd envelope.Command
	if apiErr := decodeJSON(r, &cmd); apiErr != nil {
		return apiErr
	}
	if err := cmd.Validate(); err != nil {
		return badRequest(err.Error())
	}

	headers := envelope.CommandHeaders{
		TenantID:       r.Header.Get("X-Tenant-Id"),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		CorrelationID:  r.Header.Get("X-Correlation-Id"),
	}
	if err := headers.Validate(); err != nil {
		return badRequest(err.Error())
	}

	ctx := r.Context()
	commandID := uuid.NewString()

	reserveErr := s.deps.Store.ReserveIdempotencyKey(ctx, commandID, headers.TenantID, "commands", headers.IdempotencyKey, s.cfg.IdempotencyTTL)
	if reserveErr != nil {
		cached, getErr := s.deps.Store.GetIdempotentResponse(ctx, headers.TenantID, "commands", headers.IdempotencyKey)
		if getErr == nil && cached.Valid {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(cached.String))
			return nil
		}
		// Reservation failed for a reason other than a duplicate key we can
		// serve from cache; fail closed rather than risk double dispatch.
		return internalError(fmt.Errorf("idempotency reservation: %w", reserveErr))
	}

	resp := commandResponse{Status: "accepted"}

	if cmd.IsIntegration() {
		executionID := uuid.NewString()
		if s.deps.Queue != nil {
			entry, err := s.deps.Queue.Enqueue(cmd, headers, 0)
			if err != nil {
				return internalError(fmt.Errorf("enqueue command: %w", err))
			}
			executionID = entry.ExecutionID
		}
		resp.ExecutionID = executionID
		resp.DispatchStatus = "enqueued"
	} else if s.deps.Queue != nil {
		if _, err := s.deps.Queue.Enqueue(cmd, headers, 0); err != nil {
			return internalError(fmt.Errorf("enqueue command: %w", err))
		}
	}

	_, _ = s.deps.Store.AppendEvent(ctx, envelope.NewEvent(
		"command.accepted",
		headers.TenantID,
		envelope.Aggregate{Type: "command", ID: commandID},
		map[string]interface{}{"commandType": cmd.CommandType, "executionId": resp.ExecutionID},
		envelope.Metadata{CorrelationID: headers.CorrelationID},
	))

	if respJSON, err := json.Marshal(resp); err == nil {
		_ = s.deps.Store.StoreIdempotentResponse(ctx, headers.TenantID, "commands", headers.IdempotencyKey, string(respJSON))
	}
	writeJSON(w, http.StatusAccepted, resp)
	return nil
}
