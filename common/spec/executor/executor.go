// Package executor defines the wire contract between Core and the Executor
// service: the command Core sends to POST /v1/executions, and the canonical
// result event Executor returns (and appends to its outbox).
package executor

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/arocore/core/common/spec/envelope"
)

// Command is the body of Core's POST /v1/executions call.
type Command struct {
	ExecutionID               string                 `json:"executionId"`
	TenantID                  string                 `json:"tenantId"`
	CorrelationID             string                 `json:"correlationId"`
	CommandType               string                 `json:"commandType"`
	AuthorizedByCore          bool                   `json:"authorizedByCore"`
	PermissionManifestVersion string                 `json:"permissionManifestVersion"`
	Payload                   map[string]interface{} `json:"payload"`
}

// NewCommand builds a Command with a fresh executionId and
// authorizedByCore=true, as only Core is permitted to construct one.
func NewCommand(tenantID, correlationID, commandType, manifestVersion string, payload map[string]interface{}) Command {
	return Command{
		ExecutionID:               uuid.NewString(),
		TenantID:                  tenantID,
		CorrelationID:             correlationID,
		CommandType:               commandType,
		AuthorizedByCore:          true,
		PermissionManifestVersion: manifestVersion,
		Payload:                   payload,
	}
}

// Validate checks structural validity of an executor command.
func (c Command) Validate() error {
	if c.ExecutionID == "" {
		return fmt.Errorf("executionId must not be empty")
	}
	if c.TenantID == "" {
		return fmt.Errorf("tenantId must not be empty")
	}
	if c.CorrelationID == "" {
		return fmt.Errorf("correlationId must not be empty")
	}
	if c.CommandType == "" {
		return fmt.Errorf("commandType must not be empty")
	}
	if !c.AuthorizedByCore {
		return fmt.Errorf("authorizedByCore must be true")
	}
	return nil
}

// Status values for a result event's payload.status field.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Event types emitted by the Executor.
const (
	EventTypeSucceeded = "executor.command.succeeded"
	EventTypeFailed    = "executor.command.failed"
)

// NewResultEvent builds the canonical event envelope Executor appends to its
// outbox and returns to Core for a successful execution.
func NewResultEvent(cmd Command, runtimeMode string, output map[string]interface{}) envelope.Event {
	payload := map[string]interface{}{
		"acknowledgedCommandType": cmd.CommandType,
		"openclawRuntimeMode":     runtimeMode,
		"status":                  StatusSucceeded,
	}
	for k, v := range output {
		payload[k] = v
	}
	return envelope.NewEvent(EventTypeSucceeded, cmd.TenantID,
		envelope.Aggregate{Type: "execution", ID: cmd.ExecutionID}, payload,
		envelope.Metadata{CorrelationID: cmd.CorrelationID})
}

// NewFailureEvent builds the canonical event envelope for a failed execution.
func NewFailureEvent(cmd Command, runtimeMode, reason string) envelope.Event {
	payload := map[string]interface{}{
		"acknowledgedCommandType": cmd.CommandType,
		"openclawRuntimeMode":     runtimeMode,
		"status":                  StatusFailed,
		"reason":                  reason,
	}
	evt := envelope.NewEvent(EventTypeFailed, cmd.TenantID, envelope.Aggregate{Type: "execution", ID: cmd.ExecutionID}, payload, envelope.Metadata{CorrelationID: cmd.CorrelationID})
	return evt
}
