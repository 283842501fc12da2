// Package envelope defines the canonical wire contracts shared between Core
// and Executor: the command envelope accepted on POST /v1/commands, the
// canonical event envelope appended to the event stream and returned to
// subscribers, and the error envelope returned by every HTTP endpoint.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Aggregate identifies the conceptual root entity (typically an appointment)
// whose events share an ordering partition.
type Aggregate struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Metadata carries correlation and workflow linkage for an event.
type Metadata struct {
	WorkflowID    string `json:"workflowId,omitempty"`
	CorrelationID string `json:"correlationId"`
	CausationID   string `json:"causationId,omitempty"`
}

// Event is the canonical envelope appended to the event stream. It is the
// only shape Core ever persists or emits, regardless of which adapter or
// runtime produced it.
type Event struct {
	EventID      string                 `json:"eventId"`
	EventType    string                 `json:"eventType"`
	OccurredAt   time.Time              `json:"occurredAt"`
	TenantID     string                 `json:"tenantId"`
	Profile      string                 `json:"profile,omitempty"`
	Aggregate    Aggregate              `json:"aggregate"`
	Payload      map[string]interface{} `json:"payload"`
	Metadata     Metadata               `json:"metadata"`
	ReplayCursor string                 `json:"replayCursor,omitempty"`
}

// NewEvent builds an Event with a fresh eventId and OccurredAt=now. The
// caller assigns ReplayCursor once the event has been given a position in
// the store; it is left empty here.
func NewEvent(eventType, tenantID string, aggregate Aggregate, payload map[string]interface{}, meta Metadata) Event {
	return Event{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		TenantID:   tenantID,
		Aggregate:  aggregate,
		Payload:    payload,
		Metadata:   meta,
	}
}

// Validate checks that an Event is structurally valid before it is appended
// to the stream.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("event must not be nil")
	}
	if e.EventID == "" {
		return fmt.Errorf("eventId must not be empty")
	}
	if e.EventType == "" {
		return fmt.Errorf("eventType must not be empty")
	}
	if e.TenantID == "" {
		return fmt.Errorf("tenantId must not be empty")
	}
	if e.Aggregate.Type == "" || e.Aggregate.ID == "" {
		return fmt.Errorf("aggregate.type and aggregate.id must not be empty")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurredAt must not be zero")
	}
	if e.Metadata.CorrelationID == "" {
		return fmt.Errorf("metadata.correlationId must not be empty")
	}
	return nil
}

// ParseEvent decodes a JSON-encoded Event and validates it.
func ParseEvent(data []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("envelope parse: %w", err)
	}
	if err := evt.Validate(); err != nil {
		return nil, fmt.Errorf("envelope validate: %w", err)
	}
	return &evt, nil
}
