package envelope_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/arocore/core/common/spec/envelope"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func validEvent() *envelope.Event {
	return &envelope.Event{
		EventID:    "evt_1",
		EventType:  "booking.received",
		OccurredAt: time.Date(2026, 2, 22, 12, 0, 0, 0, time.UTC),
		TenantID:   "tenant-health-1",
		Aggregate:  envelope.Aggregate{Type: "appointment", ID: "apt_1"},
		Payload:    map[string]interface{}{"externalId": "cal_evt_100"},
		Metadata:   envelope.Metadata{CorrelationID: "corr_1"},
	}
}

// ── marshal / unmarshal ───────────────────────────────────────────────────────

func TestEvent_MarshalUnmarshal_Basic(t *testing.T) {
	original := validEvent()

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("json.Marshal: unexpected error: %v", err)
	}

	got, err := envelope.ParseEvent(data)
	if err != nil {
		t.Fatalf("ParseEvent: unexpected error: %v", err)
	}

	if got.EventID != original.EventID {
		t.Errorf("EventID: got %q, want %q", got.EventID, original.EventID)
	}
	if got.EventType != original.EventType {
		t.Errorf("EventType: got %q, want %q", got.EventType, original.EventType)
	}
	if !got.OccurredAt.Equal(original.OccurredAt) {
		t.Errorf("OccurredAt: got %v, want %v", got.OccurredAt, original.OccurredAt)
	}
	if got.Aggregate != original.Aggregate {
		t.Errorf("Aggregate: got %+v, want %+v", got.Aggregate, original.Aggregate)
	}
}

func TestEvent_MarshalUnmarshal_EmptyOptionalFields(t *testing.T) {
	evt := validEvent()
	evt.Profile = ""
	evt.ReplayCursor = ""
	evt.Metadata.WorkflowID = ""
	evt.Metadata.CausationID = ""

	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("json.Marshal: unexpected error: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("json.Unmarshal: unexpected error: %v", err)
	}
	for _, key := range []string{"profile", "replayCursor"} {
		if _, present := raw[key]; present {
			t.Errorf("expected %q to be omitted when empty, but it was present", key)
		}
	}
}

// ── NewEvent ──────────────────────────────────────────────────────────────────

func TestNewEvent_AssignsIDAndTimestamp(t *testing.T) {
	evt := envelope.NewEvent("booking.received", "tenant-health-1",
		envelope.Aggregate{Type: "appointment", ID: "apt_1"},
		map[string]interface{}{"foo": "bar"},
		envelope.Metadata{CorrelationID: "corr_1"})

	if evt.EventID == "" {
		t.Error("NewEvent: expected non-empty EventID")
	}
	if evt.OccurredAt.IsZero() {
		t.Error("NewEvent: expected non-zero OccurredAt")
	}
	if err := evt.Validate(); err != nil {
		t.Errorf("NewEvent: produced invalid event: %v", err)
	}
}

// ── Validate ──────────────────────────────────────────────────────────────────

func TestEvent_Validate_Valid(t *testing.T) {
	if err := validEvent().Validate(); err != nil {
		t.Errorf("Validate: unexpected error: %v", err)
	}
}

func TestEvent_Validate_EmptyEventID(t *testing.T) {
	evt := validEvent()
	evt.EventID = ""
	if err := evt.Validate(); err == nil {
		t.Error("Validate: expected error for empty EventID, got nil")
	}
}

func TestEvent_Validate_EmptyEventType(t *testing.T) {
	evt := validEvent()
	evt.EventType = ""
	if err := evt.Validate(); err == nil {
		t.Error("Validate: expected error for empty EventType, got nil")
	}
}

func TestEvent_Validate_EmptyTenantID(t *testing.T) {
	evt := validEvent()
	evt.TenantID = ""
	if err := evt.Validate(); err == nil {
		t.Error("Validate: expected error for empty TenantID, got nil")
	}
}

func TestEvent_Validate_MissingAggregate(t *testing.T) {
	evt := validEvent()
	evt.Aggregate = envelope.Aggregate{}
	if err := evt.Validate(); err == nil {
		t.Error("Validate: expected error for missing aggregate, got nil")
	}
}

func TestEvent_Validate_ZeroOccurredAt(t *testing.T) {
	evt := validEvent()
	evt.OccurredAt = time.Time{}
	if err := evt.Validate(); err == nil {
		t.Error("Validate: expected error for zero OccurredAt, got nil")
	}
}

func TestEvent_Validate_MissingCorrelationID(t *testing.T) {
	evt := validEvent()
	evt.Metadata.CorrelationID = ""
	if err := evt.Validate(); err == nil {
		t.Error("Validate: expected error for missing correlationId, got nil")
	}
}

func TestEvent_Validate_Nil(t *testing.T) {
	var evt *envelope.Event
	if err := evt.Validate(); err == nil {
		t.Error("Validate: expected error for nil event, got nil")
	}
}

// ── ParseEvent ────────────────────────────────────────────────────────────────

func TestParseEvent_MalformedJSON(t *testing.T) {
	_, err := envelope.ParseEvent([]byte(`{not json`))
	if err == nil {
		t.Error("ParseEvent: expected error for malformed JSON, got nil")
	}
}

func TestParseEvent_MissingTenantID(t *testing.T) {
	data := []byte(`{"eventId":"evt_1","eventType":"booking.received","occurredAt":"2026-02-22T12:00:00Z","aggregate":{"type":"appointment","id":"apt_1"},"metadata":{"correlationId":"corr_1"}}`)
	_, err := envelope.ParseEvent(data)
	if err == nil {
		t.Error("ParseEvent: expected error for missing tenantId, got nil")
	}
}
