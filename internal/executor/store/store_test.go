package store_test

import (
	"path/filepath"
	"testing"

	"github.com/arocore/core/common/spec/envelope"
	"github.com/arocore/core/internal/executor/store"
)

func TestIdempotencyStore_PutThenGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idempotency.json")
	s, err := store.OpenIdempotencyStore(path)
	if err != nil {
		t.Fatalf("OpenIdempotencyStore: %v", err)
	}

	evt := envelope.NewEvent("executor.command.succeeded", "tenant-a",
		envelope.Aggregate{Type: "execution", ID: "exec-1"}, nil, envelope.Metadata{CorrelationID: "corr-1"})

	if err := s.Put("exec-1", evt); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := s.Get("exec-1")
	if !ok {
		t.Fatal("expected exec-1 to be present")
	}
	if got.EventID != evt.EventID {
		t.Fatalf("expected %s, got %s", evt.EventID, got.EventID)
	}

	if _, ok := s.Get("exec-unknown"); ok {
		t.Fatal("expected exec-unknown to be absent")
	}
}

func TestIdempotencyStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idempotency.json")

	s, err := store.OpenIdempotencyStore(path)
	if err != nil {
		t.Fatalf("OpenIdempotencyStore: %v", err)
	}
	evt := envelope.NewEvent("executor.command.succeeded", "tenant-a",
		envelope.Aggregate{Type: "execution", ID: "exec-1"}, nil, envelope.Metadata{CorrelationID: "corr-1"})
	if err := s.Put("exec-1", evt); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reopened, err := store.OpenIdempotencyStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.Get("exec-1")
	if !ok {
		t.Fatal("expected exec-1 to survive reopen")
	}
	if got.EventID != evt.EventID {
		t.Fatalf("expected %s, got %s", evt.EventID, got.EventID)
	}
}

func TestOutbox_AppendAccumulatesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.json")
	o, err := store.OpenOutbox(path)
	if err != nil {
		t.Fatalf("OpenOutbox: %v", err)
	}

	first := envelope.NewEvent("executor.command.succeeded", "tenant-a", envelope.Aggregate{Type: "execution", ID: "exec-1"}, nil, envelope.Metadata{CorrelationID: "corr-1"})
	second := envelope.NewEvent("executor.command.failed", "tenant-a", envelope.Aggregate{Type: "execution", ID: "exec-2"}, nil, envelope.Metadata{CorrelationID: "corr-2"})

	if err := o.Append(first); err != nil {
		t.Fatalf("Append first: %v", err)
	}
	if err := o.Append(second); err != nil {
		t.Fatalf("Append second: %v", err)
	}

	entries := o.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].EventID != first.EventID || entries[1].EventID != second.EventID {
		t.Fatal("expected entries in append order")
	}
}

func TestOutbox_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "outbox.json")

	o, err := store.OpenOutbox(path)
	if err != nil {
		t.Fatalf("OpenOutbox: %v", err)
	}
	evt := envelope.NewEvent("executor.command.succeeded", "tenant-a", envelope.Aggregate{Type: "execution", ID: "exec-1"}, nil, envelope.Metadata{CorrelationID: "corr-1"})
	if err := o.Append(evt); err != nil {
		t.Fatalf("Append: %v", err)
	}

	reopened, err := store.OpenOutbox(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if entries := reopened.Entries(); len(entries) != 1 || entries[0].EventID != evt.EventID {
		t.Fatalf("expected outbox to survive reopen, got %+v", entries)
	}
}
