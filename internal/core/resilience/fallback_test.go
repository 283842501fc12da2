package resilience_test

import (
	"testing"
	"time"

	"github.com/arocore/core/internal/core/resilience"
)

type fakeNotifier struct {
	notified []resilience.FallbackEntry
}

func (f *fakeNotifier) NotifyFallback(entry resilience.FallbackEntry) {
	f.notified = append(f.notified, entry)
}

func TestFallbackQueue_DeferNotifiesAdmin(t *testing.T) {
	notifier := &fakeNotifier{}
	q := resilience.NewFallbackQueue(notifier)

	q.Defer(resilience.FallbackEntry{ID: "evt-1", Domain: "messaging", ScheduledFor: time.Now().Add(time.Hour), Reason: "circuit_open"})

	if len(notifier.notified) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.notified))
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 queued entry, got %d", q.Len())
	}
}

func TestFallbackQueue_ReadyReturnsOnlyElapsedEntries(t *testing.T) {
	q := resilience.NewFallbackQueue(nil)
	past := resilience.FallbackEntry{ID: "evt-1", ScheduledFor: time.Now().Add(-time.Minute)}
	future := resilience.FallbackEntry{ID: "evt-2", ScheduledFor: time.Now().Add(time.Hour)}
	q.Defer(past)
	q.Defer(future)

	ready := q.Ready(time.Now())
	if len(ready) != 1 || ready[0].ID != "evt-1" {
		t.Fatalf("expected only evt-1 ready, got %+v", ready)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 entry remaining, got %d", q.Len())
	}
}
