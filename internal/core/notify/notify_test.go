package notify_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/arocore/core/internal/core/notify"
	"github.com/arocore/core/internal/core/resilience"
)

type fakeSender struct {
	roomID  string
	message string
	err     error
}

func (f *fakeSender) SendNotice(roomID, message string) error {
	f.roomID = roomID
	f.message = message
	return f.err
}

func TestMatrixNotifier_FormatsAndSendsNotice(t *testing.T) {
	sender := &fakeSender{}
	n := notify.NewMatrixNotifier(sender, "!admin:example.org")

	n.Notify(context.Background(), notify.Event{
		Kind:     notify.KindMessageCapHit,
		TenantID: "tenant-a",
		Target:   "cust-1",
		Message:  "message cap exceeded",
	})

	if sender.roomID != "!admin:example.org" {
		t.Fatalf("expected notice sent to admin room, got %q", sender.roomID)
	}
	if sender.message == "" {
		t.Fatal("expected a formatted message")
	}
}

func TestMatrixNotifier_SkipsWhenRoomIDEmpty(t *testing.T) {
	sender := &fakeSender{}
	n := notify.NewMatrixNotifier(sender, "")

	n.Notify(context.Background(), notify.Event{Kind: notify.KindDeadLettered})

	if sender.message != "" {
		t.Fatal("expected no notice sent when roomID is empty")
	}
}

func TestNoop_DoesNothing(t *testing.T) {
	var n notify.Notifier = notify.Noop{}
	n.Notify(context.Background(), notify.Event{Kind: notify.KindCircuitOpen})
}

type recordingNotifier struct {
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, evt notify.Event) {
	r.events = append(r.events, evt)
}

func TestFallbackBridge_ForwardsFallbackDeferralsAsEvents(t *testing.T) {
	rec := &recordingNotifier{}
	bridge := notify.NewFallbackBridge(rec)

	bridge.NotifyFallback(resilience.FallbackEntry{
		ID:           "cmd-1",
		Domain:       "twilio",
		ScheduledFor: time.Now().Add(60 * time.Second),
		Reason:       "circuit_open",
	})

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	if rec.events[0].Domain != "twilio" || rec.events[0].Target != "cmd-1" {
		t.Fatalf("unexpected event: %+v", rec.events[0])
	}
	if got := fmt.Sprint(rec.events[0].Message); got == "" {
		t.Fatal("expected a non-empty message")
	}
}
