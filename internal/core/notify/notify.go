// Package notify implements the admin notification channel: fallback-queue
// deferrals, exhausted DLQ entries, guardrail violations and message-cap
// hits are posted as concise notices so an operator can monitor the system
// without tailing the audit log directly.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arocore/core/internal/core/resilience"
)

// Kind is a machine-readable notification category.
type Kind string

const (
	KindFallbackDeferred Kind = "fallback.deferred"
	KindDeadLettered     Kind = "dlq.entry"
	KindGuardrailBlocked Kind = "guardrail.blocked"
	KindMessageCapHit    Kind = "message_cap.hit"
	KindCircuitOpen      Kind = "circuit.open"
)

// Event carries the data a Notifier formats and sends.
type Event struct {
	Kind      Kind
	Domain    string
	TenantID  string
	Target    string
	Message   string
	Timestamp time.Time
}

// Notifier posts admin notifications. Implementations MUST NOT block the
// caller for longer than a short timeout; send failures are logged, not
// propagated.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// Sender is the subset of a Matrix client needed to post admin notices.
type Sender interface {
	SendNotice(roomID, message string) error
}

// MatrixNotifier posts formatted notices to an admin Matrix room.
type MatrixNotifier struct {
	sender Sender
	roomID string
}

// NewMatrixNotifier creates a MatrixNotifier that posts to roomID via sender.
func NewMatrixNotifier(sender Sender, roomID string) *MatrixNotifier {
	return &MatrixNotifier{sender: sender, roomID: roomID}
}

// Notify formats evt as a human-readable notice and posts it to the admin room.
func (n *MatrixNotifier) Notify(ctx context.Context, evt Event) {
	if n.roomID == "" {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	icon := kindIcon(evt.Kind)
	msg := fmt.Sprintf("%s [%s] %s", icon, evt.Kind, evt.Message)
	if evt.Domain != "" {
		msg = fmt.Sprintf("%s (domain: %s)", msg, evt.Domain)
	}
	if evt.TenantID != "" {
		msg = fmt.Sprintf("%s\n  tenant: %s", msg, evt.TenantID)
	}
	if evt.Target != "" {
		msg = fmt.Sprintf("%s\n  target: %s", msg, evt.Target)
	}

	if err := n.sender.SendNotice(n.roomID, msg); err != nil {
		slog.Warn("notify: failed to send admin room notice",
			"room", n.roomID, "kind", evt.Kind, "err", err)
	}
}

// Noop is a no-op Notifier used when admin room notifications are disabled.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(_ context.Context, _ Event) {}

func kindIcon(k Kind) string {
	switch k {
	case KindFallbackDeferred:
		return "⏳"
	case KindDeadLettered:
		return "💀"
	case KindGuardrailBlocked:
		return "🛑"
	case KindMessageCapHit:
		return "📵"
	case KindCircuitOpen:
		return "🔌"
	default:
		return "ℹ️"
	}
}

// FallbackBridge adapts a Notifier to resilience.AdminNotifier, so the
// outbound fallback queue can notify admins through the same channel as
// every other operational alert.
type FallbackBridge struct {
	notifier Notifier
}

// NewFallbackBridge builds a bridge that forwards fallback deferrals to notifier.
func NewFallbackBridge(notifier Notifier) *FallbackBridge {
	return &FallbackBridge{notifier: notifier}
}

// NotifyFallback implements resilience.AdminNotifier.
func (b *FallbackBridge) NotifyFallback(entry resilience.FallbackEntry) {
	b.notifier.Notify(context.Background(), Event{
		Kind:    KindCircuitOpen,
		Domain:  entry.Domain,
		Target:  entry.ID,
		Message: fmt.Sprintf("deferred until %s: %s", entry.ScheduledFor.Format(time.RFC3339), entry.Reason),
	})
}
