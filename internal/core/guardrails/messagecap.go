package guardrails

import (
	"context"
	"fmt"
	"time"
)

// MaxMessagesPerCustomerPer24h is the spec-mandated default cap, independent
// of any per-tenant profile override and of API-level rate limiting.
const MaxMessagesPerCustomerPer24h = 3

// ErrMessageCapExceeded is returned when a customer has already received the
// maximum number of messages within the rolling 24h window.
var ErrMessageCapExceeded = fmt.Errorf("customer message cap exceeded for rolling 24h window")

// ReminderCounter is the subset of the reminder log store guardrails needs.
type ReminderCounter interface {
	CountRemindersSince(ctx context.Context, customerID string, since time.Time) (int, error)
}

// CheckMessageCap enforces the per-customer rolling-window message cap. The
// cap is independent of any tenant-level rate limit; on hit the caller must
// drop the message, audit the drop, and may optionally notify an admin.
func CheckMessageCap(ctx context.Context, counter ReminderCounter, customerID string, limit int, now time.Time) error {
	if limit <= 0 {
		limit = MaxMessagesPerCustomerPer24h
	}
	count, err := counter.CountRemindersSince(ctx, customerID, now.Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("guardrails: failed to count recent messages: %w", err)
	}
	if count >= limit {
		return ErrMessageCapExceeded
	}
	return nil
}
