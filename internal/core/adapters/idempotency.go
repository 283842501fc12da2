package adapters

import "fmt"

// IdempotencyKey derives the dedupe key Core reserves before processing a
// normalized webhook event: the provider and its external event/delivery id,
// so the same provider delivery retried after a timeout is a no-op.
func IdempotencyKey(evt *NormalizedEvent) string {
	return fmt.Sprintf("%s:%s", evt.Provider, evt.ExternalID)
}
