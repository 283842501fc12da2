// Package adapters implements the integration-adapter contract shared by the
// Calendly, Twilio and Stripe families: fetch/send, handleWebhook,
// verifySignature, normalize. Core never sees raw provider payloads; every
// adapter normalizes into the shapes defined here before anything reaches a
// workflow.
package adapters

import (
	"context"
	"time"
)

// NormalizedEvent is what an adapter hands back to Core after validating and
// parsing a provider webhook delivery. Payload carries only the fields Core's
// workflow logic actually consumes, never the provider's raw schema.
type NormalizedEvent struct {
	Provider   string
	EventType  string
	ExternalID string
	OccurredAt time.Time
	Payload    map[string]interface{}
}

// OutboundRequest is a normalized send: an SMS, a booking link request, a
// charge, etc. CommandType mirrors the integration.* command that produced
// it, for logging/correlation.
type OutboundRequest struct {
	CommandType string
	Payload     map[string]interface{}
}

// OutboundResult is what Send returns once the provider accepted the call.
type OutboundResult struct {
	ProviderMessageID string
	Status            string
}

// Adapter is the shape shared by every provider integration. Send performs
// the provider call (already wrapped in rate limit / circuit breaker / retry
// by the caller, see Wrap); HandleWebhook parses and verifies an inbound
// delivery and returns the normalized event.
type Adapter interface {
	// Name identifies the provider family, e.g. "twilio", "stripe", "calendly".
	Name() string

	// Send performs an outbound call against the provider API.
	Send(ctx context.Context, req OutboundRequest) (*OutboundResult, error)

	// VerifySignature checks an inbound webhook's signature header against
	// body using the provider's signing scheme, in constant time.
	VerifySignature(header string, body []byte, secret []byte) error

	// Normalize parses a verified webhook body into a NormalizedEvent.
	Normalize(body []byte) (*NormalizedEvent, error)
}
