package adapters

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CalendlyAdapter normalizes Calendly booking webhooks and requests
// reschedule links.
type CalendlyAdapter struct {
	apiToken   string
	httpClient *http.Client
	baseURL    string
}

// NewCalendlyAdapter builds a CalendlyAdapter.
func NewCalendlyAdapter(apiToken, baseURL string) *CalendlyAdapter {
	if baseURL == "" {
		baseURL = "https://api.calendly.com"
	}
	return &CalendlyAdapter{
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
	}
}

func (a *CalendlyAdapter) Name() string { return "calendly" }

// VerifySignature validates Calendly's Calendly-Webhook-Signature header, of
// the form "t=<timestamp>,v1=<hex hmac>", signed over "<timestamp>.<body>" —
// the same scheme shape as Stripe's.
func (a *CalendlyAdapter) VerifySignature(header string, body []byte, secret []byte) error {
	var timestamp, v1 string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			v1 = kv[1]
		}
	}
	if timestamp == "" || v1 == "" {
		return fmt.Errorf("adapters: calendly: malformed signature header")
	}

	provided, err := hex.DecodeString(v1)
	if err != nil {
		return fmt.Errorf("adapters: calendly: invalid hex signature: %w", err)
	}

	signedPayload := bytes.Join([][]byte{[]byte(timestamp), body}, []byte("."))
	mac := hmac.New(sha256.New, secret)
	mac.Write(signedPayload)
	expected := mac.Sum(nil)

	if !hmac.Equal(expected, provided) {
		return fmt.Errorf("adapters: calendly: signature mismatch")
	}
	return nil
}

// calendlyPayload is the subset of a Calendly invitee webhook Core consumes.
type calendlyPayload struct {
	Event   string `json:"event"`
	Payload struct {
		URI   string `json:"uri"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Event struct {
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
		} `json:"event"`
	} `json:"payload"`
}

// Normalize parses a Calendly invitee webhook body into a NormalizedEvent.
func (a *CalendlyAdapter) Normalize(body []byte) (*NormalizedEvent, error) {
	var evt calendlyPayload
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("adapters: calendly: decode event: %w", err)
	}
	if evt.Payload.URI == "" {
		return nil, fmt.Errorf("adapters: calendly: missing invitee uri")
	}
	return &NormalizedEvent{
		Provider:   "calendly",
		EventType:  evt.Event,
		ExternalID: evt.Payload.URI,
		OccurredAt: time.Now(),
		Payload: map[string]interface{}{
			"customerName":  evt.Payload.Name,
			"customerEmail": evt.Payload.Email,
			"startTime":     evt.Payload.Event.StartTime,
			"endTime":       evt.Payload.Event.EndTime,
		},
	}, nil
}

// Send requests a reschedule link for an existing booking.
// req.Payload must carry "eventUri".
func (a *CalendlyAdapter) Send(ctx context.Context, req OutboundRequest) (*OutboundResult, error) {
	eventURI, _ := req.Payload["eventUri"].(string)
	if eventURI == "" {
		return nil, fmt.Errorf("adapters: calendly: send requires eventUri")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, eventURI, nil)
	if err != nil {
		return nil, fmt.Errorf("adapters: calendly: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiToken)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("adapters: calendly: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("adapters: calendly: unexpected status %d", resp.StatusCode)
	}

	var decoded struct {
		Resource struct {
			ReschedulingURL string `json:"rescheduling_url"`
		} `json:"resource"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("adapters: calendly: decode response: %w", err)
	}

	return &OutboundResult{ProviderMessageID: decoded.Resource.ReschedulingURL, Status: "sent"}, nil
}
