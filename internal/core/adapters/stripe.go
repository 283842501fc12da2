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
	"strconv"
	"strings"
	"time"
)

// StripeAdapter normalizes Stripe payment-intent webhooks and creates
// deposit/charge payment intents.
type StripeAdapter struct {
	secretKey  string
	httpClient *http.Client
	baseURL    string
}

// NewStripeAdapter builds a StripeAdapter.
func NewStripeAdapter(secretKey, baseURL string) *StripeAdapter {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &StripeAdapter{
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
	}
}

func (a *StripeAdapter) Name() string { return "stripe" }

// VerifySignature validates Stripe's Stripe-Signature header, of the form
// "t=<timestamp>,v1=<hex hmac>". The signed payload is "<timestamp>.<body>".
func (a *StripeAdapter) VerifySignature(header string, body []byte, secret []byte) error {
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
		return fmt.Errorf("adapters: stripe: malformed Stripe-Signature header")
	}

	provided, err := hex.DecodeString(v1)
	if err != nil {
		return fmt.Errorf("adapters: stripe: invalid hex signature: %w", err)
	}

	signedPayload := bytes.Join([][]byte{[]byte(timestamp), body}, []byte("."))
	mac := hmac.New(sha256.New, secret)
	mac.Write(signedPayload)
	expected := mac.Sum(nil)

	if !hmac.Equal(expected, provided) {
		return fmt.Errorf("adapters: stripe: signature mismatch")
	}
	return nil
}

// stripeEventPayload is the subset of a Stripe event object Core consumes.
type stripeEventPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
			Status   string `json:"status"`
		} `json:"object"`
	} `json:"data"`
}

// Normalize parses a Stripe event webhook body into a NormalizedEvent.
func (a *StripeAdapter) Normalize(body []byte) (*NormalizedEvent, error) {
	var evt stripeEventPayload
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("adapters: stripe: decode event: %w", err)
	}
	if evt.ID == "" {
		return nil, fmt.Errorf("adapters: stripe: missing event id")
	}
	return &NormalizedEvent{
		Provider:   "stripe",
		EventType:  evt.Type,
		ExternalID: evt.ID,
		OccurredAt: time.Now(),
		Payload: map[string]interface{}{
			"paymentIntentId": evt.Data.Object.ID,
			"amountCents":     evt.Data.Object.Amount,
			"currency":        evt.Data.Object.Currency,
			"status":          evt.Data.Object.Status,
		},
	}, nil
}

// Send creates a payment intent. req.Payload must carry "amountCents" and
// "currency"; "customerId" is optional.
func (a *StripeAdapter) Send(ctx context.Context, req OutboundRequest) (*OutboundResult, error) {
	amountCents, ok := req.Payload["amountCents"].(int64)
	if !ok {
		if f, ok2 := req.Payload["amountCents"].(float64); ok2 {
			amountCents = int64(f)
		}
	}
	currency, _ := req.Payload["currency"].(string)
	if amountCents <= 0 || currency == "" {
		return nil, fmt.Errorf("adapters: stripe: send requires amountCents and currency")
	}

	form := strings.NewReader(
		"amount=" + strconv.FormatInt(amountCents, 10) + "&currency=" + currency,
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/payment_intents", form)
	if err != nil {
		return nil, fmt.Errorf("adapters: stripe: build request: %w", err)
	}
	httpReq.SetBasicAuth(a.secretKey, "")
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("adapters: stripe: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("adapters: stripe: unexpected status %d", resp.StatusCode)
	}

	var decoded struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("adapters: stripe: decode response: %w", err)
	}

	return &OutboundResult{ProviderMessageID: decoded.ID, Status: decoded.Status}, nil
}
