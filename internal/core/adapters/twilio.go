package adapters

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwilioAdapter normalizes Twilio SMS delivery status webhooks and sends
// outbound messages through the Twilio Messages API.
type TwilioAdapter struct {
	accountSID string
	authToken  string
	fromNumber string
	httpClient *http.Client
	baseURL    string
}

// NewTwilioAdapter builds a TwilioAdapter. baseURL defaults to the public
// Twilio API origin when empty, overridable in tests.
func NewTwilioAdapter(accountSID, authToken, fromNumber, baseURL string) *TwilioAdapter {
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	return &TwilioAdapter{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
	}
}

func (a *TwilioAdapter) Name() string { return "twilio" }

// twilioStatusPayload is the subset of Twilio's status-callback webhook body
// Core actually consumes.
type twilioStatusPayload struct {
	MessageSid    string `json:"MessageSid"`
	MessageStatus string `json:"MessageStatus"`
	To            string `json:"To"`
	Body          string `json:"Body"`
}

// VerifySignature validates the X-Twilio-Signature header: base64 of an
// HMAC-SHA256 computed over the raw request body, compared in constant
// time. The request URL and the sorted POST params are not part of the
// signed input.
func (a *TwilioAdapter) VerifySignature(header string, body []byte, secret []byte) error {
	if header == "" {
		return fmt.Errorf("adapters: twilio: missing signature header")
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(header)) {
		return fmt.Errorf("adapters: twilio: signature mismatch")
	}
	return nil
}

// Normalize parses a Twilio status-callback body (form-encoded, as Twilio
// sends it) into a NormalizedEvent.
func (a *TwilioAdapter) Normalize(body []byte) (*NormalizedEvent, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("adapters: twilio: parse form body: %w", err)
	}
	payload := twilioStatusPayload{
		MessageSid:    values.Get("MessageSid"),
		MessageStatus: values.Get("MessageStatus"),
		To:            values.Get("To"),
		Body:          values.Get("Body"),
	}
	if payload.MessageSid == "" {
		return nil, fmt.Errorf("adapters: twilio: missing MessageSid")
	}
	return &NormalizedEvent{
		Provider:   "twilio",
		EventType:  "sms." + payload.MessageStatus,
		ExternalID: payload.MessageSid,
		OccurredAt: time.Now(),
		Payload: map[string]interface{}{
			"to":     payload.To,
			"status": payload.MessageStatus,
			"body":   payload.Body,
		},
	}, nil
}

// Send posts an outbound SMS. req.Payload must carry "to" and "body".
func (a *TwilioAdapter) Send(ctx context.Context, req OutboundRequest) (*OutboundResult, error) {
	to, _ := req.Payload["to"].(string)
	body, _ := req.Payload["body"].(string)
	if to == "" || body == "" {
		return nil, fmt.Errorf("adapters: twilio: send requires to and body")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", a.fromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", a.baseURL, a.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("adapters: twilio: build request: %w", err)
	}
	httpReq.SetBasicAuth(a.accountSID, a.authToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("adapters: twilio: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("adapters: twilio: unexpected status %d", resp.StatusCode)
	}

	var decoded struct {
		Sid    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("adapters: twilio: decode response: %w", err)
	}

	return &OutboundResult{ProviderMessageID: decoded.Sid, Status: decoded.Status}, nil
}
