package adapters_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arocore/core/common/retry"
	"github.com/arocore/core/internal/core/adapters"
	"github.com/arocore/core/internal/core/resilience"
)

type fakeAdapter struct {
	name      string
	sendErr   error
	sendCalls int
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) VerifySignature(header string, body []byte, secret []byte) error {
	return nil
}
func (f *fakeAdapter) Normalize(body []byte) (*adapters.NormalizedEvent, error) {
	return &adapters.NormalizedEvent{Provider: f.name}, nil
}
func (f *fakeAdapter) Send(ctx context.Context, req adapters.OutboundRequest) (*adapters.OutboundResult, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &adapters.OutboundResult{ProviderMessageID: "ok", Status: "sent"}, nil
}

func TestWrapped_SendSucceedsAndRecordsBreakerSuccess(t *testing.T) {
	inner := &fakeAdapter{name: "twilio"}
	w := adapters.Wrap(inner, "twilio", adapters.WrapConfig{
		Bucket:  resilience.BucketConfig{Requests: 10, Period: time.Second, Burst: 10},
		Circuit: resilience.CircuitConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute},
		Retry:   retry.Config{MaxAttempts: 1},
	})

	result, err := w.Send(context.Background(), adapters.OutboundRequest{CommandType: "integration.twilio.send_sms"})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result.ProviderMessageID != "ok" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestWrapped_SendDefersToFallbackWhenCircuitOpen(t *testing.T) {
	inner := &fakeAdapter{name: "twilio", sendErr: errors.New("boom")}
	fallback := resilience.NewFallbackQueue(nil)
	w := adapters.Wrap(inner, "twilio", adapters.WrapConfig{
		Bucket:   resilience.BucketConfig{Requests: 10, Period: time.Second, Burst: 10},
		Circuit:  resilience.CircuitConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute},
		Retry:    retry.Config{MaxAttempts: 1},
		Fallback: fallback,
	})

	// First call trips the breaker.
	if _, err := w.Send(context.Background(), adapters.OutboundRequest{CommandType: "integration.twilio.send_sms"}); err == nil {
		t.Fatal("expected first send to fail")
	}

	// Second call should fail fast on the open circuit and defer to fallback.
	callsBefore := inner.sendCalls
	_, err := w.Send(context.Background(), adapters.OutboundRequest{CommandType: "integration.twilio.send_sms"})
	if err == nil {
		t.Fatal("expected circuit-open error")
	}
	if inner.sendCalls != callsBefore {
		t.Fatalf("expected inner Send not to be called while circuit open, calls=%d", inner.sendCalls)
	}
	if fallback.Len() != 1 {
		t.Fatalf("expected 1 deferred entry, got %d", fallback.Len())
	}
}

func TestWrapped_SendRetriesTransientFailures(t *testing.T) {
	flaky := &flakyAdapter{failuresRemaining: 2}
	w := adapters.Wrap(flaky, "twilio", adapters.WrapConfig{
		Bucket:  resilience.BucketConfig{Requests: 10, Period: time.Second, Burst: 10},
		Circuit: resilience.CircuitConfig{FailureThreshold: 5, SuccessThreshold: 1, Timeout: time.Minute},
		Retry:   retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, NoJitter: true},
	})

	result, err := w.Send(context.Background(), adapters.OutboundRequest{CommandType: "integration.twilio.send_sms"})
	if err != nil {
		t.Fatalf("expected eventual success after retries, got %v", err)
	}
	if result.Status != "sent" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if flaky.calls != 3 {
		t.Fatalf("expected 3 attempts (2 failures + 1 success), got %d", flaky.calls)
	}
}

type flakyAdapter struct {
	failuresRemaining int
	calls             int
}

func (f *flakyAdapter) Name() string { return "twilio" }
func (f *flakyAdapter) VerifySignature(header string, body []byte, secret []byte) error {
	return nil
}
func (f *flakyAdapter) Normalize(body []byte) (*adapters.NormalizedEvent, error) {
	return nil, nil
}
func (f *flakyAdapter) Send(ctx context.Context, req adapters.OutboundRequest) (*adapters.OutboundResult, error) {
	f.calls++
	if f.failuresRemaining > 0 {
		f.failuresRemaining--
		return nil, errors.New("transient")
	}
	return &adapters.OutboundResult{ProviderMessageID: "ok", Status: "sent"}, nil
}
