package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arocore/core/common/retry"
	"github.com/arocore/core/internal/core/resilience"
)

// Wrapped composes an Adapter with the three outbound resilience layers the
// spec requires on every provider call: token bucket, circuit breaker,
// retry-with-jitter. Send passes through all three in that order; the other
// Adapter methods (inbound verification/normalization) are untouched.
type Wrapped struct {
	inner    Adapter
	limiter  *resilience.OutboundLimiter
	breaker  *resilience.Breaker
	retryCfg retry.Config
	fallback *resilience.FallbackQueue
}

// WrapConfig configures the resilience layers around an Adapter.
type WrapConfig struct {
	Bucket   resilience.BucketConfig
	Circuit  resilience.CircuitConfig
	Retry    retry.Config
	Fallback *resilience.FallbackQueue
}

// Wrap returns a Wrapped adapter. domain names the circuit breaker instance,
// e.g. "twilio" or "stripe", so trips are tracked per provider family.
func Wrap(inner Adapter, domain string, cfg WrapConfig) *Wrapped {
	return &Wrapped{
		inner:    inner,
		limiter:  resilience.NewOutboundLimiter(cfg.Bucket),
		breaker:  resilience.NewBreaker(domain, cfg.Circuit),
		retryCfg: cfg.Retry,
		fallback: cfg.Fallback,
	}
}

// RestoreColdStart initializes the breaker's state on process start. There
// is no persisted breaker state across restarts, so rather than assume
// CLOSED (which risks a thundering herd against a backend that was tripped
// OPEN when the process last exited) it conservatively starts HALF_OPEN:
// calls are admitted, SuccessThreshold consecutive successes close the
// breaker, and any failure trips it OPEN again.
func (w *Wrapped) RestoreColdStart() {
	w.breaker.RestoreState(resilience.HalfOpen, time.Time{})
}

func (w *Wrapped) Name() string { return w.inner.Name() }

func (w *Wrapped) VerifySignature(header string, body []byte, secret []byte) error {
	return w.inner.VerifySignature(header, body, secret)
}

func (w *Wrapped) Normalize(body []byte) (*NormalizedEvent, error) {
	return w.inner.Normalize(body)
}

// Send acquires a rate-limit token, checks the circuit breaker, then retries
// the underlying Send with exponential backoff. If the circuit is open, the
// request is deferred to the fallback queue (when configured) rather than
// failing the caller outright.
func (w *Wrapped) Send(ctx context.Context, req OutboundRequest) (*OutboundResult, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("adapters: rate limit wait: %w", err)
	}

	if err := w.breaker.Allow(); err != nil {
		if w.fallback != nil {
			retryAfter := 60 * time.Second
			var openErr *resilience.ErrCircuitOpen
			if errors.As(err, &openErr) && openErr.RetryAfterSeconds > 0 {
				retryAfter = time.Duration(openErr.RetryAfterSeconds) * time.Second
			}
			w.fallback.Defer(resilience.FallbackEntry{
				ID:           req.CommandType,
				Domain:       w.inner.Name(),
				Payload:      req,
				ScheduledFor: time.Now().Add(retryAfter),
				Reason:       "circuit_open",
			})
		}
		return nil, err
	}

	var result *OutboundResult
	err := retry.Do(ctx, w.retryCfg, func() error {
		var sendErr error
		result, sendErr = w.inner.Send(ctx, req)
		return sendErr
	})

	if err != nil {
		w.breaker.RecordFailure()
		return nil, fmt.Errorf("adapters: send via %s: %w", w.inner.Name(), err)
	}
	w.breaker.RecordSuccess()
	return result, nil
}
