// Package resilience implements the Core Engine's outbound-protection
// primitives: a per-provider-domain circuit breaker, inbound/outbound rate
// limiting, and a fallback queue for deferred retries.
package resilience

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// CircuitState is one of CLOSED, OPEN, HALF_OPEN.
type CircuitState int32

const (
	Closed CircuitState = iota
	Open
	HalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitConfig parameterizes a single breaker.
type CircuitConfig struct {
	FailureThreshold    int
	SuccessThreshold    int
	Timeout             time.Duration
	MonitoringPeriod    time.Duration
}

// DefaultCircuitConfig mirrors sensible production defaults.
var DefaultCircuitConfig = CircuitConfig{
	FailureThreshold: 5,
	SuccessThreshold: 2,
	Timeout:          30 * time.Second,
	MonitoringPeriod: 60 * time.Second,
}

// Breaker is a circuit breaker for one provider domain (messaging, booking,
// payment). State is held in atomics so Allow/RecordSuccess/RecordFailure
// can be called from concurrent adapter goroutines without a lock on the
// hot path; the mutex only guards the rarer state-transition moments.
type Breaker struct {
	domain string
	cfg    CircuitConfig

	state           atomic.Int32
	consecutiveFail atomic.Int64
	consecutiveOK   atomic.Int64
	openedAt        atomic.Int64 // unix nano; 0 means not open

	mu sync.Mutex
}

// NewBreaker constructs a breaker for domain, initialized CLOSED. Cold-start
// callers that want to restore a persisted OPEN/HALF_OPEN state should call
// RestoreState immediately after construction.
func NewBreaker(domain string, cfg CircuitConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultCircuitConfig.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultCircuitConfig.SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCircuitConfig.Timeout
	}
	if cfg.MonitoringPeriod <= 0 {
		cfg.MonitoringPeriod = DefaultCircuitConfig.MonitoringPeriod
	}
	b := &Breaker{domain: domain, cfg: cfg}
	b.state.Store(int32(Closed))
	return b
}

// RestoreState sets the breaker's state on cold start from persisted data.
// Per spec, a cold start with no persisted state may initialize HALF_OPEN
// rather than assume CLOSED, to avoid a thundering herd against a backend
// that was OPEN when the process last exited.
func (b *Breaker) RestoreState(state CircuitState, openedAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Store(int32(state))
	if !openedAt.IsZero() {
		b.openedAt.Store(openedAt.UnixNano())
	}
}

// State returns the breaker's current state, resolving an elapsed OPEN
// timeout into HALF_OPEN as a side effect (the canonical way this breaker
// observes the passage of time, mirroring a lazy timer).
func (b *Breaker) State() CircuitState {
	state := CircuitState(b.state.Load())
	if state != Open {
		return state
	}

	openedAtNano := b.openedAt.Load()
	if openedAtNano == 0 {
		return state
	}
	if time.Since(time.Unix(0, openedAtNano)) < b.cfg.Timeout {
		return state
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if CircuitState(b.state.Load()) == Open {
		b.state.Store(int32(HalfOpen))
		b.consecutiveOK.Store(0)
	}
	return CircuitState(b.state.Load())
}

// ErrCircuitOpen is returned by Allow (via the Do helper) when the breaker
// is fast-failing. RetryAfterSeconds tells the caller how long until the
// breaker will admit trial calls.
type ErrCircuitOpen struct {
	Domain            string
	RetryAfterSeconds int
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for domain %q, retry after %ds", e.Domain, e.RetryAfterSeconds)
}

// Allow reports whether a call should proceed, returning ErrCircuitOpen when
// the breaker is fast-failing.
func (b *Breaker) Allow() error {
	switch b.State() {
	case Open:
		remaining := b.cfg.Timeout - time.Since(time.Unix(0, b.openedAt.Load()))
		if remaining < 0 {
			remaining = 0
		}
		return &ErrCircuitOpen{Domain: b.domain, RetryAfterSeconds: int(remaining.Seconds()) + 1}
	default:
		return nil
	}
}

// RecordSuccess reports a successful call. In HALF_OPEN, SuccessThreshold
// consecutive successes closes the circuit; in CLOSED it resets the
// failure streak.
func (b *Breaker) RecordSuccess() {
	b.consecutiveFail.Store(0)

	if b.State() != HalfOpen {
		return
	}

	oks := b.consecutiveOK.Add(1)
	if oks >= int64(b.cfg.SuccessThreshold) {
		b.mu.Lock()
		if CircuitState(b.state.Load()) == HalfOpen {
			b.state.Store(int32(Closed))
			b.openedAt.Store(0)
			b.consecutiveFail.Store(0)
		}
		b.mu.Unlock()
	}
}

// RecordFailure reports a failed call. Any failure in HALF_OPEN reopens the
// circuit immediately; in CLOSED, FailureThreshold consecutive failures
// opens it.
func (b *Breaker) RecordFailure() {
	state := b.State()

	if state == HalfOpen {
		b.trip()
		return
	}

	fails := b.consecutiveFail.Add(1)
	if fails >= int64(b.cfg.FailureThreshold) {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Store(int32(Open))
	b.openedAt.Store(time.Now().UnixNano())
	b.consecutiveOK.Store(0)
}

// Do runs fn if the breaker allows it, recording the outcome.
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}
