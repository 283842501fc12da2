package queue

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/arocore/core/common/spec/envelope"
)

// Handler dispatches a single command, returning an error if it should be
// retried (or dead-lettered once retries are exhausted). executionID is the
// ID pre-assigned at enqueue time, threaded through so the handler can pass
// it on to the Executor unchanged across retries.
type Handler func(ctx context.Context, cmd envelope.Command, headers envelope.CommandHeaders, executionID string) error

// DeadLetterSink receives entries that exhausted their retry budget.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, tenantID string, cmd envelope.Command, errMsg string, attempts int) error
}

// DispatcherConfig tunes the worker loop.
type DispatcherConfig struct {
	PollInterval time.Duration
	BaseDelay    time.Duration
	MaxDelay     time.Duration
}

// DefaultDispatcherConfig matches the spec's default poll interval and
// backoff envelope.
var DefaultDispatcherConfig = DispatcherConfig{
	PollInterval: 5 * time.Second,
	BaseDelay:    250 * time.Millisecond,
	MaxDelay:     30 * time.Second,
}

// Dispatcher drains a FileQueue, invoking Handler for each ready entry and
// rescheduling with exponential backoff + jitter on failure, dead-lettering
// once MaxAttempts is exhausted.
type Dispatcher struct {
	queue   *FileQueue
	handler Handler
	sink    DeadLetterSink
	cfg     DispatcherConfig
}

// NewDispatcher builds a Dispatcher. sink may be nil in tests that don't
// exercise the DLQ path.
func NewDispatcher(q *FileQueue, handler Handler, sink DeadLetterSink, cfg DispatcherConfig) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultDispatcherConfig.PollInterval
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultDispatcherConfig.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultDispatcherConfig.MaxDelay
	}
	return &Dispatcher{queue: q, handler: handler, sink: sink, cfg: cfg}
}

// Run polls the queue until ctx is cancelled, draining ready entries on each
// tick. It returns once ctx is done, allowing callers to drain in-flight
// work before shutdown by cancelling ctx only after requesting a final Tick.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick processes every currently-ready entry once.
func (d *Dispatcher) Tick(ctx context.Context) {
	for _, e := range d.queue.Ready(time.Now()) {
		d.process(ctx, e)
	}
}

func (d *Dispatcher) process(ctx context.Context, e *Entry) {
	err := d.handler(ctx, e.Command, e.Headers, e.ExecutionID)
	if err == nil {
		if ackErr := d.queue.Ack(e.ID); ackErr != nil {
			slog.Error("queue: failed to ack dispatched entry", "id", e.ID, "err", ackErr)
		}
		return
	}

	attempts := e.Attempts + 1
	if attempts >= e.MaxAttempts {
		d.deadLetter(ctx, e, err)
		return
	}

	delay := backoffWithJitter(d.cfg.BaseDelay, d.cfg.MaxDelay, attempts)
	if rescheduleErr := d.queue.Reschedule(e.ID, time.Now().Add(delay)); rescheduleErr != nil {
		slog.Error("queue: failed to reschedule entry", "id", e.ID, "err", rescheduleErr)
	}
}

func (d *Dispatcher) deadLetter(ctx context.Context, e *Entry, cause error) {
	if d.sink != nil {
		if err := d.sink.DeadLetter(ctx, e.Headers.TenantID, e.Command, cause.Error(), e.Attempts+1); err != nil {
			slog.Error("queue: failed to record dead letter", "id", e.ID, "err", err)
		}
	}
	if err := d.queue.Remove(e.ID); err != nil {
		slog.Error("queue: failed to remove dead-lettered entry", "id", e.ID, "err", err)
	}
}

// backoffWithJitter computes base*2^(attempt-1) capped at max, plus uniform
// jitter in [0, 0.1*delay], matching the exponential-backoff-with-jitter
// family used throughout the resilience layer.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if delay > max {
		delay = max
	}
	delay += time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay
}
