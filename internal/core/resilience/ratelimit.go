package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BucketConfig describes a token bucket: Requests tokens refill every
// Period, capped at Requests+Burst.
type BucketConfig struct {
	Requests int
	Period   time.Duration
	Burst    int
}

// toLimiter converts a spec-shaped BucketConfig into x/time/rate's
// per-second Limit, since rate.Limiter is expressed as a continuous refill
// rate rather than a discrete per-period count.
func (c BucketConfig) toLimiter() *rate.Limiter {
	perSecond := float64(c.Requests) / c.Period.Seconds()
	return rate.NewLimiter(rate.Limit(perSecond), c.Requests+c.Burst)
}

// OutboundLimiter wraps x/time/rate for outbound calls, where the call site
// waits for a token rather than being denied.
type OutboundLimiter struct {
	limiter *rate.Limiter
}

// NewOutboundLimiter builds a limiter that blocks outbound callers until a
// token is available.
func NewOutboundLimiter(cfg BucketConfig) *OutboundLimiter {
	return &OutboundLimiter{limiter: cfg.toLimiter()}
}

// Wait blocks until a token is available or ctx is cancelled.
func (l *OutboundLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// InboundLimiter is a fixed-window limiter keyed by tenant, used at the HTTP
// admission boundary where exceeding the limit must deny immediately rather
// than wait.
type InboundLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*windowBucket
}

type windowBucket struct {
	count   int
	resetAt time.Time
}

// NewInboundLimiter builds a per-tenant fixed-window limiter.
func NewInboundLimiter(limit int, window time.Duration) *InboundLimiter {
	return &InboundLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*windowBucket),
	}
}

// Allow reports whether tenantID is within its window limit, denying
// (rather than waiting) when exceeded. Safe for concurrent use.
func (l *InboundLimiter) Allow(tenantID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	b, ok := l.buckets[tenantID]
	if !ok || now.After(b.resetAt) {
		l.buckets[tenantID] = &windowBucket{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if b.count >= l.limit {
		return false
	}
	b.count++
	return true
}
