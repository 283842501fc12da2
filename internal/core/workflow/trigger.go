package workflow

import (
	"time"

	"github.com/arocore/core/common/spec/envelope"
)

// TriggerKind distinguishes the three ways a trigger can fire.
type TriggerKind string

const (
	TriggerEvent   TriggerKind = "event"
	TriggerTime    TriggerKind = "time"
	TriggerPattern TriggerKind = "pattern"
)

// EventPredicate inspects an event's payload and reports whether the
// optional predicate attached to an event trigger matches.
type EventPredicate func(payload map[string]interface{}) bool

// EventTrigger fires when a canonical event of EventType arrives and, if set,
// Predicate matches its payload.
type EventTrigger struct {
	Name      string
	EventType string
	Predicate EventPredicate
}

// Matches reports whether evt satisfies this trigger.
func (t EventTrigger) Matches(evt envelope.Event) bool {
	if evt.EventType != t.EventType {
		return false
	}
	if t.Predicate == nil {
		return true
	}
	return t.Predicate(evt.Payload)
}

// TimeReference names the appointment field a time trigger's offset is
// relative to.
type TimeReference string

const (
	ReferenceScheduledAt TimeReference = "scheduledAt"
	ReferenceCreatedAt   TimeReference = "createdAt"
	ReferenceConfirmedAt TimeReference = "confirmedAt"
)

// TimeTrigger fires Offset relative to Reference, evaluated in the effective
// timezone (appointment tz, falling back to customer tz, then business tz,
// then UTC -- resolved by the caller via EffectiveTimezone and passed in as
// loc). A negative Offset fires before the reference instant (e.g. a
// reminder 24h before the appointment); positive fires after.
type TimeTrigger struct {
	Name      string
	Reference TimeReference
	Offset    time.Duration
}

// FireAt computes the instant this trigger fires given the reference time,
// expressed in the provided location for any display/formatting the caller
// does; the computed instant itself is timezone-independent (time.Time is
// absolute), but callers MUST recompute FireAt whenever the reference field
// changes, e.g. on reschedule.
func (t TimeTrigger) FireAt(reference time.Time, loc *time.Location) time.Time {
	return reference.In(loc).Add(t.Offset)
}

// EffectiveTimezone resolves appointment tz ∨ customer tz ∨ business tz ∨ UTC.
func EffectiveTimezone(appointmentTZ, customerTZ, businessTZ string) *time.Location {
	for _, tz := range []string{appointmentTZ, customerTZ, businessTZ} {
		if tz == "" {
			continue
		}
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.UTC
}

// PatternCondition evaluates a derived condition over current counters, e.g.
// noShowCount >= 2 or riskScore >= 70.
type PatternCondition func(counters PatternCounters) bool

// PatternCounters is the snapshot a pattern trigger condition evaluates
// against.
type PatternCounters struct {
	NoShowCount int
	RiskScore   int
}

// PatternTrigger fires when Condition holds over the current counters.
type PatternTrigger struct {
	Name      string
	Condition PatternCondition
}

// Matches reports whether counters satisfy this trigger.
func (t PatternTrigger) Matches(counters PatternCounters) bool {
	if t.Condition == nil {
		return false
	}
	return t.Condition(counters)
}

// NoShowCountAtLeast returns a PatternCondition matching noShowCount >= n.
func NoShowCountAtLeast(n int) PatternCondition {
	return func(c PatternCounters) bool { return c.NoShowCount >= n }
}

// RiskScoreAtLeast returns a PatternCondition matching riskScore >= n.
func RiskScoreAtLeast(n int) PatternCondition {
	return func(c PatternCounters) bool { return c.RiskScore >= n }
}
