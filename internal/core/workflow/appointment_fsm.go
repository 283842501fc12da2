// Package workflow implements the Appointment and workflow-runtime state
// machines, the deterministic risk-score formula, and the trigger system
// that advances workflows off canonical events, time offsets, and derived
// patterns.
package workflow

import "fmt"

// AppointmentStatus is a state in the Appointment FSM.
type AppointmentStatus string

const (
	StatusBooked         AppointmentStatus = "booked"
	StatusConfirmed      AppointmentStatus = "confirmed"
	StatusRescheduled    AppointmentStatus = "rescheduled"
	StatusCancelled      AppointmentStatus = "cancelled"
	StatusNoShow         AppointmentStatus = "no_show"
	StatusInProgress     AppointmentStatus = "in_progress"
	StatusCompleted      AppointmentStatus = "completed"
	StatusPendingConfirm AppointmentStatus = "pending_confirm"
)

// appointmentTransitions is the allowed source→targets graph. Terminal states
// map to an empty set.
var appointmentTransitions = map[AppointmentStatus]map[AppointmentStatus]bool{
	StatusBooked: {
		StatusConfirmed:      true,
		StatusRescheduled:    true,
		StatusCancelled:      true,
		StatusNoShow:         true,
		StatusInProgress:     true,
		StatusPendingConfirm: true,
	},
	StatusConfirmed: {
		StatusRescheduled: true,
		StatusCancelled:   true,
		StatusInProgress:  true,
		StatusNoShow:      true,
	},
	StatusRescheduled: {
		StatusBooked: true,
	},
	StatusInProgress: {
		StatusCompleted: true,
		StatusNoShow:    true,
	},
	StatusPendingConfirm: {
		StatusConfirmed: true,
		StatusCancelled: true,
		StatusNoShow:    true,
	},
	StatusCompleted: {},
	StatusNoShow:    {},
	StatusCancelled: {},
}

// ErrInvalidTransition is returned when a requested Appointment status change
// is not in the allowed graph.
type ErrInvalidTransition struct {
	From AppointmentStatus
	To   AppointmentStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid appointment transition: %s -> %s", e.From, e.To)
}

// ErrForbiddenSystemActor is returned when actor=system attempts an
// auto-cancel or auto-charge transition, which spec guardrails forbid
// regardless of whether the transition is otherwise legal.
type ErrForbiddenSystemActor struct {
	To AppointmentStatus
}

func (e *ErrForbiddenSystemActor) Error() string {
	return fmt.Sprintf("actor=system may not drive transition to %s", e.To)
}

// IsTerminal reports whether a status has no outgoing transitions.
func IsTerminal(s AppointmentStatus) bool {
	targets, ok := appointmentTransitions[s]
	return ok && len(targets) == 0
}

// CanTransitionAppointment reports whether from->to is in the allowed graph.
func CanTransitionAppointment(from, to AppointmentStatus) bool {
	targets, ok := appointmentTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// TransitionAppointment validates a requested status change. actor is the
// party driving the transition ("system" or a human/operator identifier);
// auto-cancellation (booked/confirmed/pending_confirm -> cancelled) and
// auto-charge transitions driven by actor=system are forbidden even when the
// transition is otherwise legal, per guardrail (1)/(2).
func TransitionAppointment(from, to AppointmentStatus, actor string) error {
	if !CanTransitionAppointment(from, to) {
		return &ErrInvalidTransition{From: from, To: to}
	}
	if actor == "system" && to == StatusCancelled {
		return &ErrForbiddenSystemActor{To: to}
	}
	return nil
}
