package workflow_test

import (
	"errors"
	"testing"

	"github.com/arocore/core/internal/core/workflow"
)

func TestCanTransitionAppointment_AllowedPaths(t *testing.T) {
	cases := []struct {
		from workflow.AppointmentStatus
		to   workflow.AppointmentStatus
	}{
		{workflow.StatusBooked, workflow.StatusConfirmed},
		{workflow.StatusBooked, workflow.StatusPendingConfirm},
		{workflow.StatusConfirmed, workflow.StatusInProgress},
		{workflow.StatusRescheduled, workflow.StatusBooked},
		{workflow.StatusInProgress, workflow.StatusCompleted},
		{workflow.StatusPendingConfirm, workflow.StatusConfirmed},
	}
	for _, c := range cases {
		if !workflow.CanTransitionAppointment(c.from, c.to) {
			t.Errorf("expected %s -> %s to be allowed", c.from, c.to)
		}
	}
}

func TestCanTransitionAppointment_RejectsTerminalSource(t *testing.T) {
	if workflow.CanTransitionAppointment(workflow.StatusCompleted, workflow.StatusBooked) {
		t.Error("expected completed to have no outgoing transitions")
	}
	if !workflow.IsTerminal(workflow.StatusCompleted) {
		t.Error("expected completed to be terminal")
	}
	if !workflow.IsTerminal(workflow.StatusCancelled) {
		t.Error("expected cancelled to be terminal")
	}
	if !workflow.IsTerminal(workflow.StatusNoShow) {
		t.Error("expected no_show to be terminal")
	}
}

func TestCanTransitionAppointment_RejectsDisallowedPath(t *testing.T) {
	if workflow.CanTransitionAppointment(workflow.StatusRescheduled, workflow.StatusCompleted) {
		t.Error("rescheduled should only transition to booked")
	}
}

func TestTransitionAppointment_InvalidTransitionError(t *testing.T) {
	err := workflow.TransitionAppointment(workflow.StatusCompleted, workflow.StatusBooked, "operator-1")
	var invalid *workflow.ErrInvalidTransition
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransitionAppointment_ForbidsSystemAutoCancel(t *testing.T) {
	err := workflow.TransitionAppointment(workflow.StatusBooked, workflow.StatusCancelled, "system")
	var forbidden *workflow.ErrForbiddenSystemActor
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ErrForbiddenSystemActor, got %v", err)
	}
}

func TestTransitionAppointment_AllowsOperatorCancel(t *testing.T) {
	if err := workflow.TransitionAppointment(workflow.StatusBooked, workflow.StatusCancelled, "operator-1"); err != nil {
		t.Fatalf("expected operator-driven cancel to succeed, got %v", err)
	}
}
