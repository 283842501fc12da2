package workflow_test

import (
	"testing"

	"github.com/arocore/core/internal/core/workflow"
)

func TestCanTransitionRuntime_AllowedPaths(t *testing.T) {
	cases := []struct {
		from workflow.RuntimeState
		to   workflow.RuntimeState
	}{
		{workflow.RuntimePending, workflow.RuntimeRunning},
		{workflow.RuntimeRunning, workflow.RuntimeWaiting},
		{workflow.RuntimeWaiting, workflow.RuntimeRetrying},
		{workflow.RuntimeRetrying, workflow.RuntimeRunning},
		{workflow.RuntimeRetrying, workflow.RuntimeFailed},
	}
	for _, c := range cases {
		if !workflow.CanTransitionRuntime(c.from, c.to) {
			t.Errorf("expected %s -> %s to be allowed", c.from, c.to)
		}
	}
}

func TestIsRuntimeTerminal(t *testing.T) {
	for _, s := range []workflow.RuntimeState{workflow.RuntimeCompleted, workflow.RuntimeFailed, workflow.RuntimeCancelled} {
		if !workflow.IsRuntimeTerminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	if workflow.IsRuntimeTerminal(workflow.RuntimeRunning) {
		t.Error("RUNNING should not be terminal")
	}
}

func TestNextOnTimeout(t *testing.T) {
	if got := workflow.NextOnTimeout(1, 3); got != workflow.RuntimeRetrying {
		t.Errorf("expected RETRYING with budget remaining, got %s", got)
	}
	if got := workflow.NextOnTimeout(3, 3); got != workflow.RuntimeRunning {
		t.Errorf("expected RUNNING continuation when retries exhausted, got %s", got)
	}
}

func TestTransitionRuntime_InvalidTransition(t *testing.T) {
	err := workflow.TransitionRuntime(workflow.RuntimeCompleted, workflow.RuntimeRunning)
	if err == nil {
		t.Fatal("expected error transitioning out of COMPLETED")
	}
}
