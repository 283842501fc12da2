package workflow_test

import (
	"testing"

	"github.com/arocore/core/internal/core/workflow"
)

func TestScore_PerfectCustomerIsLowRisk(t *testing.T) {
	r := workflow.Score(workflow.RiskInput{
		ConfirmationRate:  1.0,
		TotalAppointments: 10,
	})
	if r.Score != 0 {
		t.Errorf("Score: got %d, want 0", r.Score)
	}
	if r.Category != workflow.RiskLow {
		t.Errorf("Category: got %s, want low", r.Category)
	}
	if r.RequiresDeposit {
		t.Error("expected RequiresDeposit to be false")
	}
}

func TestScore_NoShowComponentCapsAt40(t *testing.T) {
	r := workflow.Score(workflow.RiskInput{
		NoShowCount:       5, // 5*20=100, capped at 40
		ConfirmationRate:  1.0,
		TotalAppointments: 10,
	})
	if r.Score != 40 {
		t.Errorf("Score: got %d, want 40", r.Score)
	}
	if r.Category != workflow.RiskMedium {
		t.Errorf("Category: got %s, want medium", r.Category)
	}
}

func TestScore_HighRiskRequiresDeposit(t *testing.T) {
	r := workflow.Score(workflow.RiskInput{
		NoShowCount:       3,
		ConfirmationRate:  0.2,
		RescheduleCount:   4,
		TotalAppointments: 5,
		PaymentPastDue:    true,
		DepositThreshold:  70,
	})
	if r.Category != workflow.RiskHigh {
		t.Errorf("Category: got %s, want high", r.Category)
	}
	if !r.RequiresDeposit {
		t.Error("expected RequiresDeposit to be true")
	}
}

func TestScore_IsPureAndDeterministic(t *testing.T) {
	in := workflow.RiskInput{
		NoShowCount:       2,
		ConfirmationRate:  0.6,
		RescheduleCount:   1,
		TotalAppointments: 4,
	}
	first := workflow.Score(in)
	second := workflow.Score(in)
	if first != second {
		t.Fatalf("expected identical results for identical input, got %+v and %+v", first, second)
	}
}

func TestScore_ClampsOutOfRangeConfirmationRate(t *testing.T) {
	r := workflow.Score(workflow.RiskInput{ConfirmationRate: -1})
	if r.Score < 0 || r.Score > 100 {
		t.Fatalf("expected score to be clamped to [0,100], got %d", r.Score)
	}
}

func TestScore_ZeroTotalAppointmentsDoesNotDivideByZero(t *testing.T) {
	r := workflow.Score(workflow.RiskInput{RescheduleCount: 3, TotalAppointments: 0})
	if r.Score < 0 || r.Score > 100 {
		t.Fatalf("expected valid clamped score, got %d", r.Score)
	}
}

func TestScore_DefaultDepositThresholdIs70(t *testing.T) {
	r := workflow.Score(workflow.RiskInput{
		NoShowCount:       2,
		ConfirmationRate:  0.0,
		TotalAppointments: 1,
	})
	if r.Score < 70 {
		t.Skip("input does not exercise the default-threshold boundary")
	}
	if !r.RequiresDeposit {
		t.Error("expected RequiresDeposit when score >= default threshold of 70")
	}
}
