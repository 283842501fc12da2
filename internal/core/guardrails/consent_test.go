package guardrails_test

import (
	"context"
	"errors"
	"testing"

	"github.com/arocore/core/internal/core/guardrails"
)

type fakeConsentChecker struct {
	granted bool
	err     error
}

func (f fakeConsentChecker) IsConsentGranted(ctx context.Context, tenantID, phone string) (bool, error) {
	return f.granted, f.err
}

func TestCheckConsent_AllowsWhenGranted(t *testing.T) {
	err := guardrails.CheckConsent(context.Background(), fakeConsentChecker{granted: true}, "tenant-a", "+1555")
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestCheckConsent_BlocksWhenNotGranted(t *testing.T) {
	err := guardrails.CheckConsent(context.Background(), fakeConsentChecker{granted: false}, "tenant-a", "+1555")
	if !errors.Is(err, guardrails.ErrConsentNotGranted) {
		t.Fatalf("expected ErrConsentNotGranted, got %v", err)
	}
}

func TestCheckConsent_PropagatesStoreError(t *testing.T) {
	sentinel := errors.New("db unavailable")
	err := guardrails.CheckConsent(context.Background(), fakeConsentChecker{err: sentinel}, "tenant-a", "+1555")
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel error, got %v", err)
	}
}
