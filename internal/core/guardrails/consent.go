package guardrails

import (
	"context"
	"fmt"
)

// ErrConsentNotGranted is returned when an outbound message is attempted for
// a customer who has not granted messaging consent or has opted out.
var ErrConsentNotGranted = fmt.Errorf("customer has not granted messaging consent")

// ConsentChecker is the subset of the consent store guardrails needs.
type ConsentChecker interface {
	IsConsentGranted(ctx context.Context, tenantID, phone string) (bool, error)
}

// CheckConsent gates every outbound message on the customer's current
// consent state. It must run immediately before dispatch, not just at
// booking time, since a customer may opt out (reply STOP) between bookings.
func CheckConsent(ctx context.Context, checker ConsentChecker, tenantID, phone string) error {
	granted, err := checker.IsConsentGranted(ctx, tenantID, phone)
	if err != nil {
		return fmt.Errorf("guardrails: failed to check consent: %w", err)
	}
	if !granted {
		return ErrConsentNotGranted
	}
	return nil
}
