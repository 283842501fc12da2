package server

import (
	"crypto/subtle"
	"fmt"

	"github.com/arocore/core/common/spec/envelope"
	"github.com/arocore/core/common/spec/executor"
	"github.com/arocore/core/common/spec/manifest"
	"github.com/arocore/core/internal/core/resilience"
)

// admissionError is what a failed admission check reports: an HTTP status
// and the envelope error code/message to send back, mirroring how Core's
// own HTTP pipeline maps internal failures to its error envelope.
type admissionError struct {
	status  int
	code    string
	message string
}

func (e *admissionError) Error() string { return e.message }

func deny(status int, code, message string) *admissionError {
	return &admissionError{status: status, code: code, message: message}
}

// Admission runs the Executor's six ordered, first-failure-wins checks
// against an inbound command. Each check is evaluated in this exact order;
// the first failure is returned and no later check runs.
type Admission struct {
	sharedToken string
	manifest    *manifest.Manifest
	tenantRate  *resilience.InboundLimiter
}

// NewAdmission builds an Admission pipeline. sharedToken is the bearer
// value every caller must present; m is the permission manifest loaded
// once at startup; tenantRatePerMinute bounds how many executions a single
// tenant may submit per minute.
func NewAdmission(sharedToken string, m *manifest.Manifest, tenantRatePerMinute int) *Admission {
	return &Admission{
		sharedToken: sharedToken,
		manifest:    m,
		tenantRate:  resilience.NewInboundLimiter(tenantRatePerMinute, tenantRateWindow),
	}
}

// Check evaluates the admission checks in order against a decoded command
// and the bearer token and X-Tenant-Id header presented on the request.
func (a *Admission) Check(bearerToken, tenantHeader string, cmd executor.Command) *admissionError {
	if bearerToken == "" || subtle.ConstantTimeCompare([]byte(bearerToken), []byte(a.sharedToken)) != 1 {
		return deny(401, envelope.CodeUnauthorized, "missing or invalid bearer token")
	}

	if tenantHeader == "" {
		return deny(400, envelope.CodeTenantHeaderRequired, "X-Tenant-Id header is required")
	}
	if tenantHeader != cmd.TenantID {
		return deny(400, envelope.CodeTenantMismatch, "X-Tenant-Id does not match command.tenantId")
	}

	if !a.manifest.AllowsTenant(cmd.TenantID) {
		return deny(403, envelope.CodeTenantNotAllowed, fmt.Sprintf("tenant %q is not allowed", cmd.TenantID))
	}

	if !a.tenantRate.Allow(cmd.TenantID) {
		return deny(429, envelope.CodeTenantRateLimitExceeded, fmt.Sprintf("tenant %q exceeded its execution rate limit", cmd.TenantID))
	}

	if cmd.PermissionManifestVersion != a.manifest.Version {
		return deny(400, envelope.CodePermissionManifestMismatch,
			fmt.Sprintf("command manifest version %q does not match configured version %q", cmd.PermissionManifestVersion, a.manifest.Version))
	}

	if !a.manifest.AllowsCommand(cmd.CommandType) {
		return deny(403, envelope.CodeCommandNotAllowed, fmt.Sprintf("command type %q is not allowed", cmd.CommandType))
	}

	return nil
}
