// Package runtime implements the two mutually exclusive modes the Executor
// invokes the untrusted external agent runtime through: a Docker-sandboxed
// CLI subprocess, and an authenticated HTTP gateway. Both satisfy the same
// Runtime interface so the server package never branches on mode.
package runtime

import (
	"context"
	"time"
)

// Invocation is everything a runtime mode needs to execute exactly one
// Core-authorized side effect.
type Invocation struct {
	ExecutionID   string
	TenantID      string
	CorrelationID string
	CommandType   string
	Payload       map[string]interface{}
	Timeout       time.Duration
}

// Result is what a runtime mode hands back after a successful invocation.
// Output carries whatever the runtime mode could parse from the agent's
// response; RuntimeMode names which mode produced it, since that detail is
// stamped onto the result event's payload.
type Result struct {
	RuntimeMode string
	Output      map[string]interface{}
}

// Runtime abstracts the external agent runtime invocation. Implementations
// MUST honor ctx's deadline/cancellation and never block past it.
type Runtime interface {
	Invoke(ctx context.Context, inv Invocation) (*Result, error)
}
