// Package adapters defines the capability contracts a device handle plugs
// into the block executor: action execution, verification, and screen
// capture. The host process wires real device transports behind these
// interfaces; tests and dry-run device models use the loopback
// implementations.
package adapters

import (
	"context"

	"github.com/virtualpytest/pilot/pkg/core"
)

// ActionResult is the outcome of one device command.
type ActionResult struct {
	// Output is whatever the transport printed while running the command.
	// It is appended to the execution log.
	Output string `json:"output,omitempty"`
}

// ActionExecutor runs one device command. A non-nil error means the command
// failed; transports classify transient transport problems with
// core.KindHostUnreachable so callers can decide on retries.
type ActionExecutor interface {
	Execute(ctx context.Context, action core.Action) (ActionResult, error)
}

// VerificationRequest names a verification to run against the device.
type VerificationRequest struct {
	Type     string         `json:"verification_type"`
	Params   map[string]any `json:"params,omitempty"`
	Expected any            `json:"expected,omitempty"`
}

// VerificationResult reports what the verification observed. Passed is the
// verdict; a false verdict is a normal result, not an error.
type VerificationResult struct {
	Passed   bool   `json:"passed"`
	Observed any    `json:"observed,omitempty"`
	Output   string `json:"output,omitempty"`
}

// VerificationExecutor runs one named verification. Errors are reserved for
// adapter malfunction (unknown type, transport failure); a verification
// that ran and did not pass returns Passed=false with a nil error.
type VerificationExecutor interface {
	Verify(ctx context.Context, req VerificationRequest) (VerificationResult, error)
}

// ScreenCapture grabs the device's current frame. Consumers outside the
// execution core (AI vision, dashboards) read the raw bytes.
type ScreenCapture interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Bundle aggregates the capability adapters of one device. The device
// handle owns a Bundle; the executor only ever sees these interfaces.
type Bundle struct {
	Actions       ActionExecutor
	Verifications VerificationExecutor
	Capture       ScreenCapture
}
