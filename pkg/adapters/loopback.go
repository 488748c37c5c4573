package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/virtualpytest/pilot/pkg/core"
)

// Loopback is an in-memory device: it implements all three capability
// contracts, records every call, and succeeds unless told otherwise. Tests
// and dry-run device models use it in place of real transports.
type Loopback struct {
	mu           sync.Mutex
	executed     []core.Action
	verified     []VerificationRequest
	failCommands map[string]string
	failVerdicts map[string]bool
	verifyErrors map[string]string
	captureFrame []byte
}

// NewLoopback builds an empty loopback device.
func NewLoopback() *Loopback {
	return &Loopback{
		failCommands: make(map[string]string),
		failVerdicts: make(map[string]bool),
		verifyErrors: make(map[string]string),
		captureFrame: []byte("loopback-frame"),
	}
}

// FailCommand makes future executions of cmd fail with the given message.
func (l *Loopback) FailCommand(cmd, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failCommands[cmd] = msg
}

// PassCommand clears a previously configured failure for cmd.
func (l *Loopback) PassCommand(cmd string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failCommands, cmd)
}

// FailVerification makes the named verification run but report Passed=false.
func (l *Loopback) FailVerification(verificationType string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failVerdicts[verificationType] = true
}

// BreakVerification makes the named verification fail as an adapter error.
func (l *Loopback) BreakVerification(verificationType, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verifyErrors[verificationType] = msg
}

// Executed returns a copy of every action run so far, in order.
func (l *Loopback) Executed() []core.Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]core.Action, len(l.executed))
	copy(out, l.executed)
	return out
}

// Verified returns a copy of every verification run so far, in order.
func (l *Loopback) Verified() []VerificationRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]VerificationRequest, len(l.verified))
	copy(out, l.verified)
	return out
}

// Execute records the action, honours its delay, and succeeds unless the
// command was marked as failing.
func (l *Loopback) Execute(ctx context.Context, action core.Action) (ActionResult, error) {
	l.mu.Lock()
	l.executed = append(l.executed, action)
	failMsg, fail := l.failCommands[action.Command]
	l.mu.Unlock()

	if action.DelayMs > 0 {
		timer := time.NewTimer(time.Duration(action.DelayMs) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ActionResult{}, ctx.Err()
		case <-timer.C:
		}
	}
	if fail {
		return ActionResult{}, core.Errf(core.KindInternal, "command %s failed: %s", action.Command, failMsg)
	}
	return ActionResult{Output: fmt.Sprintf("executed %s", action.Command)}, nil
}

// Verify records the request and reports the configured verdict.
func (l *Loopback) Verify(ctx context.Context, req VerificationRequest) (VerificationResult, error) {
	if err := ctx.Err(); err != nil {
		return VerificationResult{}, err
	}
	l.mu.Lock()
	l.verified = append(l.verified, req)
	failVerdict := l.failVerdicts[req.Type]
	errMsg, broken := l.verifyErrors[req.Type]
	l.mu.Unlock()

	if broken {
		return VerificationResult{}, core.Errf(core.KindInternal, "verification %s failed: %s", req.Type, errMsg)
	}
	if failVerdict {
		return VerificationResult{Passed: false, Observed: "mismatch", Output: fmt.Sprintf("verification %s did not pass", req.Type)}, nil
	}
	return VerificationResult{Passed: true, Observed: req.Expected, Output: fmt.Sprintf("verification %s passed", req.Type)}, nil
}

// Capture returns a fixed frame.
func (l *Loopback) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]byte, len(l.captureFrame))
	copy(out, l.captureFrame)
	return out, nil
}

// LoopbackBundle wires one loopback device behind every adapter contract.
func LoopbackBundle(l *Loopback) Bundle {
	return Bundle{Actions: l, Verifications: l, Capture: l}
}
