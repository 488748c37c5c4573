package executor

import (
	"context"
	"errors"

	"github.com/virtualpytest/pilot/pkg/adapters"
	"github.com/virtualpytest/pilot/pkg/core"
)

// ActionBatch is a direct action submission with its optional companion
// sequences: RetryActions replay once after a retryable failure of the
// primary sequence, FailureActions run unconditionally after a
// non-recovered failure for cleanup.
type ActionBatch struct {
	Actions        []core.Action `json:"actions"`
	RetryActions   []core.Action `json:"retry_actions,omitempty"`
	FailureActions []core.Action `json:"failure_actions,omitempty"`
}

// RunActionBatch executes the batch on the device adapters. It follows the
// same Result shape as graph runs so the runner treats both uniformly.
func (e *Engine) RunActionBatch(ctx context.Context, bundle adapters.Bundle, batch ActionBatch, opts Options) Result {
	st := &walkState{
		bundle:      bundle,
		vars:        Vars{},
		logs:        newLogBuffer(opts.MaxLogSize, opts.OnLog),
		totalBlocks: len(batch.Actions),
		onProgress:  opts.OnProgress,
	}
	for k, v := range opts.Vars {
		st.vars[k] = v
	}

	err := e.runSequence(ctx, batch.Actions, st)
	if err != nil && retryable(err) && len(batch.RetryActions) > 0 {
		st.logs.appendLine("primary sequence failed (%v), replaying retry actions", err)
		err = e.runSequence(ctx, batch.RetryActions, st)
	}
	if err != nil && len(batch.FailureActions) > 0 && !core.IsKind(err, core.KindCancelled) {
		st.logs.appendLine("running failure actions")
		// Cleanup runs even when the primary error stands; its own failure
		// only makes it into the log.
		if cleanupErr := e.runSequence(ctx, batch.FailureActions, st); cleanupErr != nil {
			st.logs.appendLine("failure actions failed: %v", cleanupErr)
		}
	}

	result := Result{
		Status:    core.StatusCompleted,
		Vars:      st.vars.Snapshot(),
		BlocksRun: st.blocksRun,
	}
	switch {
	case err == nil:
	case core.IsKind(err, core.KindCancelled):
		result.Status = core.StatusCancelled
		result.ErrorKind = core.KindCancelled
		result.ErrorMsg = "cancelled by operator"
	default:
		result.Status = core.StatusFailed
		result.ErrorKind = core.KindOf(err)
		result.ErrorMsg = err.Error()
	}
	result.Logs = st.logs.String()
	if opts.OnProgress != nil {
		opts.OnProgress(100)
	}
	return result
}

func (e *Engine) runSequence(ctx context.Context, actions []core.Action, st *walkState) error {
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return core.WrapErr(core.KindTimeout, err, "batch timed out")
			}
			return core.WrapErr(core.KindCancelled, err, "batch cancelled")
		}
		st.logs.appendLine("action %s", action.Command)
		if err := e.executeAction(ctx, action, st); err != nil {
			return err
		}
		st.blockDone()
	}
	return nil
}

// retryable reports whether the retry companion applies. User errors and
// cancellations are final; transport and device-side failures may recover.
func retryable(err error) bool {
	switch core.KindOf(err) {
	case core.KindHostUnreachable, core.KindTimeout, core.KindInternal:
		return true
	}
	return false
}
