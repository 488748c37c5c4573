// Package executor is the block and graph execution engine. It walks a
// validated plan graph one block at a time on a device's capability
// adapters, maintaining the per-execution variable map, selecting edges by
// block verdict, and capturing logs. Per-device serialization is not its
// concern; the runner feeds it one execution at a time.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/virtualpytest/pilot/pkg/adapters"
	"github.com/virtualpytest/pilot/pkg/blocks"
	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/metrics"
)

// maxBlocksPerRun bounds a single execution against cyclic graphs. Loop
// bodies count once per iteration.
const maxBlocksPerRun = 10_000

// Engine executes plan graphs. It is stateless and safe for concurrent use;
// every Run carries its own walk state.
type Engine struct {
	registry *blocks.Registry
	metrics  *metrics.Metrics
}

// New builds an engine around a block registry. The metrics recorder may be
// nil.
func New(registry *blocks.Registry, m *metrics.Metrics) *Engine {
	return &Engine{registry: registry, metrics: m}
}

// Options tunes a single run.
type Options struct {
	// Vars seeds the execution variable map.
	Vars map[string]string

	// MaxLogSize caps the log buffer; zero means DefaultMaxLogSize.
	MaxLogSize int

	// OnProgress, when set, receives the completion percentage after every
	// block. Values are monotonic and stay below 100 until the run ends.
	OnProgress func(progress int)

	// OnLog, when set, receives every log line as it is written.
	OnLog func(line string)
}

// Result is the outcome of one graph run.
type Result struct {
	Status    core.ExecutionStatus
	ErrorKind core.ErrorKind
	ErrorMsg  string
	Vars      map[string]string
	Logs      string
	BlocksRun int
}

// walkState is the mutable state of one run, shared with nested loop bodies
// and subgraphs.
type walkState struct {
	bundle      adapters.Bundle
	vars        Vars
	logs        *logBuffer
	totalBlocks int
	blocksRun   int
	onProgress  func(int)

	// firstErr keeps the failure that put the walk on a failure branch, so
	// the terminal result reports the original cause.
	firstErr error
}

func (st *walkState) blockDone() {
	st.blocksRun++
	if st.onProgress != nil && st.totalBlocks > 0 {
		p := st.blocksRun * 100 / st.totalBlocks
		if p > 99 {
			p = 99
		}
		st.onProgress(p)
	}
}

func (st *walkState) recordErr(err error) {
	if st.firstErr == nil {
		st.firstErr = err
	}
}

// Run validates and executes the graph. The context cancels the run at the
// next block boundary; blocking blocks also observe it directly.
func (e *Engine) Run(ctx context.Context, g *core.Graph, bundle adapters.Bundle, opts Options) Result {
	st := &walkState{
		bundle:      bundle,
		vars:        Vars{},
		logs:        newLogBuffer(opts.MaxLogSize, opts.OnLog),
		totalBlocks: countBlocks(g),
		onProgress:  opts.OnProgress,
	}
	for k, v := range opts.Vars {
		st.vars[k] = v
	}

	if err := e.registry.ValidateGraph(g); err != nil {
		st.logs.appendLine("graph rejected: %v", err)
		return Result{
			Status:    core.StatusFailed,
			ErrorKind: core.KindOf(err),
			ErrorMsg:  err.Error(),
			Logs:      st.logs.String(),
		}
	}

	status, kind, msg := e.walk(ctx, g, st)
	result := Result{
		Status:    status,
		ErrorKind: kind,
		ErrorMsg:  msg,
		Vars:      st.vars.Snapshot(),
		Logs:      st.logs.String(),
		BlocksRun: st.blocksRun,
	}
	if opts.OnProgress != nil {
		opts.OnProgress(100)
	}
	return result
}

// walk runs one graph to a terminal. Nested calls (loop bodies, subgraphs)
// share the walk state, so variables and logs flow through.
func (e *Engine) walk(ctx context.Context, g *core.Graph, st *walkState) (core.ExecutionStatus, core.ErrorKind, string) {
	current := g.StartNode()
	for {
		if err := ctx.Err(); err != nil {
			st.logs.appendLine("execution cancelled before block %s", current.ID)
			if errors.Is(err, context.DeadlineExceeded) {
				return core.StatusFailed, core.KindTimeout, "execution exceeded its time cap"
			}
			return core.StatusCancelled, core.KindCancelled, "cancelled by operator"
		}
		if st.blocksRun >= maxBlocksPerRun {
			return core.StatusFailed, core.KindInternal, "block limit exceeded"
		}

		switch current.Type {
		case core.NodeSuccess:
			st.logs.appendLine("reached SUCCESS")
			return core.StatusCompleted, "", ""
		case core.NodeFailure:
			st.logs.appendLine("reached FAILURE")
			kind, msg := core.KindInternal, "plan reached the failure terminal"
			if st.firstErr != nil {
				kind, msg = core.KindOf(st.firstErr), st.firstErr.Error()
			}
			return core.StatusFailed, kind, msg
		}

		verdict, err := e.runBlock(ctx, current, st)
		st.blockDone()
		if err != nil {
			// Cancellation and timeout inside a block end the run directly.
			if core.IsKind(err, core.KindCancelled) {
				st.logs.appendLine("block %s cancelled", current.ID)
				return core.StatusCancelled, core.KindCancelled, "cancelled by operator"
			}
			if core.IsKind(err, core.KindTimeout) {
				st.logs.appendLine("block %s timed out", current.ID)
				return core.StatusFailed, core.KindTimeout, "execution exceeded its time cap"
			}
			st.logs.appendLine("block %s failed: %v", current.ID, err)
			st.vars[varErrorMsg] = err.Error()
			st.recordErr(core.WrapErr(core.KindOf(err), err, "block %s failed", current.ID))
			verdict = false
		}

		handle := core.HandleSuccess
		if !verdict {
			handle = core.HandleFailure
		}
		edge := g.OutgoingEdge(current.ID, handle)
		if edge == nil {
			st.logs.appendLine("block %s has no %s edge", current.ID, handle)
			return core.StatusFailed, core.KindInternal, "unreachable branch"
		}
		current = g.NodeByID(edge.Target)
	}
}

// runBlock executes one non-terminal block and returns its verdict. An
// error implies a false verdict; the caller handles edge selection.
func (e *Engine) runBlock(ctx context.Context, n *core.Node, st *walkState) (bool, error) {
	started := time.Now()
	defer func() {
		e.metrics.RecordBlockDuration(string(n.Type), time.Since(started))
	}()

	switch n.Type {
	case core.NodeStart:
		st.logs.appendLine("execution started")
		return true, nil

	case core.NodeNavigation:
		return e.runNavigation(ctx, n, st)

	case core.NodeAction:
		return e.runAction(ctx, n, st)

	case core.NodeVerification:
		return e.runVerification(ctx, n, st)

	case core.NodeSleep:
		st.logs.appendLine("sleep %dms", n.Data.DurationMs)
		return true, sleep(ctx, time.Duration(n.Data.DurationMs)*time.Millisecond)

	case core.NodeSetVariable:
		value, err := st.vars.Substitute(n.Data.Value)
		if err != nil {
			return false, err
		}
		st.vars[n.Data.Name] = value
		st.logs.appendLine("set %s = %s", n.Data.Name, value)
		return true, nil

	case core.NodeEvaluateCondition:
		output, verdict, err := evaluateCondition(st.vars, &n.Data)
		if err != nil {
			st.vars[varResultSuccess] = "false"
			st.vars[varErrorMsg] = err.Error()
			return false, err
		}
		st.vars[varResultOutput] = output
		st.vars[varResultSuccess] = "true"
		delete(st.vars, varErrorMsg)
		st.logs.appendLine("condition %s", output)
		return verdict, nil

	case core.NodeLoop:
		return e.runLoop(ctx, n, st)

	case core.NodeSubgraph:
		st.logs.appendLine("entering subgraph %s", n.Data.Label)
		status, _, msg := e.walk(ctx, n.Data.Body, st)
		if status == core.StatusCancelled {
			return false, core.Errf(core.KindCancelled, "subgraph cancelled")
		}
		if status != core.StatusCompleted {
			return false, core.Errf(core.KindInternal, "subgraph %s failed: %s", n.ID, msg)
		}
		return true, nil
	}
	return false, core.Errf(core.KindInvalidInput, "block %s has unknown type %q", n.ID, n.Type)
}

// runNavigation replays the transitions pre-expanded at planning time. The
// executor never consults the navigation tree.
func (e *Engine) runNavigation(ctx context.Context, n *core.Node, st *walkState) (bool, error) {
	if len(n.Data.Transitions) == 0 {
		st.logs.appendLine("navigate to %s: already there", n.Data.TargetNode)
		return true, nil
	}
	st.logs.appendLine("navigate to %s (%d transitions)", n.Data.TargetNode, len(n.Data.Transitions))
	for _, tr := range n.Data.Transitions {
		st.logs.appendLine("transition %s -> %s", tr.From, tr.To)
		for _, action := range tr.Actions {
			if err := e.executeAction(ctx, action, st); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

func (e *Engine) runAction(ctx context.Context, n *core.Node, st *walkState) (bool, error) {
	command, err := st.vars.Substitute(n.Data.Command)
	if err != nil {
		return false, err
	}
	action := core.Action{Command: command, Params: n.Data.Params, DelayMs: n.Data.DelayMs}
	if err := e.executeAction(ctx, action, st); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) executeAction(ctx context.Context, action core.Action, st *walkState) error {
	params, err := st.vars.SubstituteParams(action.Params)
	if err != nil {
		return err
	}
	action.Params = params

	res, err := st.bundle.Actions.Execute(ctx, action)
	if err != nil {
		return err
	}
	if res.Output != "" {
		st.logs.appendLine("%s", res.Output)
	}
	return nil
}

func (e *Engine) runVerification(ctx context.Context, n *core.Node, st *walkState) (bool, error) {
	params, err := st.vars.SubstituteParams(n.Data.Params)
	if err != nil {
		return false, err
	}
	res, err := st.bundle.Verifications.Verify(ctx, adapters.VerificationRequest{
		Type:     n.Data.VerificationType,
		Params:   params,
		Expected: n.Data.Expected,
	})
	if err != nil {
		return false, err
	}
	if res.Output != "" {
		st.logs.appendLine("%s", res.Output)
	}
	st.vars[varVerificationResult] = boolString(res.Passed)
	if observed, ok := res.Observed.(string); ok {
		st.vars[varVerificationObserved] = observed
	}
	if !res.Passed {
		st.recordErr(core.Errf(core.KindInternal, "verification %s did not pass", n.Data.VerificationType))
	}
	return res.Passed, nil
}

// runLoop walks the body N times; iterations=0 is a no-op that follows the
// success handle.
func (e *Engine) runLoop(ctx context.Context, n *core.Node, st *walkState) (bool, error) {
	st.logs.appendLine("loop %s: %d iterations", n.ID, n.Data.Iterations)
	for i := 0; i < n.Data.Iterations; i++ {
		st.logs.appendLine("loop %s iteration %d/%d", n.ID, i+1, n.Data.Iterations)
		status, kind, msg := e.walk(ctx, n.Data.Body, st)
		switch status {
		case core.StatusCancelled:
			return false, core.Errf(core.KindCancelled, "loop cancelled")
		case core.StatusFailed:
			slog.Debug("Loop body failed", "block", n.ID, "iteration", i+1, "error", msg)
			return false, core.Errf(kind, "loop %s iteration %d failed: %s", n.ID, i+1, msg)
		}
	}
	return true, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return core.WrapErr(core.KindTimeout, ctx.Err(), "sleep interrupted")
		}
		return core.WrapErr(core.KindCancelled, ctx.Err(), "sleep interrupted")
	case <-timer.C:
		return nil
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// countBlocks counts executable blocks including loop and subgraph bodies,
// for progress reporting.
func countBlocks(g *core.Graph) int {
	if g == nil {
		return 0
	}
	total := 0
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Type.IsTerminal() {
			continue
		}
		total++
		if n.Data.Body != nil {
			iterations := 1
			if n.Type == core.NodeLoop {
				iterations = n.Data.Iterations
			}
			total += iterations * countBlocks(n.Data.Body)
		}
	}
	return total
}
