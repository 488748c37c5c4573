package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualpytest/pilot/pkg/adapters"
	"github.com/virtualpytest/pilot/pkg/blocks"
	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/executor"
)

func testConfig() *config.QueueConfig {
	return &config.QueueConfig{
		MailboxSize:            4,
		ExecutionTimeout:       time.Minute,
		ScriptExecutionTimeout: 2 * time.Minute,
		RecordRetention:        time.Minute,
	}
}

func newTestRunner(t *testing.T, cfg *config.QueueConfig) *Runner {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	r := New(cfg, executor.New(blocks.MustNew(), nil), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Stop(ctx)
	})
	return r
}

func addLoopbackDevice(t *testing.T, r *Runner, deviceID string) *adapters.Loopback {
	t.Helper()
	lb := adapters.NewLoopback()
	require.NoError(t, r.AddDevice(core.Device{DeviceID: deviceID, DeviceModel: "android_tv"}, adapters.LoopbackBundle(lb)))
	return lb
}

func sleepGraph(durationMs int) *core.Graph {
	return &core.Graph{
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart, Data: core.NodeData{Label: "START"}},
			{ID: "sleep1", Type: core.NodeSleep, Data: core.NodeData{Label: "sleep_1:wait", DurationMs: durationMs}},
			{ID: "act1", Type: core.NodeAction, Data: core.NodeData{Label: "action_1:after_sleep", Command: "after_sleep"}},
			{ID: "success", Type: core.NodeSuccess, Data: core.NodeData{Label: "SUCCESS"}},
		},
		Edges: []core.Edge{
			{ID: "e1", Source: "start", Target: "sleep1", SourceHandle: core.HandleSuccess},
			{ID: "e2", Source: "sleep1", Target: "act1", SourceHandle: core.HandleSuccess},
			{ID: "e3", Source: "act1", Target: "success", SourceHandle: core.HandleSuccess},
		},
	}
}

func actionGraph(command string) *core.Graph {
	return &core.Graph{
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart, Data: core.NodeData{Label: "START"}},
			{ID: "act1", Type: core.NodeAction, Data: core.NodeData{Label: "action_1:" + command, Command: command}},
			{ID: "success", Type: core.NodeSuccess, Data: core.NodeData{Label: "SUCCESS"}},
		},
		Edges: []core.Edge{
			{ID: "e1", Source: "start", Target: "act1", SourceHandle: core.HandleSuccess},
			{ID: "e2", Source: "act1", Target: "success", SourceHandle: core.HandleSuccess},
		},
	}
}

func waitForStatus(t *testing.T, r *Runner, executionID string, want core.ExecutionStatus, within time.Duration) core.StatusSnapshot {
	t.Helper()
	deadline := time.Now().Add(within)
	for {
		snap, err := r.Status(executionID)
		require.NoError(t, err)
		if snap.Status == want {
			return snap
		}
		if snap.Status.IsTerminal() || time.Now().After(deadline) {
			t.Fatalf("execution %s is %s, wanted %s", executionID, snap.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSubmitGraphCompletes(t *testing.T) {
	r := newTestRunner(t, nil)
	lb := addLoopbackDevice(t, r, "dev-1")

	id, err := r.SubmitGraph("dev-1", core.KindTestCase, actionGraph("zap"), nil)
	require.NoError(t, err)

	snap := waitForStatus(t, r, id, core.StatusCompleted, 2*time.Second)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, core.KindTestCase, snap.Kind)
	assert.Equal(t, "dev-1", snap.OwnerDevice)
	assert.NotNil(t, snap.StartedAt)
	assert.NotNil(t, snap.CompletedAt)
	assert.Contains(t, snap.Logs, "reached SUCCESS")
	require.Len(t, lb.Executed(), 1)
}

func TestSubmitUnknownDevice(t *testing.T) {
	r := newTestRunner(t, nil)
	_, err := r.SubmitGraph("ghost", core.KindTestCase, actionGraph("zap"), nil)
	require.Error(t, err)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestPerDeviceSerialization(t *testing.T) {
	r := newTestRunner(t, nil)
	addLoopbackDevice(t, r, "dev-1")

	first, err := r.SubmitGraph("dev-1", core.KindNavigation, sleepGraph(300), nil)
	require.NoError(t, err)
	second, err := r.SubmitGraph("dev-1", core.KindNavigation, actionGraph("zap"), nil)
	require.NoError(t, err)

	waitForStatus(t, r, first, core.StatusRunning, time.Second)
	snap, err := r.Status(second)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, snap.Status, "second execution must wait for the first")

	firstSnap := waitForStatus(t, r, first, core.StatusCompleted, 2*time.Second)
	secondSnap := waitForStatus(t, r, second, core.StatusCompleted, 2*time.Second)
	require.NotNil(t, firstSnap.CompletedAt)
	require.NotNil(t, secondSnap.StartedAt)
	assert.False(t, secondSnap.StartedAt.Before(*firstSnap.CompletedAt),
		"second execution started before the first finished")
}

func TestExecutionsParallelAcrossDevices(t *testing.T) {
	r := newTestRunner(t, nil)
	addLoopbackDevice(t, r, "dev-1")
	addLoopbackDevice(t, r, "dev-2")

	a, err := r.SubmitGraph("dev-1", core.KindNavigation, sleepGraph(500), nil)
	require.NoError(t, err)
	b, err := r.SubmitGraph("dev-2", core.KindNavigation, sleepGraph(500), nil)
	require.NoError(t, err)

	waitForStatus(t, r, a, core.StatusRunning, time.Second)
	waitForStatus(t, r, b, core.StatusRunning, time.Second)
}

func TestMailboxOverflowDeviceBusy(t *testing.T) {
	cfg := testConfig()
	cfg.MailboxSize = 1
	r := newTestRunner(t, cfg)
	addLoopbackDevice(t, r, "dev-1")

	running, err := r.SubmitGraph("dev-1", core.KindNavigation, sleepGraph(1000), nil)
	require.NoError(t, err)
	waitForStatus(t, r, running, core.StatusRunning, time.Second)

	// One slot in the mailbox, then overflow.
	_, err = r.SubmitGraph("dev-1", core.KindNavigation, actionGraph("a"), nil)
	require.NoError(t, err)
	_, err = r.SubmitGraph("dev-1", core.KindNavigation, actionGraph("b"), nil)
	require.Error(t, err)
	assert.Equal(t, core.KindDeviceBusy, core.KindOf(err))
}

func TestCancelRunningExecution(t *testing.T) {
	r := newTestRunner(t, nil)
	lb := addLoopbackDevice(t, r, "dev-1")

	id, err := r.SubmitGraph("dev-1", core.KindTestCase, sleepGraph(10_000), nil)
	require.NoError(t, err)
	waitForStatus(t, r, id, core.StatusRunning, time.Second)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, r.Cancel(id))
	snap := waitForStatus(t, r, id, core.StatusCancelled, 2*time.Second)
	assert.Equal(t, core.KindCancelled, snap.ErrorKind)
	assert.Empty(t, lb.Executed(), "blocks after the cancelled sleep must not run")

	// Cancel is idempotent, including on terminal records.
	assert.NoError(t, r.Cancel(id))
}

func TestCancelPendingExecution(t *testing.T) {
	r := newTestRunner(t, nil)
	lb := addLoopbackDevice(t, r, "dev-1")

	running, err := r.SubmitGraph("dev-1", core.KindNavigation, sleepGraph(500), nil)
	require.NoError(t, err)
	waitForStatus(t, r, running, core.StatusRunning, time.Second)

	queued, err := r.SubmitGraph("dev-1", core.KindNavigation, actionGraph("queued_cmd"), nil)
	require.NoError(t, err)
	require.NoError(t, r.Cancel(queued))

	snap, err := r.Status(queued)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, snap.Status, "pending executions cancel immediately")

	// The worker must skip the cancelled job after the running one drains.
	waitForStatus(t, r, running, core.StatusCompleted, 2*time.Second)
	time.Sleep(50 * time.Millisecond)
	for _, a := range lb.Executed() {
		assert.NotEqual(t, "queued_cmd", a.Command)
	}
}

func TestCancelUnknownExecution(t *testing.T) {
	r := newTestRunner(t, nil)
	err := r.Cancel("no-such-id")
	require.Error(t, err)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestExecutionTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ExecutionTimeout = 100 * time.Millisecond
	r := newTestRunner(t, cfg)
	addLoopbackDevice(t, r, "dev-1")

	id, err := r.SubmitGraph("dev-1", core.KindTestCase, sleepGraph(10_000), nil)
	require.NoError(t, err)

	snap := waitForStatus(t, r, id, core.StatusFailed, 2*time.Second)
	assert.Equal(t, core.KindTimeout, snap.ErrorKind)
}

func TestSubmitBatch(t *testing.T) {
	r := newTestRunner(t, nil)
	lb := addLoopbackDevice(t, r, "dev-1")

	id, err := r.SubmitBatch("dev-1", executor.ActionBatch{
		Actions: []core.Action{{Command: "press_key"}, {Command: "zap"}},
	})
	require.NoError(t, err)

	waitForStatus(t, r, id, core.StatusCompleted, 2*time.Second)
	assert.Len(t, lb.Executed(), 2)
}

func TestStopDrainsInFlightExecution(t *testing.T) {
	r := newTestRunner(t, nil)
	addLoopbackDevice(t, r, "dev-1")

	id, err := r.SubmitGraph("dev-1", core.KindNavigation, sleepGraph(200), nil)
	require.NoError(t, err)
	waitForStatus(t, r, id, core.StatusRunning, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))

	snap, err := r.Status(id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, snap.Status, "stop drains the in-flight execution")
}

func TestHealthReportsQueueState(t *testing.T) {
	r := newTestRunner(t, nil)
	addLoopbackDevice(t, r, "dev-1")

	h := r.Health()
	assert.Equal(t, 1, h.Devices)
	assert.Contains(t, h.QueueDepths, "dev-1")
}
