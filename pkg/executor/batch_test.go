package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualpytest/pilot/pkg/adapters"
	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/core"
)

func TestRunActionBatchSuccess(t *testing.T) {
	lb := adapters.NewLoopback()
	res := newEngine().RunActionBatch(context.Background(), adapters.LoopbackBundle(lb), ActionBatch{
		Actions: []core.Action{{Command: "press_key"}, {Command: "zap"}},
	}, Options{})

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Len(t, lb.Executed(), 2)
}

func TestRunActionBatchRetryRecovers(t *testing.T) {
	lb := adapters.NewLoopback()
	lb.FailCommand("zap", "transient glitch")

	res := newEngine().RunActionBatch(context.Background(), adapters.LoopbackBundle(lb), ActionBatch{
		Actions:      []core.Action{{Command: "zap"}},
		RetryActions: []core.Action{{Command: "press_key"}, {Command: "press_key"}},
	}, Options{})

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Contains(t, res.Logs, "replaying retry actions")
	// Primary zap plus two retry presses.
	assert.Len(t, lb.Executed(), 3)
}

func TestRunActionBatchFailureActionsRun(t *testing.T) {
	lb := adapters.NewLoopback()
	lb.FailCommand("zap", "stuck")

	res := newEngine().RunActionBatch(context.Background(), adapters.LoopbackBundle(lb), ActionBatch{
		Actions:        []core.Action{{Command: "zap"}},
		FailureActions: []core.Action{{Command: "go_home"}},
	}, Options{})

	require.Equal(t, core.StatusFailed, res.Status)
	assert.Contains(t, res.ErrorMsg, "stuck")

	executed := lb.Executed()
	require.Len(t, executed, 2)
	assert.Equal(t, "go_home", executed[1].Command, "cleanup runs after a non-recovered failure")
}

func TestRunActionBatchNonRetryableSkipsRetry(t *testing.T) {
	lb := adapters.NewLoopback()
	model := &config.DeviceModelConfig{RemoteKeys: []string{"OK"}}
	dispatcher := adapters.NewDispatcher(model, lb, nil, nil, nil)

	res := newEngine().RunActionBatch(context.Background(), adapters.Bundle{Actions: dispatcher}, ActionBatch{
		Actions:      []core.Action{{Command: "not_routed"}},
		RetryActions: []core.Action{{Command: "press_key"}},
	}, Options{})

	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Equal(t, core.KindInvalidInput, res.ErrorKind)
	assert.Empty(t, lb.Executed(), "invalid_input must not trigger the retry companion")
}

func TestRunActionBatchCancelled(t *testing.T) {
	lb := adapters.NewLoopback()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newEngine().RunActionBatch(ctx, adapters.LoopbackBundle(lb), ActionBatch{
		Actions:        []core.Action{{Command: "zap"}},
		FailureActions: []core.Action{{Command: "go_home"}},
	}, Options{})

	assert.Equal(t, core.StatusCancelled, res.Status)
	assert.Empty(t, lb.Executed(), "cancellation skips cleanup actions too")
}
