package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualpytest/pilot/pkg/core"
)

func TestRecordsLifecycle(t *testing.T) {
	r := NewRecords(time.Minute)
	id := r.Create(core.KindNavigation, "dev-1")

	snap, err := r.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, snap.Status)
	assert.Nil(t, snap.StartedAt)

	require.True(t, r.MarkRunning(id))
	r.SetProgress(id, 40)
	r.AppendLog(id, "halfway\n")

	snap, err = r.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusRunning, snap.Status)
	assert.Equal(t, 40, snap.Progress)
	assert.Contains(t, snap.Logs, "halfway")

	r.MarkTerminal(id, core.StatusCompleted, map[string]any{"blocks_run": 3}, "full log\n", "", "")
	snap, err = r.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, "full log\n", snap.Logs)
	require.NotNil(t, snap.CompletedAt)
}

func TestRecordsMonotonicTransitions(t *testing.T) {
	r := NewRecords(time.Minute)
	id := r.Create(core.KindTestCase, "dev-1")

	require.True(t, r.MarkRunning(id))
	r.MarkTerminal(id, core.StatusFailed, nil, "", core.KindInternal, "boom")

	// Terminal records reject further transitions.
	assert.False(t, r.MarkRunning(id))
	r.MarkTerminal(id, core.StatusCompleted, nil, "", "", "")

	snap, err := r.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, snap.Status)
	assert.Equal(t, "boom", snap.ErrorMsg)
}

func TestRecordsProgressNeverRegresses(t *testing.T) {
	r := NewRecords(time.Minute)
	id := r.Create(core.KindTestCase, "dev-1")
	require.True(t, r.MarkRunning(id))

	r.SetProgress(id, 60)
	r.SetProgress(id, 30)

	snap, err := r.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, 60, snap.Progress)
}

func TestRecordsCancelPending(t *testing.T) {
	r := NewRecords(time.Minute)
	id := r.Create(core.KindNavigation, "dev-1")

	wasPending, err := r.RequestCancel(id)
	require.NoError(t, err)
	assert.True(t, wasPending)

	snap, err := r.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, snap.Status)
	assert.False(t, r.MarkRunning(id), "a cancelled record must not start")
}

func TestRecordsSweep(t *testing.T) {
	r := NewRecords(100 * time.Millisecond)
	terminal := r.Create(core.KindNavigation, "dev-1")
	pending := r.Create(core.KindNavigation, "dev-1")
	require.True(t, r.MarkRunning(terminal))
	r.MarkTerminal(terminal, core.StatusCompleted, nil, "", "", "")

	// Inside the retention window nothing is evicted.
	assert.Zero(t, r.Sweep(time.Now()))

	evicted := r.Sweep(time.Now().Add(time.Second))
	assert.Equal(t, 1, evicted)

	_, err := r.Snapshot(terminal)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
	_, err = r.Snapshot(pending)
	assert.NoError(t, err, "non-terminal records survive the sweep")
}

func TestRecordsSnapshotUnknown(t *testing.T) {
	r := NewRecords(time.Minute)
	_, err := r.Snapshot("missing")
	require.Error(t, err)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}
