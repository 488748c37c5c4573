// Package runner hosts the per-device execution machinery of a host
// process: one bounded FIFO mailbox and one worker goroutine per device,
// an in-memory execution record registry, and a janitor that evicts
// terminal records after their retention window.
package runner

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/virtualpytest/pilot/pkg/core"
)

// record is the mutable execution descriptor. All access goes through the
// Records registry, which holds the lock.
type record struct {
	executionID string
	kind        core.ExecutionKind
	deviceID    string
	status      core.ExecutionStatus
	progress    int
	startedAt   *time.Time
	completedAt *time.Time
	result      map[string]any
	logs        string
	errorKind   core.ErrorKind
	errorMsg    string
	cancelled   bool
}

// Records is the in-memory execution record registry. Records are created
// pending, mutated only by the owning device worker, and read concurrently
// by the status endpoint. Terminal records stay readable for the retention
// window before the janitor evicts them.
type Records struct {
	mu        sync.RWMutex
	records   map[string]*record
	retention time.Duration
}

// NewRecords builds an empty registry. Terminal records are retained for at
// least the given duration.
func NewRecords(retention time.Duration) *Records {
	return &Records{
		records:   make(map[string]*record),
		retention: retention,
	}
}

// Create registers a new pending record and returns its execution id.
func (r *Records) Create(kind core.ExecutionKind, deviceID string) string {
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[id] = &record{
		executionID: id,
		kind:        kind,
		deviceID:    deviceID,
		status:      core.StatusPending,
	}
	return id
}

// Snapshot returns the read-only view of a record.
func (r *Records) Snapshot(executionID string) (core.StatusSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[executionID]
	if !ok {
		return core.StatusSnapshot{}, core.Errf(core.KindNotFound, "unknown execution %s", executionID)
	}
	return core.StatusSnapshot{
		ExecutionID: rec.executionID,
		Kind:        rec.kind,
		Status:      rec.status,
		Progress:    rec.progress,
		StartedAt:   rec.startedAt,
		CompletedAt: rec.completedAt,
		Result:      rec.result,
		Logs:        rec.logs,
		ErrorKind:   rec.errorKind,
		ErrorMsg:    rec.errorMsg,
		OwnerDevice: rec.deviceID,
	}, nil
}

// MarkRunning transitions a record to running. The transition is rejected
// if the record is already terminal (cancelled while queued).
func (r *Records) MarkRunning(executionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[executionID]
	if !ok || !rec.status.CanTransitionTo(core.StatusRunning) {
		return false
	}
	now := time.Now()
	rec.status = core.StatusRunning
	rec.startedAt = &now
	return true
}

// MarkTerminal moves a record to its final state with the run outcome.
// Backward transitions are ignored, so a late worker write cannot overwrite
// an earlier terminal state.
func (r *Records) MarkTerminal(executionID string, status core.ExecutionStatus, result map[string]any, logs string, errKind core.ErrorKind, errMsg string) {
	if !status.IsTerminal() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[executionID]
	if !ok || !rec.status.CanTransitionTo(status) {
		return
	}
	now := time.Now()
	rec.status = status
	rec.completedAt = &now
	rec.progress = 100
	rec.result = result
	if logs != "" {
		rec.logs = logs
	}
	rec.errorKind = errKind
	rec.errorMsg = errMsg
}

// SetProgress updates the completion percentage of a running record.
func (r *Records) SetProgress(executionID string, progress int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[executionID]
	if !ok || rec.status.IsTerminal() {
		return
	}
	if progress > rec.progress {
		rec.progress = progress
	}
}

// AppendLog adds a line to a record's log. Logs grow monotonically; the
// executor's own buffer handles size capping, so the registry copy replaces
// rather than re-caps on terminal writes.
func (r *Records) AppendLog(executionID, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[executionID]
	if !ok || rec.status.IsTerminal() {
		return
	}
	rec.logs += line
}

// RequestCancel flags the record. A pending record is cancelled on the
// spot; a running one only gets the flag, the caller cancels its context.
// The return reports whether the record was still pending.
func (r *Records) RequestCancel(executionID string) (wasPending bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[executionID]
	if !ok {
		return false, core.Errf(core.KindNotFound, "unknown execution %s", executionID)
	}
	rec.cancelled = true
	if rec.status == core.StatusPending {
		now := time.Now()
		rec.status = core.StatusCancelled
		rec.completedAt = &now
		rec.errorKind = core.KindCancelled
		rec.errorMsg = "cancelled before start"
		return true, nil
	}
	return false, nil
}

// IsCancelled reports whether a cancel was requested for the record.
func (r *Records) IsCancelled(executionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[executionID]
	return ok && rec.cancelled
}

// drop removes a record that never made it into a mailbox.
func (r *Records) drop(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, executionID)
}

// Counts returns the number of records per status, for health reporting.
func (r *Records) Counts() map[core.ExecutionStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[core.ExecutionStatus]int)
	for _, rec := range r.records {
		out[rec.status]++
	}
	return out
}

// Sweep evicts terminal records past the retention window and returns how
// many were removed.
func (r *Records) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, rec := range r.records {
		if rec.status.IsTerminal() && rec.completedAt != nil && now.Sub(*rec.completedAt) >= r.retention {
			delete(r.records, id)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Debug("Execution records evicted", "count", evicted)
	}
	return evicted
}
