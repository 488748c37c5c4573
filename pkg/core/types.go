// Package core defines the domain types shared by the server and host
// processes: hosts, devices, sessions, execution records, and the plan
// graph format. It has no dependencies on the other pilot packages.
package core

import "time"

// HostStatus tracks registry liveness of a host machine.
type HostStatus string

const (
	HostStatusOnline  HostStatus = "online"
	HostStatusOffline HostStatus = "offline"
)

// Host is a machine that drives one or more devices under test.
type Host struct {
	HostName string     `json:"host_name"`
	BaseURL  string     `json:"base_url"`
	Status   HostStatus `json:"status"`
	LastSeen time.Time  `json:"last_seen"`
}

// DeviceCapabilities enumerates what a device model can do. The catalog is
// declared per model in configuration and reported by hosts at registration.
type DeviceCapabilities struct {
	RemoteKeys    []string `json:"remote_keys,omitempty"`
	ADB           bool     `json:"adb,omitempty"`
	Web           bool     `json:"web,omitempty"`
	Desktop       bool     `json:"desktop,omitempty"`
	Verifications []string `json:"verifications,omitempty"`
	Captures      []string `json:"captures,omitempty"`
}

// Device is a unit of test under a host. DeviceID is unique within its host.
type Device struct {
	DeviceID     string             `json:"device_id"`
	DeviceModel  string             `json:"device_model"`
	Capabilities DeviceCapabilities `json:"capabilities"`
}

// Session is an exclusive ownership token over a device. Acquiring a new
// session for a device revokes the prior one: its id stops validating, but
// executions it already submitted drain to a terminal state.
type Session struct {
	SessionID  string    `json:"session_id"`
	HostName   string    `json:"host_name"`
	DeviceID   string    `json:"device_id"`
	TeamID     string    `json:"team_id"`
	TreeID     string    `json:"tree_id,omitempty"`
	Interface  string    `json:"interface,omitempty"`
	CacheReady bool      `json:"cache_ready"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// ExecutionKind names the operation an execution record tracks.
type ExecutionKind string

const (
	KindActionBatch   ExecutionKind = "action_batch"
	KindNavigation    ExecutionKind = "navigation"
	KindVerification  ExecutionKind = "verification"
	KindTestCase      ExecutionKind = "testcase"
	KindAIPrompt      ExecutionKind = "ai_prompt"
	KindScript        ExecutionKind = "script"
	KindBlockSequence ExecutionKind = "block_sequence"
)

// IsValid checks if the execution kind is one of the defined values.
func (k ExecutionKind) IsValid() bool {
	switch k {
	case KindActionBatch, KindNavigation, KindVerification, KindTestCase,
		KindAIPrompt, KindScript, KindBlockSequence:
		return true
	}
	return false
}

// ExecutionStatus is the lifecycle state of an execution record.
// Transitions are monotonic: pending -> running -> terminal, with
// pending -> terminal allowed for records cancelled before they start.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func (s ExecutionStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusCompleted, StatusFailed, StatusCancelled:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next respects the
// monotonic lifecycle. Backward moves and terminal re-writes are rejected.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	return s.rank() >= 0 && next.rank() > s.rank()
}

// StatusSnapshot is the read-only view of an execution record returned by
// the status endpoint. Logs grow monotonically; clients append-deduplicate
// by length.
type StatusSnapshot struct {
	ExecutionID string          `json:"execution_id"`
	Kind        ExecutionKind   `json:"kind"`
	Status      ExecutionStatus `json:"status"`
	Progress    int             `json:"progress"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Result      map[string]any  `json:"result,omitempty"`
	Logs        string          `json:"logs,omitempty"`
	ErrorKind   ErrorKind       `json:"error_kind,omitempty"`
	ErrorMsg    string          `json:"error_msg,omitempty"`
	OwnerDevice string          `json:"owner_device,omitempty"`
}
