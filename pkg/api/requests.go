package api

import (
	"github.com/virtualpytest/pilot/pkg/core"
)

// ReleaseControlRequest is the body of POST /api/v1/control/release.
type ReleaseControlRequest struct {
	SessionID string `json:"session_id"`
}

// ExecuteNavigationRequest is the body of POST /api/v1/navigation/execute.
type ExecuteNavigationRequest struct {
	SessionID     string `json:"session_id"`
	TargetNode    string `json:"target_node"`
	CurrentNodeID string `json:"current_node_id,omitempty"`
}

// ExecuteActionsRequest is the body of POST /api/v1/actions/execute.
// RetryActions replay the batch once after a retryable failure;
// FailureActions run as cleanup before the batch terminates failed.
type ExecuteActionsRequest struct {
	SessionID      string        `json:"session_id"`
	Actions        []core.Action `json:"actions"`
	RetryActions   []core.Action `json:"retry_actions,omitempty"`
	FailureActions []core.Action `json:"failure_actions,omitempty"`
}

// VerificationSpec is one verification of a batch.
type VerificationSpec struct {
	VerificationType string         `json:"verification_type"`
	Expected         any            `json:"expected,omitempty"`
	Params           map[string]any `json:"params,omitempty"`
}

// ExecuteVerificationsRequest is the body of POST /api/v1/verifications/execute.
type ExecuteVerificationsRequest struct {
	SessionID     string             `json:"session_id"`
	Verifications []VerificationSpec `json:"verifications"`
}

// ExecutePlanRequest is the body of POST /api/v1/plans/execute.
type ExecutePlanRequest struct {
	SessionID string            `json:"session_id"`
	Graph     *core.Graph       `json:"graph"`
	Vars      map[string]string `json:"vars,omitempty"`
}

// ResolvePlanRequest is the body of POST /api/v1/plans/resolve: the caller
// confirms phrase -> node choices from a disambiguation round.
type ResolvePlanRequest struct {
	TeamID      string            `json:"team_id"`
	Interface   string            `json:"interface"`
	Resolutions map[string]string `json:"resolutions"`
}

// SaveTestCaseRequest is the body of POST /api/v1/testcases/save.
type SaveTestCaseRequest struct {
	TeamID    string      `json:"team_id"`
	Name      string      `json:"name"`
	Interface string      `json:"interface,omitempty"`
	Graph     *core.Graph `json:"graph"`
}

// CancelExecutionRequest is the body of POST /api/v1/execution/cancel.
type CancelExecutionRequest struct {
	ExecutionID string `json:"execution_id"`
}

// HeartbeatRequest is the body of POST /api/v1/hosts/heartbeat.
type HeartbeatRequest struct {
	HostName string `json:"host_name"`
}
