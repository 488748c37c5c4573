package api

import (
	"github.com/virtualpytest/pilot/pkg/database"
)

// SubmitResponse is returned by every async execution submission.
type SubmitResponse struct {
	ExecutionID string `json:"execution_id"`
}

// StatusMessage is the generic acknowledgement body.
type StatusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// CapabilityResponse is returned by the capability listing endpoints.
type CapabilityResponse struct {
	DeviceID    string   `json:"device_id"`
	DeviceModel string   `json:"device_model"`
	Items       []string `json:"items"`
	RemoteKeys  []string `json:"remote_keys,omitempty"`
}

// NodesResponse is returned by GET /api/v1/navigation/nodes.
type NodesResponse struct {
	Interface string   `json:"interface"`
	Nodes     []string `json:"nodes"`
}

// ResolveResponse is returned by POST /api/v1/plans/resolve.
type ResolveResponse struct {
	Status    string `json:"status"`
	Confirmed int    `json:"confirmed"`
}

// HealthCheck is one component's health verdict.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Database *database.HealthStatus `json:"database,omitempty"`
	Checks   map[string]HealthCheck `json:"checks"`
	Hosts    map[string]string      `json:"hosts,omitempty"`
}
