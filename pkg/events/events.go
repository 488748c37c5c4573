// Package events carries cross-process change notifications over
// PostgreSQL NOTIFY/LISTEN. The server publishes a notification whenever a
// navigation tree mutates, so every process invalidates its cached unified
// graph, and broadcasts session lifecycle changes for dashboards. Payloads
// are transient; nothing is persisted.
package events

// Notification channels. Fixed names, one per concern.
const (
	// TreeChannel carries navigation-tree mutations.
	TreeChannel = "pilot_tree_events"

	// SessionChannel carries device session lifecycle changes.
	SessionChannel = "pilot_session_events"
)

// Tree change kinds.
const (
	TreeChangeNodeUpserted = "node_upserted"
	TreeChangeNodeDeleted  = "node_deleted"
	TreeChangeEdgeUpserted = "edge_upserted"
	TreeChangeEdgeDeleted  = "edge_deleted"
	TreeChangeReplaced     = "tree_replaced"
)

// TreeChangedPayload identifies the mutated tree. Team and interface are
// the navigation cache key, so listeners can invalidate precisely.
type TreeChangedPayload struct {
	TeamID    string `json:"team_id"`
	Interface string `json:"interface"`
	Change    string `json:"change"`
	ElementID string `json:"element_id,omitempty"`
}

// Session lifecycle kinds.
const (
	SessionTaken    = "taken"
	SessionReleased = "released"
	SessionRevoked  = "revoked"
	SessionReaped   = "reaped"
)

// SessionChangedPayload describes one session transition.
type SessionChangedPayload struct {
	SessionID string `json:"session_id"`
	HostName  string `json:"host_name"`
	DeviceID  string `json:"device_id"`
	TeamID    string `json:"team_id"`
	Change    string `json:"change"`
}
