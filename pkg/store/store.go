// Package store is the persistence adapter of the execution core. Every
// repository exposes the same four verbs (upsert, get by key, list by
// filter, delete older than) over one entity. Two implementations exist:
// Postgres for the server process and an in-memory store for tests.
package store

import (
	"context"
	"time"

	"github.com/virtualpytest/pilot/pkg/core"
)

// PlanCacheEntry is one approved plan keyed by (fingerprint, team_id).
type PlanCacheEntry struct {
	Fingerprint string     `json:"fingerprint"`
	TeamID      string     `json:"team_id"`
	Prompt      string     `json:"prompt"`
	Analysis    string     `json:"analysis"`
	Graph       core.Graph `json:"graph"`
	UseCount    int64      `json:"use_count"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsed    time.Time  `json:"last_used"`
}

// LearnedMapping is a confirmed phrase -> node substitution keyed by
// (team_id, interface, phrase).
type LearnedMapping struct {
	TeamID       string    `json:"team_id"`
	Interface    string    `json:"interface"`
	Phrase       string    `json:"phrase"`
	ResolvedNode string    `json:"resolved_node"`
	UsageCount   int64     `json:"usage_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at"`
}

// TestCase is a saved plan graph keyed by (team_id, name).
type TestCase struct {
	TeamID    string     `json:"team_id"`
	Name      string     `json:"name"`
	Interface string     `json:"interface"`
	Graph     core.Graph `json:"graph"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TestCaseFilter narrows TestCaseRepo.List results.
type TestCaseFilter struct {
	Interface string
	Limit     int
}

// HistoryEntry is one terminal execution persisted for dashboards.
type HistoryEntry struct {
	ExecutionID string               `json:"execution_id"`
	TeamID      string               `json:"team_id"`
	Kind        core.ExecutionKind   `json:"kind"`
	HostName    string               `json:"host_name"`
	DeviceID    string               `json:"device_id"`
	Status      core.ExecutionStatus `json:"status"`
	Progress    int                  `json:"progress"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	Result      map[string]any       `json:"result,omitempty"`
	Logs        string               `json:"logs,omitempty"`
	ErrorKind   core.ErrorKind       `json:"error_kind,omitempty"`
	ErrorMsg    string               `json:"error_msg,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// PlanCacheRepo persists approved plans. Upsert absorbs races on the
// (fingerprint, team_id) unique key.
type PlanCacheRepo interface {
	Upsert(ctx context.Context, entry *PlanCacheEntry) error
	// GetByKey returns a not_found error when no entry exists.
	GetByKey(ctx context.Context, fingerprint, teamID string) (*PlanCacheEntry, error)
	// Touch records a cache hit: use_count++ and last_used=now.
	Touch(ctx context.Context, fingerprint, teamID string) error
	DeleteOlderThan(ctx context.Context, lastUsedBefore time.Time) (int64, error)
}

// LearnedMappingRepo persists phrase substitutions. Upserting an existing
// mapping bumps usage_count and refreshes last_used_at, keeping
// resolved_node at the new value.
type LearnedMappingRepo interface {
	Upsert(ctx context.Context, m *LearnedMapping) error
	// GetBatch resolves many phrases in one round-trip; absent phrases are
	// simply missing from the result map.
	GetBatch(ctx context.Context, teamID, iface string, phrases []string) (map[string]string, error)
	// TouchBatch refreshes last_used_at for phrases applied to a prompt.
	TouchBatch(ctx context.Context, teamID, iface string, phrases []string) error
	DeleteOlderThan(ctx context.Context, lastUsedBefore time.Time) (int64, error)
}

// NavigationTreeRepo persists navigation trees, one row per
// (team, interface). Node and edge writes are read-modify-write on the
// tree row so concurrent editors never interleave partial graphs.
type NavigationTreeRepo interface {
	Upsert(ctx context.Context, tree *core.NavigationTree) error
	GetByInterface(ctx context.Context, teamID, iface string) (*core.NavigationTree, error)
	GetByTreeID(ctx context.Context, treeID string) (*core.NavigationTree, error)
	UpsertNode(ctx context.Context, teamID, iface string, node core.TreeNode) error
	DeleteNode(ctx context.Context, teamID, iface, nodeID string) error
	UpsertEdge(ctx context.Context, teamID, iface string, edge core.TreeEdge) error
	DeleteEdge(ctx context.Context, teamID, iface, edgeID string) error
}

// TestCaseRepo persists saved graphs.
type TestCaseRepo interface {
	Upsert(ctx context.Context, tc *TestCase) error
	GetByKey(ctx context.Context, teamID, name string) (*TestCase, error)
	List(ctx context.Context, teamID string, filter TestCaseFilter) ([]*TestCase, error)
	Delete(ctx context.Context, teamID, name string) error
}

// ExecutionHistoryRepo persists terminal executions, append-mostly.
type ExecutionHistoryRepo interface {
	Upsert(ctx context.Context, entry *HistoryEntry) error
	GetByKey(ctx context.Context, executionID string) (*HistoryEntry, error)
	ListRecent(ctx context.Context, teamID string, limit int) ([]*HistoryEntry, error)
	DeleteOlderThan(ctx context.Context, createdBefore time.Time) (int64, error)
}

// Store aggregates the repositories of one backend.
type Store interface {
	PlanCache() PlanCacheRepo
	LearnedMappings() LearnedMappingRepo
	NavigationTrees() NavigationTreeRepo
	TestCases() TestCaseRepo
	ExecutionHistory() ExecutionHistoryRepo
}
