package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/virtualpytest/pilot/pkg/core"
)

// MemoryStore is the in-memory Store used by tests and by host processes
// running without a server database. All repositories share one lock; the
// store is safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	// Keys mirror the primary keys of the Postgres tables:
	// fingerprint|team, team|iface|phrase, team|iface, team|name, execution_id.
	planCache map[string]*PlanCacheEntry
	mappings  map[string]*LearnedMapping
	trees     map[string]*core.NavigationTree
	testcases map[string]*TestCase
	history   map[string]*HistoryEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		planCache: make(map[string]*PlanCacheEntry),
		mappings:  make(map[string]*LearnedMapping),
		trees:     make(map[string]*core.NavigationTree),
		testcases: make(map[string]*TestCase),
		history:   make(map[string]*HistoryEntry),
	}
}

func (s *MemoryStore) PlanCache() PlanCacheRepo { return (*memPlanCache)(s) }

func (s *MemoryStore) LearnedMappings() LearnedMappingRepo { return (*memMappings)(s) }

func (s *MemoryStore) NavigationTrees() NavigationTreeRepo { return (*memTrees)(s) }

func (s *MemoryStore) TestCases() TestCaseRepo { return (*memTestCases)(s) }

func (s *MemoryStore) ExecutionHistory() ExecutionHistoryRepo { return (*memHistory)(s) }

// clone deep-copies an entity through JSON so callers never alias the
// store's internal state.
func clone[T any](src *T) *T {
	if src == nil {
		return nil
	}
	raw, err := json.Marshal(src)
	if err != nil {
		panic(fmt.Sprintf("store: clone marshal: %v", err))
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(fmt.Sprintf("store: clone unmarshal: %v", err))
	}
	return out
}

func planKey(fingerprint, teamID string) string { return fingerprint + "|" + teamID }

func mappingKey(teamID, iface, phrase string) string {
	return teamID + "|" + iface + "|" + phrase
}

func treeKey(teamID, iface string) string { return teamID + "|" + iface }

func caseKey(teamID, name string) string { return teamID + "|" + name }

// --- plan cache ---

type memPlanCache MemoryStore

func (s *memPlanCache) Upsert(_ context.Context, entry *PlanCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := planKey(entry.Fingerprint, entry.TeamID)
	cp := clone(entry)
	if existing, ok := s.planCache[key]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.LastUsed.IsZero() {
		cp.LastUsed = time.Now()
	}
	s.planCache[key] = cp
	return nil
}

func (s *memPlanCache) GetByKey(_ context.Context, fingerprint, teamID string) (*PlanCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.planCache[planKey(fingerprint, teamID)]
	if !ok {
		return nil, core.Errf(core.KindNotFound, "plan cache entry %s not found", fingerprint)
	}
	return clone(entry), nil
}

func (s *memPlanCache) Touch(_ context.Context, fingerprint, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.planCache[planKey(fingerprint, teamID)]
	if !ok {
		return core.Errf(core.KindNotFound, "plan cache entry %s not found", fingerprint)
	}
	entry.UseCount++
	entry.LastUsed = time.Now()
	return nil
}

func (s *memPlanCache) DeleteOlderThan(_ context.Context, lastUsedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, entry := range s.planCache {
		if entry.LastUsed.Before(lastUsedBefore) {
			delete(s.planCache, key)
			n++
		}
	}
	return n, nil
}

// --- learned mappings ---

type memMappings MemoryStore

func (s *memMappings) Upsert(_ context.Context, m *LearnedMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := mappingKey(m.TeamID, m.Interface, m.Phrase)
	now := time.Now()
	if existing, ok := s.mappings[key]; ok {
		existing.ResolvedNode = m.ResolvedNode
		existing.UsageCount++
		existing.LastUsedAt = now
		return nil
	}
	cp := clone(m)
	cp.UsageCount = 1
	cp.CreatedAt = now
	cp.LastUsedAt = now
	s.mappings[key] = cp
	return nil
}

func (s *memMappings) GetBatch(_ context.Context, teamID, iface string, phrases []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string)
	for _, phrase := range phrases {
		if m, ok := s.mappings[mappingKey(teamID, iface, phrase)]; ok {
			out[phrase] = m.ResolvedNode
		}
	}
	return out, nil
}

func (s *memMappings) TouchBatch(_ context.Context, teamID, iface string, phrases []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, phrase := range phrases {
		if m, ok := s.mappings[mappingKey(teamID, iface, phrase)]; ok {
			m.LastUsedAt = now
		}
	}
	return nil
}

func (s *memMappings) DeleteOlderThan(_ context.Context, lastUsedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, m := range s.mappings {
		if m.LastUsedAt.Before(lastUsedBefore) {
			delete(s.mappings, key)
			n++
		}
	}
	return n, nil
}

// --- navigation trees ---

type memTrees MemoryStore

func (s *memTrees) Upsert(_ context.Context, tree *core.NavigationTree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := clone(tree)
	cp.UpdatedAt = time.Now()
	s.trees[treeKey(tree.TeamID, tree.Interface)] = cp
	return nil
}

func (s *memTrees) GetByInterface(_ context.Context, teamID, iface string) (*core.NavigationTree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tree, ok := s.trees[treeKey(teamID, iface)]
	if !ok {
		return nil, core.Errf(core.KindNotFound, "navigation tree for interface %s not found", iface)
	}
	return clone(tree), nil
}

func (s *memTrees) GetByTreeID(_ context.Context, treeID string) (*core.NavigationTree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tree := range s.trees {
		if tree.TreeID == treeID {
			return clone(tree), nil
		}
	}
	return nil, core.Errf(core.KindNotFound, "navigation tree %s not found", treeID)
}

func (s *memTrees) mutate(teamID, iface string, fn func(*core.NavigationTree)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree, ok := s.trees[treeKey(teamID, iface)]
	if !ok {
		return core.Errf(core.KindNotFound, "navigation tree for interface %s not found", iface)
	}
	fn(tree)
	return nil
}

func (s *memTrees) UpsertNode(_ context.Context, teamID, iface string, node core.TreeNode) error {
	return s.mutate(teamID, iface, func(tree *core.NavigationTree) { applyNodeUpsert(tree, node) })
}

func (s *memTrees) DeleteNode(_ context.Context, teamID, iface, nodeID string) error {
	return s.mutate(teamID, iface, func(tree *core.NavigationTree) { applyNodeDelete(tree, nodeID) })
}

func (s *memTrees) UpsertEdge(_ context.Context, teamID, iface string, edge core.TreeEdge) error {
	return s.mutate(teamID, iface, func(tree *core.NavigationTree) { applyEdgeUpsert(tree, edge) })
}

func (s *memTrees) DeleteEdge(_ context.Context, teamID, iface, edgeID string) error {
	return s.mutate(teamID, iface, func(tree *core.NavigationTree) { applyEdgeDelete(tree, edgeID) })
}

// --- testcases ---

type memTestCases MemoryStore

func (s *memTestCases) Upsert(_ context.Context, tc *TestCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := caseKey(tc.TeamID, tc.Name)
	cp := clone(tc)
	now := time.Now()
	if existing, ok := s.testcases[key]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.testcases[key] = cp
	return nil
}

func (s *memTestCases) GetByKey(_ context.Context, teamID, name string) (*TestCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tc, ok := s.testcases[caseKey(teamID, name)]
	if !ok {
		return nil, core.Errf(core.KindNotFound, "testcase %s not found", name)
	}
	return clone(tc), nil
}

func (s *memTestCases) List(_ context.Context, teamID string, filter TestCaseFilter) ([]*TestCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*TestCase
	for _, tc := range s.testcases {
		if tc.TeamID != teamID {
			continue
		}
		if filter.Interface != "" && tc.Interface != filter.Interface {
			continue
		}
		out = append(out, clone(tc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *memTestCases) Delete(_ context.Context, teamID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.testcases, caseKey(teamID, name))
	return nil
}

// --- execution history ---

type memHistory MemoryStore

func (s *memHistory) Upsert(_ context.Context, entry *HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := clone(entry)
	if existing, ok := s.history[entry.ExecutionID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.history[entry.ExecutionID] = cp
	return nil
}

func (s *memHistory) GetByKey(_ context.Context, executionID string) (*HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.history[executionID]
	if !ok {
		return nil, core.Errf(core.KindNotFound, "execution %s not found", executionID)
	}
	return clone(entry), nil
}

func (s *memHistory) ListRecent(_ context.Context, teamID string, limit int) ([]*HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*HistoryEntry
	for _, entry := range s.history {
		if teamID == "" || entry.TeamID == teamID {
			out = append(out, clone(entry))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ExecutionID < out[j].ExecutionID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memHistory) DeleteOlderThan(_ context.Context, createdBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, entry := range s.history {
		if entry.CreatedAt.Before(createdBefore) {
			delete(s.history, id)
			n++
		}
	}
	return n, nil
}
