package navigation

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/store"
)

const (
	defaultCacheSize = 128
	defaultCacheTTL  = 5 * time.Minute
)

type cacheEntry struct {
	graph    *UnifiedGraph
	storedAt time.Time
}

// Service builds unified graphs on demand and memoizes them per
// (team, interface). Entries expire after the TTL and are removed
// explicitly when a tree write invalidates them.
type Service struct {
	trees store.NavigationTreeRepo
	ttl   time.Duration
	cache *lru.Cache[string, cacheEntry]
}

// NewService creates a navigation service over the given tree repository.
// A non-positive ttl falls back to the 5 minute default.
func NewService(trees store.NavigationTreeRepo, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	// lru.New only errors on a non-positive size
	cache, _ := lru.New[string, cacheEntry](defaultCacheSize)
	return &Service{trees: trees, ttl: ttl, cache: cache}
}

func cacheKey(teamID, iface string) string { return teamID + "|" + iface }

// Graph returns the unified graph for (team, interface), building it from
// the stored tree on a miss or after expiry.
func (s *Service) Graph(ctx context.Context, teamID, iface string) (*UnifiedGraph, error) {
	key := cacheKey(teamID, iface)
	if entry, ok := s.cache.Get(key); ok {
		if time.Since(entry.storedAt) < s.ttl {
			return entry.graph, nil
		}
		s.cache.Remove(key)
	}
	tree, err := s.trees.GetByInterface(ctx, teamID, iface)
	if err != nil {
		return nil, err
	}
	g := BuildGraph(tree)
	s.cache.Add(key, cacheEntry{graph: g, storedAt: time.Now()})
	return g, nil
}

// Path resolves the graph and runs the pathfinder in one call.
func (s *Service) Path(ctx context.Context, teamID, iface, sourceID, target string) ([]core.Transition, error) {
	g, err := s.Graph(ctx, teamID, iface)
	if err != nil {
		return nil, err
	}
	return g.FindPath(sourceID, target)
}

// Invalidate drops the cached graph for one (team, interface). Tree write
// endpoints and the NOTIFY listener call this on every mutation.
func (s *Service) Invalidate(teamID, iface string) {
	s.cache.Remove(cacheKey(teamID, iface))
}

// Purge drops every cached graph.
func (s *Service) Purge() {
	s.cache.Purge()
}
