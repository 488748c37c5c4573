package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualpytest/pilot/pkg/core"
)

func planGraphFixture() core.Graph {
	return core.Graph{
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart, Data: core.NodeData{Label: "START"}},
			{ID: "nav1", Type: core.NodeNavigation, Data: core.NodeData{Label: "navigation_1:settings", TargetNode: "settings"}},
			{ID: "success", Type: core.NodeSuccess, Data: core.NodeData{Label: "SUCCESS"}},
		},
		Edges: []core.Edge{
			{ID: "e1", Source: "start", Target: "nav1", SourceHandle: core.HandleSuccess},
			{ID: "e2", Source: "nav1", Target: "success", SourceHandle: core.HandleSuccess},
		},
	}
}

func treeFixture(teamID, iface, treeID string) *core.NavigationTree {
	return &core.NavigationTree{
		TeamID:    teamID,
		Interface: iface,
		TreeID:    treeID,
		Nodes: []core.TreeNode{
			{ID: "n1", Label: "home"},
			{ID: "n2", Label: "settings"},
			{ID: "n3", Label: "profile"},
		},
		Edges: []core.TreeEdge{
			{ID: "e1", Source: "n1", Target: "n2", Actions: []core.Action{{Command: "click_element", Params: map[string]any{"element_id": "settings"}}}},
			{ID: "e2", Source: "n2", Target: "n3", Actions: []core.Action{{Command: "click_element", Params: map[string]any{"element_id": "profile"}}}},
		},
	}
}

// runStoreTests exercises the Store contract. Both implementations run the
// same suite so their semantics cannot drift apart.
func runStoreTests(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("PlanCacheLifecycle", func(t *testing.T) {
		repo := s.PlanCache()

		_, err := repo.GetByKey(ctx, "missing", "team-pc")
		require.Error(t, err)
		assert.True(t, core.IsKind(err, core.KindNotFound))

		entry := &PlanCacheEntry{
			Fingerprint: "fp-1",
			TeamID:      "team-pc",
			Prompt:      "go to settings",
			Analysis:    "navigate to the settings node",
			Graph:       planGraphFixture(),
			UseCount:    1,
		}
		require.NoError(t, repo.Upsert(ctx, entry))

		got, err := repo.GetByKey(ctx, "fp-1", "team-pc")
		require.NoError(t, err)
		assert.Equal(t, "go to settings", got.Prompt)
		assert.Equal(t, entry.Graph, got.Graph)
		assert.Equal(t, int64(1), got.UseCount)
		assert.False(t, got.CreatedAt.IsZero())
		assert.False(t, got.LastUsed.IsZero())
		firstCreated := got.CreatedAt

		require.NoError(t, repo.Touch(ctx, "fp-1", "team-pc"))
		got, err = repo.GetByKey(ctx, "fp-1", "team-pc")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.UseCount)

		err = repo.Touch(ctx, "missing", "team-pc")
		assert.True(t, core.IsKind(err, core.KindNotFound))

		// Re-storing the same fingerprint replaces content but keeps created_at
		entry.Prompt = "go to settings please"
		require.NoError(t, repo.Upsert(ctx, entry))
		got, err = repo.GetByKey(ctx, "fp-1", "team-pc")
		require.NoError(t, err)
		assert.Equal(t, "go to settings please", got.Prompt)
		assert.WithinDuration(t, firstCreated, got.CreatedAt, time.Second)

		n, err := repo.DeleteOlderThan(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))
		_, err = repo.GetByKey(ctx, "fp-1", "team-pc")
		assert.True(t, core.IsKind(err, core.KindNotFound))
	})

	t.Run("LearnedMappingLifecycle", func(t *testing.T) {
		repo := s.LearnedMappings()

		require.NoError(t, repo.Upsert(ctx, &LearnedMapping{
			TeamID: "team-lm", Interface: "horizon_android_tv",
			Phrase: "setings", ResolvedNode: "settings",
		}))
		require.NoError(t, repo.Upsert(ctx, &LearnedMapping{
			TeamID: "team-lm", Interface: "horizon_android_tv",
			Phrase: "hme", ResolvedNode: "home",
		}))

		got, err := repo.GetBatch(ctx, "team-lm", "horizon_android_tv", []string{"setings", "hme", "unknown"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"setings": "settings", "hme": "home"}, got)

		// Re-confirming a phrase overrides the resolution
		require.NoError(t, repo.Upsert(ctx, &LearnedMapping{
			TeamID: "team-lm", Interface: "horizon_android_tv",
			Phrase: "setings", ResolvedNode: "settings_menu",
		}))
		got, err = repo.GetBatch(ctx, "team-lm", "horizon_android_tv", []string{"setings"})
		require.NoError(t, err)
		assert.Equal(t, "settings_menu", got["setings"])

		// Other interfaces see nothing
		got, err = repo.GetBatch(ctx, "team-lm", "other_iface", []string{"setings"})
		require.NoError(t, err)
		assert.Empty(t, got)

		require.NoError(t, repo.TouchBatch(ctx, "team-lm", "horizon_android_tv", []string{"setings", "hme"}))

		n, err := repo.DeleteOlderThan(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(2))
	})

	t.Run("NavigationTreeLifecycle", func(t *testing.T) {
		repo := s.NavigationTrees()

		_, err := repo.GetByInterface(ctx, "team-nt", "horizon_android_tv")
		assert.True(t, core.IsKind(err, core.KindNotFound))

		tree := treeFixture("team-nt", "horizon_android_tv", "tree-nt-1")
		require.NoError(t, repo.Upsert(ctx, tree))

		got, err := repo.GetByInterface(ctx, "team-nt", "horizon_android_tv")
		require.NoError(t, err)
		assert.Equal(t, tree.Nodes, got.Nodes)
		assert.Equal(t, tree.Edges, got.Edges)
		assert.Equal(t, "tree-nt-1", got.TreeID)
		assert.False(t, got.UpdatedAt.IsZero())

		byID, err := repo.GetByTreeID(ctx, "tree-nt-1")
		require.NoError(t, err)
		assert.Equal(t, got.Nodes, byID.Nodes)

		_, err = repo.GetByTreeID(ctx, "tree-nope")
		assert.True(t, core.IsKind(err, core.KindNotFound))

		// Node add, then in-place replace
		require.NoError(t, repo.UpsertNode(ctx, "team-nt", "horizon_android_tv", core.TreeNode{ID: "n4", Label: "search"}))
		require.NoError(t, repo.UpsertNode(ctx, "team-nt", "horizon_android_tv", core.TreeNode{ID: "n4", Label: "global_search"}))
		got, err = repo.GetByInterface(ctx, "team-nt", "horizon_android_tv")
		require.NoError(t, err)
		require.Len(t, got.Nodes, 4)
		assert.Equal(t, "global_search", got.Nodes[3].Label)

		require.NoError(t, repo.UpsertEdge(ctx, "team-nt", "horizon_android_tv", core.TreeEdge{ID: "e3", Source: "n1", Target: "n4"}))
		got, err = repo.GetByInterface(ctx, "team-nt", "horizon_android_tv")
		require.NoError(t, err)
		assert.Len(t, got.Edges, 3)

		require.NoError(t, repo.DeleteEdge(ctx, "team-nt", "horizon_android_tv", "e3"))
		got, err = repo.GetByInterface(ctx, "team-nt", "horizon_android_tv")
		require.NoError(t, err)
		assert.Len(t, got.Edges, 2)

		// Deleting a node cascades to its edges
		require.NoError(t, repo.DeleteNode(ctx, "team-nt", "horizon_android_tv", "n2"))
		got, err = repo.GetByInterface(ctx, "team-nt", "horizon_android_tv")
		require.NoError(t, err)
		assert.Len(t, got.Nodes, 3)
		assert.Empty(t, got.Edges)

		err = repo.UpsertNode(ctx, "team-nt", "missing_iface", core.TreeNode{ID: "x", Label: "x"})
		assert.True(t, core.IsKind(err, core.KindNotFound))
	})

	t.Run("TestCaseLifecycle", func(t *testing.T) {
		repo := s.TestCases()

		for _, name := range []string{"zap channels", "check vod", "audio switch"} {
			require.NoError(t, repo.Upsert(ctx, &TestCase{
				TeamID: "team-tc", Name: name,
				Interface: "horizon_android_tv", Graph: planGraphFixture(),
			}))
		}
		require.NoError(t, repo.Upsert(ctx, &TestCase{
			TeamID: "team-tc", Name: "web smoke",
			Interface: "web_player", Graph: planGraphFixture(),
		}))

		got, err := repo.GetByKey(ctx, "team-tc", "zap channels")
		require.NoError(t, err)
		assert.Equal(t, "horizon_android_tv", got.Interface)
		assert.Equal(t, planGraphFixture(), got.Graph)
		assert.False(t, got.CreatedAt.IsZero())

		all, err := repo.List(ctx, "team-tc", TestCaseFilter{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		// Sorted by name
		assert.Equal(t, "audio switch", all[0].Name)
		assert.Equal(t, "check vod", all[1].Name)

		filtered, err := repo.List(ctx, "team-tc", TestCaseFilter{Interface: "web_player"})
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		assert.Equal(t, "web smoke", filtered[0].Name)

		limited, err := repo.List(ctx, "team-tc", TestCaseFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		require.NoError(t, repo.Delete(ctx, "team-tc", "web smoke"))
		_, err = repo.GetByKey(ctx, "team-tc", "web smoke")
		assert.True(t, core.IsKind(err, core.KindNotFound))
		// Deleting twice stays quiet
		require.NoError(t, repo.Delete(ctx, "team-tc", "web smoke"))
	})

	t.Run("ExecutionHistoryLifecycle", func(t *testing.T) {
		repo := s.ExecutionHistory()
		now := time.Now()
		started := now.Add(-2 * time.Minute)

		for i, e := range []*HistoryEntry{
			{ExecutionID: "exec-1", TeamID: "team-eh", Kind: core.KindNavigation, Status: core.StatusCompleted, CreatedAt: now.Add(-2 * time.Minute)},
			{ExecutionID: "exec-2", TeamID: "team-eh", Kind: core.KindActionBatch, Status: core.StatusFailed, CreatedAt: now.Add(-time.Minute)},
			{ExecutionID: "exec-3", TeamID: "team-eh-other", Kind: core.KindAIPrompt, Status: core.StatusCompleted, CreatedAt: now},
		} {
			e.Progress = (i + 1) * 10
			require.NoError(t, repo.Upsert(ctx, e))
		}

		got, err := repo.GetByKey(ctx, "exec-2")
		require.NoError(t, err)
		assert.Equal(t, core.StatusFailed, got.Status)
		assert.Equal(t, 20, got.Progress)
		assert.Nil(t, got.StartedAt)

		// Terminal re-upsert updates status fields and keeps created_at
		require.NoError(t, repo.Upsert(ctx, &HistoryEntry{
			ExecutionID: "exec-2", TeamID: "team-eh", Kind: core.KindActionBatch,
			Status: core.StatusFailed, Progress: 100, StartedAt: &started,
			Result:    map[string]any{"blocks_run": float64(3)},
			ErrorKind: core.KindTimeout, ErrorMsg: "action timed out",
		}))
		got, err = repo.GetByKey(ctx, "exec-2")
		require.NoError(t, err)
		assert.Equal(t, 100, got.Progress)
		require.NotNil(t, got.StartedAt)
		assert.WithinDuration(t, started, *got.StartedAt, time.Second)
		assert.Equal(t, map[string]any{"blocks_run": float64(3)}, got.Result)
		assert.Equal(t, core.KindTimeout, got.ErrorKind)
		assert.WithinDuration(t, now.Add(-time.Minute), got.CreatedAt, time.Second)

		recent, err := repo.ListRecent(ctx, "team-eh", 0)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "exec-2", recent[0].ExecutionID)
		assert.Equal(t, "exec-1", recent[1].ExecutionID)

		all, err := repo.ListRecent(ctx, "", 2)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "exec-3", all[0].ExecutionID)

		n, err := repo.DeleteOlderThan(ctx, now.Add(-90*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		_, err = repo.GetByKey(ctx, "exec-1")
		assert.True(t, core.IsKind(err, core.KindNotFound))
	})
}
