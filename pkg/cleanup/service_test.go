package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/core"
	"github.com/virtualpytest/pilot/pkg/store"
)

type fakeReaper struct {
	maxIdle time.Duration
	calls   int
}

func (f *fakeReaper) ReapIdle(maxIdle time.Duration) int {
	f.maxIdle = maxIdle
	f.calls++
	return 1
}

func testRetention() *config.RetentionConfig {
	return &config.RetentionConfig{
		PlanCacheMaxAge:      90 * 24 * time.Hour,
		HistoryRetentionDays: 180,
		EventTTL:             time.Hour,
		SessionMaxIdle:       4 * time.Hour,
		CleanupInterval:      time.Hour,
	}
}

func TestService_EvictsStalePlanCacheEntries(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	require.NoError(t, st.PlanCache().Upsert(ctx, &store.PlanCacheEntry{
		Fingerprint: "stale", TeamID: "team-a", Prompt: "go to live",
		LastUsed: time.Now().Add(-120 * 24 * time.Hour),
	}))
	require.NoError(t, st.PlanCache().Upsert(ctx, &store.PlanCacheEntry{
		Fingerprint: "fresh", TeamID: "team-a", Prompt: "go to settings",
		LastUsed: time.Now(),
	}))

	svc := NewService(testRetention(), st, nil)
	svc.runAll(ctx)

	_, err := st.PlanCache().GetByKey(ctx, "stale", "team-a")
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	_, err = st.PlanCache().GetByKey(ctx, "fresh", "team-a")
	assert.NoError(t, err)
}

func TestService_EvictsStaleLearnedMappings(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	require.NoError(t, st.LearnedMappings().Upsert(ctx, &store.LearnedMapping{
		TeamID: "team-a", Interface: "horizon_android_tv",
		Phrase: "the sports channel", ResolvedNode: "live_espn",
	}))

	cfg := testRetention()
	cfg.PlanCacheMaxAge = 0
	svc := NewService(cfg, st, nil)

	// Zero max age makes every entry stale.
	time.Sleep(5 * time.Millisecond)
	svc.runAll(ctx)

	resolved, err := st.LearnedMappings().GetBatch(ctx, "team-a", "horizon_android_tv",
		[]string{"the sports channel"})
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestService_DeletesOldHistory(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	require.NoError(t, st.ExecutionHistory().Upsert(ctx, &store.HistoryEntry{
		ExecutionID: "old", TeamID: "team-a", Kind: core.KindTestCase,
		Status: core.StatusCompleted, CreatedAt: time.Now().AddDate(0, 0, -200),
	}))
	require.NoError(t, st.ExecutionHistory().Upsert(ctx, &store.HistoryEntry{
		ExecutionID: "recent", TeamID: "team-a", Kind: core.KindTestCase,
		Status: core.StatusCompleted, CreatedAt: time.Now(),
	}))

	svc := NewService(testRetention(), st, nil)
	svc.runAll(ctx)

	_, err := st.ExecutionHistory().GetByKey(ctx, "old")
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	_, err = st.ExecutionHistory().GetByKey(ctx, "recent")
	assert.NoError(t, err)
}

func TestService_ReapsIdleSessions(t *testing.T) {
	reaper := &fakeReaper{}
	svc := NewService(testRetention(), store.NewMemoryStore(), reaper)
	svc.runAll(context.Background())

	assert.Equal(t, 1, reaper.calls)
	assert.Equal(t, 4*time.Hour, reaper.maxIdle)
}

func TestService_StartStop(t *testing.T) {
	cfg := testRetention()
	cfg.CleanupInterval = 10 * time.Millisecond
	reaper := &fakeReaper{}
	svc := NewService(cfg, store.NewMemoryStore(), reaper)

	svc.Start(context.Background())
	time.Sleep(35 * time.Millisecond)
	svc.Stop()

	assert.GreaterOrEqual(t, reaper.calls, 2, "loop runs immediately and then on every tick")
}
