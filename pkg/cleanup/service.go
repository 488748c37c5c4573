// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/store"
)

// SessionReaper releases device sessions idle past the given duration and
// reports how many were reaped.
type SessionReaper interface {
	ReapIdle(maxIdle time.Duration) int
}

// Service periodically enforces retention policies:
//   - Evicts plan cache entries not used within PlanCacheMaxAge
//   - Evicts learned mappings not used within PlanCacheMaxAge
//   - Deletes execution history rows older than HistoryRetentionDays
//   - Releases device sessions idle longer than SessionMaxIdle
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config   *config.RetentionConfig
	plans    store.PlanCacheRepo
	mappings store.LearnedMappingRepo
	history  store.ExecutionHistoryRepo
	sessions SessionReaper

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service. sessions may be nil when the
// process holds no control sessions.
func NewService(
	cfg *config.RetentionConfig,
	st store.Store,
	sessions SessionReaper,
) *Service {
	return &Service{
		config:   cfg,
		plans:    st.PlanCache(),
		mappings: st.LearnedMappings(),
		history:  st.ExecutionHistory(),
		sessions: sessions,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"plan_cache_max_age", s.config.PlanCacheMaxAge,
		"history_retention_days", s.config.HistoryRetentionDays,
		"session_max_idle", s.config.SessionMaxIdle,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.evictStalePlans(ctx)
	s.evictStaleMappings(ctx)
	s.deleteOldHistory(ctx)
	s.reapIdleSessions()
}

func (s *Service) evictStalePlans(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.PlanCacheMaxAge)
	count, err := s.plans.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: plan cache eviction failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: evicted stale plan cache entries", "count", count)
	}
}

func (s *Service) evictStaleMappings(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.PlanCacheMaxAge)
	count, err := s.mappings.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: learned mapping eviction failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: evicted stale learned mappings", "count", count)
	}
}

func (s *Service) deleteOldHistory(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.config.HistoryRetentionDays)
	count, err := s.history.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: history cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted old execution history", "count", count)
	}
}

func (s *Service) reapIdleSessions() {
	if s.sessions == nil {
		return
	}
	count := s.sessions.ReapIdle(s.config.SessionMaxIdle)
	if count > 0 {
		slog.Info("Retention: released idle sessions", "count", count)
	}
}
