package config

import "time"

// RetentionConfig controls data retention and cleanup behavior on the server.
type RetentionConfig struct {
	// PlanCacheMaxAge is the maximum time since a plan cache entry was last
	// used before cleanup removes it.
	PlanCacheMaxAge time.Duration `yaml:"plan_cache_max_age"`

	// HistoryRetentionDays is how many days to keep execution history rows.
	HistoryRetentionDays int `yaml:"history_retention_days"`

	// EventTTL is the maximum age of event rows before deletion.
	EventTTL time.Duration `yaml:"event_ttl"`

	// SessionMaxIdle is how long a device session may go unused before the
	// cleanup loop releases it.
	SessionMaxIdle time.Duration `yaml:"session_max_idle"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		PlanCacheMaxAge:      90 * 24 * time.Hour,
		HistoryRetentionDays: 180,
		EventTTL:             1 * time.Hour,
		SessionMaxIdle:       4 * time.Hour,
		CleanupInterval:      1 * time.Hour,
	}
}
