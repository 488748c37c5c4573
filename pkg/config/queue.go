package config

import "time"

// QueueConfig controls the per-device command queues and the execution
// registry on the host side.
type QueueConfig struct {
	// MailboxSize is the capacity of each device's FIFO mailbox. A full
	// mailbox rejects submissions with device_busy.
	MailboxSize int `yaml:"mailbox_size"`

	// ExecutionTimeout is the hard cap for one execution. Cap expiry
	// transitions the record to failed with error_kind=timeout.
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`

	// ScriptExecutionTimeout is the extended hard cap for script-kind
	// executions.
	ScriptExecutionTimeout time.Duration `yaml:"script_execution_timeout"`

	// RecordRetention is how long terminal execution records stay readable
	// before the janitor evicts them.
	RecordRetention time.Duration `yaml:"record_retention"`

	// JanitorInterval is how often the registry sweeps for evictable
	// terminal records.
	JanitorInterval time.Duration `yaml:"janitor_interval"`

	// GracefulShutdownTimeout is the max time to wait for in-flight
	// executions to drain during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MailboxSize:             16,
		ExecutionTimeout:        1 * time.Hour,
		ScriptExecutionTimeout:  2 * time.Hour,
		RecordRetention:         5 * time.Minute,
		JanitorInterval:         30 * time.Second,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}
