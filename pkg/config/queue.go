package config

import "time"

// QueueConfig contains dispatch queue and worker pool configuration.
type QueueConfig struct {
	// WorkerCount is the number of dispatcher goroutines.
	WorkerCount int `yaml:"worker_count"`

	// MaxQueueSize bounds the in-memory queue. Submissions above this are
	// refused with queue_full.
	MaxQueueSize int `yaml:"max_queue_size"`

	// PollInterval is the base interval workers wait when no item is ready.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// MaxRetries is the retry cap for transient device errors per item.
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoffBase is the initial retry backoff; doubles each attempt.
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`

	// ItemBudget is the wall-clock budget for one item's whole retry chain.
	ItemBudget time.Duration `yaml:"item_budget"`

	// GracefulShutdownTimeout is the max time to wait for in-flight
	// dispatches to complete during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             4,
		MaxQueueSize:            1000,
		PollInterval:            100 * time.Millisecond,
		PollIntervalJitter:      25 * time.Millisecond,
		MaxRetries:              3,
		RetryBackoffBase:        500 * time.Millisecond,
		ItemBudget:              30 * time.Second,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}
