package config

import "fmt"

// validate checks the merged configuration for out-of-range values.
func validate(cfg *Config) error {
	if cfg.Safety == nil || cfg.Queue == nil || cfg.Device == nil {
		return NewValidationError("config", "", ErrMissingRequiredField)
	}

	s := cfg.Safety
	if s.MaxIntensity < 1 || s.MaxIntensity > 100 {
		return NewValidationError("safety", "max_intensity",
			fmt.Errorf("%w: %d not in [1,100]", ErrInvalidValue, s.MaxIntensity))
	}
	if s.MaxDurationMs < 300 {
		return NewValidationError("safety", "max_duration_ms",
			fmt.Errorf("%w: %d below minimum 300", ErrInvalidValue, s.MaxDurationMs))
	}
	if s.MaxCommandsPerMinute < 1 {
		return NewValidationError("safety", "max_commands_per_minute",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if s.MaxCommandsPerUser < 0 || s.MaxCommandsPerDevice < 0 || s.MinFollowerAgeDays < 0 {
		return NewValidationError("safety", "",
			fmt.Errorf("%w: negative limit", ErrInvalidValue))
	}

	q := cfg.Queue
	if q.WorkerCount < 1 {
		return NewValidationError("queue", "worker_count",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if q.MaxQueueSize < 1 {
		return NewValidationError("queue", "max_queue_size",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if q.MaxRetries < 0 {
		return NewValidationError("queue", "max_retries",
			fmt.Errorf("%w: negative", ErrInvalidValue))
	}
	if q.PollInterval <= 0 || q.RetryBackoffBase <= 0 || q.ItemBudget <= 0 {
		return NewValidationError("queue", "",
			fmt.Errorf("%w: intervals must be positive", ErrInvalidValue))
	}

	d := cfg.Device
	if d.RequestTimeout <= 0 {
		return NewValidationError("device", "request_timeout",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if d.RequestsPerSecond < 0 {
		return NewValidationError("device", "requests_per_second",
			fmt.Errorf("%w: negative", ErrInvalidValue))
	}

	if cfg.Notify != nil && cfg.Notify.Enabled && cfg.Notify.Channel == "" {
		return NewValidationError("notify", "channel", ErrMissingRequiredField)
	}

	return nil
}
