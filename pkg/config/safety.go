package config

// SafetyConfig contains the global safety caps enforced by the safety
// arbiter. Per-mapping overrides can only narrow these, never widen them.
type SafetyConfig struct {
	// MaxIntensity is the global intensity ceiling (1-100).
	MaxIntensity int `yaml:"max_intensity"`

	// MaxDurationMs is the global command duration ceiling in milliseconds.
	MaxDurationMs int `yaml:"max_duration_ms"`

	// MaxCommandsPerMinute is the global dispatch rate cap over a sliding
	// 60-second window. Only successful dispatches consume budget.
	MaxCommandsPerMinute int `yaml:"max_commands_per_minute"`

	// MaxCommandsPerUser caps dispatches attributed to a single user over
	// the same sliding window. Zero disables the per-user cap.
	MaxCommandsPerUser int `yaml:"max_commands_per_user"`

	// MaxCommandsPerDevice optionally extends the rate cap per device.
	// Zero disables the per-device cap.
	MaxCommandsPerDevice int `yaml:"max_commands_per_device"`

	// MinFollowerAgeDays optionally requires a minimum follow age for any
	// command to be admitted. Zero disables the check.
	MinFollowerAgeDays int `yaml:"min_follower_age_days"`

	// DefaultCooldowns applies when a mapping does not set its own.
	DefaultCooldowns CooldownDefaults `yaml:"default_cooldowns"`
}

// CooldownDefaults holds fallback cooldown tiers in milliseconds.
type CooldownDefaults struct {
	GlobalMs    int64 `yaml:"global_ms"`
	PerDeviceMs int64 `yaml:"per_device_ms"`
	PerUserMs   int64 `yaml:"per_user_ms"`
}

// DefaultSafetyConfig returns the built-in safety defaults.
func DefaultSafetyConfig() *SafetyConfig {
	return &SafetyConfig{
		MaxIntensity:         100,
		MaxDurationMs:        30000,
		MaxCommandsPerMinute: 60,
		MaxCommandsPerUser:   20,
	}
}
