package config

import "time"

// DeviceConfig contains device backend API client configuration.
type DeviceConfig struct {
	// BaseURL is the device control API root, e.g. "https://api.example.com/v1".
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the bearer token.
	APIKeyEnv string `yaml:"api_key_env"`

	// RequestTimeout bounds a single HTTP request to the device API.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// RequestsPerSecond optionally smooths outgoing calls per device with a
	// client-side limiter. Zero disables smoothing.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// DefaultDeviceConfig returns the built-in device client defaults.
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		APIKeyEnv:      "DEVICE_API_KEY",
		RequestTimeout: 10 * time.Second,
	}
}
