// Package config loads, merges, and validates the streamrig configuration.
package config

// Config is the fully merged and validated runtime configuration.
type Config struct {
	Safety *SafetyConfig `yaml:"safety"`
	Queue  *QueueConfig  `yaml:"queue"`
	Device *DeviceConfig `yaml:"device"`
	Server *ServerConfig `yaml:"server"`
	Notify *NotifyConfig `yaml:"notify"`
}

// Default returns the built-in configuration used when no YAML file exists.
func Default() *Config {
	return &Config{
		Safety: DefaultSafetyConfig(),
		Queue:  DefaultQueueConfig(),
		Device: DefaultDeviceConfig(),
		Server: DefaultServerConfig(),
		Notify: DefaultNotifyConfig(),
	}
}
