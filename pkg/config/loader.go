package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// configFileName is the single YAML file read from the config directory.
const configFileName = "streamrig.yaml"

// Initialize loads, merges, and validates configuration from configDir.
// A missing streamrig.yaml is not an error: built-in defaults apply.
//
// Steps performed:
//  1. Read streamrig.yaml (if present)
//  2. Expand environment variables ({{.VAR}} template syntax)
//  3. Parse YAML into structs
//  4. Merge user values over built-in defaults
//  5. Validate the result
func Initialize(configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized successfully",
		"workers", cfg.Queue.WorkerCount,
		"max_queue_size", cfg.Queue.MaxQueueSize,
		"max_intensity", cfg.Safety.MaxIntensity,
		"max_commands_per_minute", cfg.Safety.MaxCommandsPerMinute)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(configDir, configFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("No configuration file found, using built-in defaults", "path", path)
			return cfg, nil
		}
		return nil, NewLoadError(configFileName, err)
	}

	data = ExpandEnv(data)

	var user Config
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, NewLoadError(configFileName, fmt.Errorf("%w: %w", ErrInvalidYAML, err))
	}

	// User values override defaults; unset user fields keep defaults.
	if err := mergo.Merge(cfg, &user, mergo.WithOverride); err != nil {
		return nil, NewLoadError(configFileName, fmt.Errorf("merging defaults: %w", err))
	}

	return cfg, nil
}
