// Package config provides scenario configuration loading for episim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config contains a complete simulation scenario: parameter overrides for
// the disease model, ensemble settings, and ambient settings.
type Config struct {
	// Simulation holds parameter overrides applied on top of the
	// model's defaults (e.g. n, n_days, seed, beta).
	Simulation map[string]any `json:"simulation" yaml:"simulation"`

	// Ensemble configures batch execution.
	Ensemble EnsembleConfig `json:"ensemble" yaml:"ensemble"`

	// Logging configures log verbosity.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// EnsembleConfig configures multi-run execution.
type EnsembleConfig struct {
	// Runs is the number of ensemble runs. Ignored when IterPars is set.
	Runs int `json:"runs" yaml:"runs"`

	// Noise is the standard deviation of the per-run multiplicative
	// perturbation. Zero disables noise.
	Noise float64 `json:"noise" yaml:"noise"`

	// NoiseParameter names the parameter to perturb; empty means
	// detect automatically.
	NoiseParameter string `json:"noise_parameter,omitempty" yaml:"noise_parameter,omitempty"`

	// IterPars maps parameter names to per-run value sequences.
	IterPars map[string][]any `json:"iter_parameters,omitempty" yaml:"iter_parameters,omitempty"`

	// Combine merges the completed runs into one aggregate engine.
	Combine bool `json:"combine" yaml:"combine"`

	// Workers bounds run concurrency. Zero means one worker per CPU.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// LoggingConfig configures episim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Simulation: map[string]any{},
		Ensemble: EnsembleConfig{
			Runs:  4,
			Noise: 0.0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from path (when non-empty) and applies
// environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file, merged over
// the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Ensemble.Runs < 0 {
		return fmt.Errorf("ensemble.runs must not be negative, got %d", c.Ensemble.Runs)
	}
	if c.Ensemble.Noise < 0 {
		return fmt.Errorf("ensemble.noise must not be negative, got %v", c.Ensemble.Noise)
	}
	if c.Ensemble.Workers < 0 {
		return fmt.Errorf("ensemble.workers must not be negative, got %d", c.Ensemble.Workers)
	}
	for key, values := range c.Ensemble.IterPars {
		if len(values) == 0 {
			return fmt.Errorf("ensemble.iter_parameters.%s is empty", key)
		}
	}
	switch c.Logging.Level {
	case "", "info", "debug", "trace":
	default:
		return fmt.Errorf("logging.level must be info, debug, or trace, got %q", c.Logging.Level)
	}
	return nil
}

// applyEnvOverrides applies EPISIM_* environment variables on top of the
// loaded configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EPISIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EPISIM_RUNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ensemble.Runs = n
		}
	}
	if v := os.Getenv("EPISIM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Simulation["seed"] = int(n)
		}
	}
}
