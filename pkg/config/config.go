// Package config provides configuration structures and loading logic for the
// pipeline launcher.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the global configuration for a launcher process.
type Config struct {
	Runner  RunnerConfig  `yaml:"runner"`
	State   StateConfig   `yaml:"state"`
	Metrics MetricsConfig `yaml:"metrics"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RunnerConfig selects the execution backend.
type RunnerConfig struct {
	Name    string `yaml:"name"`
	Workers int    `yaml:"workers"`
}

// StateConfig holds configuration for persisted actor state. An empty Dir
// keeps state in memory for the lifetime of the process.
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// MetricsConfig holds configuration for the Prometheus endpoint. An empty
// address disables it.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// TelemetryConfig holds configuration for OpenTelemetry span export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads configuration from a file and applies environment variable
// overrides. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Runner: RunnerConfig{
			Name:    "sequential",
			Workers: 4,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "lattice",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("LATTICE_RUNNER"); val != "" {
		cfg.Runner.Name = val
	}
	if val := os.Getenv("LATTICE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil {
			cfg.Runner.Workers = workers
		}
	}

	if val := os.Getenv("LATTICE_STATE_DIR"); val != "" {
		cfg.State.Dir = val
	}
	if val := os.Getenv("LATTICE_METRICS_ADDR"); val != "" {
		cfg.Metrics.Address = val
	}

	if val := os.Getenv("LATTICE_TRACING"); val == "true" {
		cfg.Telemetry.Enabled = true
	}
	if val := os.Getenv("LATTICE_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}

	if val := os.Getenv("LATTICE_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Runner.Name {
	case "sequential", "pool":
	default:
		return fmt.Errorf("unknown runner %q", c.Runner.Name)
	}
	if c.Runner.Workers < 1 {
		return fmt.Errorf("runner workers must be positive, got %d", c.Runner.Workers)
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry enabled without otlp_endpoint")
	}
	return nil
}
