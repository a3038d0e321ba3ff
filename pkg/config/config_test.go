package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sequential", cfg.Runner.Name)
	assert.Equal(t, 4, cfg.Runner.Workers)
	assert.Empty(t, cfg.State.Dir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "lattice", cfg.Telemetry.ServiceName)
}

func TestLoadFromFile(t *testing.T) {
	configContent := `
runner:
  name: pool
  workers: 8

state:
  dir: /var/lib/lattice

metrics:
  address: ":9100"

telemetry:
  enabled: true
  otlp_endpoint: "localhost:4317"
  service_name: "lattice-serving"

logging:
  level: debug
  pretty: true
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "pool", cfg.Runner.Name)
	assert.Equal(t, 8, cfg.Runner.Workers)
	assert.Equal(t, "/var/lib/lattice", cfg.State.Dir)
	assert.Equal(t, ":9100", cfg.Metrics.Address)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "lattice-serving", cfg.Telemetry.ServiceName)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Pretty)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LATTICE_RUNNER", "pool")
	t.Setenv("LATTICE_WORKERS", "16")
	t.Setenv("LATTICE_STATE_DIR", "/tmp/state")
	t.Setenv("LATTICE_LOG_LEVEL", "warn")
	t.Setenv("LATTICE_TRACING", "true")
	t.Setenv("LATTICE_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "pool", cfg.Runner.Name)
	assert.Equal(t, 16, cfg.Runner.Workers)
	assert.Equal(t, "/tmp/state", cfg.State.Dir)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
}

func TestValidation(t *testing.T) {
	cfg := &Config{Runner: RunnerConfig{Name: "warp", Workers: 1}}
	assert.Error(t, cfg.Validate())

	cfg = &Config{Runner: RunnerConfig{Name: "pool", Workers: 0}}
	assert.Error(t, cfg.Validate())

	cfg = &Config{
		Runner:    RunnerConfig{Name: "pool", Workers: 2},
		Telemetry: TelemetryConfig{Enabled: true},
	}
	assert.Error(t, cfg.Validate(), "tracing without an endpoint is a misconfiguration")

	cfg.Telemetry.OTLPEndpoint = "localhost:4317"
	assert.NoError(t, cfg.Validate())
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
