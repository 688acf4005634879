package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveflow/hiveflow/store"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 10, cfg.Swarm.MaxHandoffs)
	assert.Equal(t, 1, cfg.Swarm.RepeatTolerance)
	assert.Equal(t, 3, cfg.Routing.BaseThreshold)
	assert.Equal(t, 0.25, cfg.Routing.Step)
	assert.Equal(t, 0.6, cfg.HITL.PauseThreshold)
	assert.Equal(t, "development", cfg.HITL.Environment)
	assert.Equal(t, store.StoreTypeMemory, cfg.Store.Type)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
swarm:
  max_handoffs: 5
  session_retention: 12h
routing:
  step: 0.5
hitl:
  environment: production
store:
  type: sqlite
  sqlite:
    path: /var/lib/hiveflow/store.db
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Swarm.MaxHandoffs)
	assert.Equal(t, 12*time.Hour, cfg.Swarm.SessionRetention)
	assert.Equal(t, 0.5, cfg.Routing.Step)
	assert.Equal(t, "production", cfg.HITL.Environment)
	assert.Equal(t, store.StoreTypeSQLite, cfg.Store.Type)
	assert.Equal(t, "/var/lib/hiveflow/store.db", cfg.Store.SQLite.Path)

	// Untouched sections keep their defaults.
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 1, cfg.Swarm.RepeatTolerance)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	t.Setenv("HIVEFLOW_LOG_LEVEL", "warn")
	t.Setenv("HIVEFLOW_SWARM_MAX_HANDOFFS", "7")
	t.Setenv("HIVEFLOW_SERVER_METRICS_ENABLED", "false")
	t.Setenv("HIVEFLOW_STORE_REDIS_HOST", "redis.internal")
	t.Setenv("HIVEFLOW_HITL_RATE_WINDOW", "2m")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Swarm.MaxHandoffs)
	assert.False(t, cfg.Server.MetricsEnabled)
	assert.Equal(t, "redis.internal", cfg.Store.Redis.Host)
	assert.Equal(t, 2*time.Minute, cfg.HITL.RateWindow)
}

func TestLoad_CustomEnvPrefix(t *testing.T) {
	t.Setenv("HF_LOG_LEVEL", "error")

	cfg, err := NewLoader().WithEnvPrefix("HF").Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Swarm.MaxHandoffs)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: [not a mapping"), 0o644))

	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"zero max handoffs", func(c *Config) { c.Swarm.MaxHandoffs = 0 }},
		{"zero repeat tolerance", func(c *Config) { c.Swarm.RepeatTolerance = 0 }},
		{"inverted routing clamp", func(c *Config) { c.Routing.ThresholdMin = 20 }},
		{"pause threshold out of range", func(c *Config) { c.HITL.PauseThreshold = 1.5 }},
		{"unknown store type", func(c *Config) { c.Store.Type = "etcd" }},
		{"empty registry dir", func(c *Config) { c.Registry.Dir = "" }},
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_ValidatorHook(t *testing.T) {
	called := false
	_, err := NewLoader().WithValidator(func(c *Config) error {
		called = true
		return nil
	}).Load()
	require.NoError(t, err)
	assert.True(t, called)
}

func TestConfigConversions(t *testing.T) {
	cfg := Default()

	oc := cfg.Swarm.OrchestratorConfig()
	assert.Equal(t, cfg.Swarm.MaxHandoffs, oc.MaxHandoffs)
	assert.Equal(t, cfg.Swarm.RepeatTolerance, oc.RepeatTolerance)

	rc := cfg.Routing.ControllerConfig()
	assert.Equal(t, cfg.Routing.Step, rc.Step)
	assert.Equal(t, cfg.Routing.BaseThreshold, rc.BaseThreshold)

	gc := cfg.HITL.GateConfig()
	assert.Equal(t, cfg.HITL.PauseThreshold, gc.PauseThreshold)
	assert.Equal(t, cfg.HITL.DecayFactor, gc.DecayFactor)
}
