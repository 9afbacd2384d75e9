package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 0, cfg.Group.Rank)
	assert.Equal(t, 1, cfg.Group.Size)
	assert.Equal(t, "gloo", cfg.Group.Backend)
	assert.Positive(t, cfg.Group.Timeout)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.NotEmpty(t, cfg.Store.Redis.Addr)
	assert.Positive(t, cfg.Pool.MaxWorkers)
	assert.Equal(t, "info", cfg.Log.Level)

	require.NoError(t, cfg.Validate())
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
group:
  rank: 2
  size: 8
  backend: nccl
  timeout: 5m
  name: trainers
store:
  kind: redis
  redis:
    addr: redis.internal:6379
    prefix: job42
pool:
  max_workers: 16
log:
  level: debug
  format: console
telemetry:
  enabled: true
  otlp_endpoint: collector:4317
  sample_rate: 0.25
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Group.Rank)
	assert.Equal(t, 8, cfg.Group.Size)
	assert.Equal(t, "nccl", cfg.Group.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Group.Timeout)
	assert.Equal(t, "trainers", cfg.Group.Name)
	assert.Equal(t, "redis", cfg.Store.Kind)
	assert.Equal(t, "redis.internal:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "job42", cfg.Store.Redis.Prefix)
	assert.Equal(t, 16, cfg.Pool.MaxWorkers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRate)

	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultPoolConfig().QueueSize, cfg.Pool.QueueSize)
}

func TestLoader_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("group: ["), 0o644))

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config from file")
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("COMMFLOW_GROUP_RANK", "1")
	t.Setenv("COMMFLOW_GROUP_SIZE", "4")
	t.Setenv("COMMFLOW_GROUP_TIMEOUT", "90s")
	t.Setenv("COMMFLOW_STORE_KIND", "redis")
	t.Setenv("COMMFLOW_STORE_REDIS_ADDR", "envhost:6379")
	t.Setenv("COMMFLOW_STORE_REDIS_DB", "3")
	t.Setenv("COMMFLOW_LOG_OUTPUT_PATHS", "stderr, /var/log/commflow.log")
	t.Setenv("COMMFLOW_TELEMETRY_ENABLED", "true")
	t.Setenv("COMMFLOW_TELEMETRY_SAMPLE_RATE", "0.5")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Group.Rank)
	assert.Equal(t, 4, cfg.Group.Size)
	assert.Equal(t, 90*time.Second, cfg.Group.Timeout)
	assert.Equal(t, "redis", cfg.Store.Kind)
	assert.Equal(t, "envhost:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 3, cfg.Store.Redis.DB)
	assert.Equal(t, []string{"stderr", "/var/log/commflow.log"}, cfg.Log.OutputPaths)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("group:\n  size: 2\n"), 0o644))
	t.Setenv("COMMFLOW_GROUP_SIZE", "16")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Group.Size)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("JOB_GROUP_SIZE", "3")

	cfg, err := NewLoader().WithEnvPrefix("JOB").Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Group.Size)
}

func TestLoader_BadEnvValue(t *testing.T) {
	t.Setenv("COMMFLOW_GROUP_RANK", "not-a-number")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COMMFLOW_GROUP_RANK")
}

func TestLoader_Validators(t *testing.T) {
	called := false
	_, err := NewLoader().WithValidator(func(c *Config) error {
		called = true
		return nil
	}).Load()
	require.NoError(t, err)
	assert.True(t, called)

	_, err = NewLoader().WithValidator(func(c *Config) error {
		return assert.AnError
	}).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"size zero", func(c *Config) { c.Group.Size = 0 }, "group size must be positive"},
		{"rank out of range", func(c *Config) { c.Group.Rank = 9 }, "outside group of size"},
		{"negative timeout", func(c *Config) { c.Group.Timeout = -1 }, "timeout must be positive"},
		{"unknown store", func(c *Config) { c.Store.Kind = "etcd" }, "unknown store kind"},
		{"redis without addr", func(c *Config) { c.Store.Kind = "redis"; c.Store.Redis.Addr = "" }, "requires an address"},
		{"no workers", func(c *Config) { c.Pool.MaxWorkers = 0 }, "max_workers must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMustLoad_PanicsOnInvalid(t *testing.T) {
	t.Setenv("COMMFLOW_GROUP_SIZE", "0")
	assert.Panics(t, func() { MustLoad("") })
}

func TestLogConfig_BuildLogger(t *testing.T) {
	logger, err := DefaultLogConfig().BuildLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	cfg := DefaultLogConfig()
	cfg.Level = "debug"
	cfg.Format = "console"
	logger, err = cfg.BuildLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	cfg.Level = "shouting"
	_, err = cfg.BuildLogger()
	require.Error(t, err)
}
