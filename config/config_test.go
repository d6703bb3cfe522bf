package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "explicit path that does not exist should fail")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, int64(100<<20), cfg.Cache.MaxMemoryBytes)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, time.Minute, cfg.Cache.SweepInterval)
	assert.Equal(t, 0.70, cfg.Cache.PressureMediumThreshold)
	assert.Equal(t, 0.90, cfg.Cache.PressureHighThreshold)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "qc:", cfg.Redis.KeyPrefix)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "querycache.yaml")
	data := []byte(`
cache:
  max_memory_bytes: 1048576
  default_ttl: 30s
redis:
  enabled: true
  addr: "redis.internal:6379"
  key_prefix: "dash:"
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(1<<20), cfg.Cache.MaxMemoryBytes)
	assert.Equal(t, 30*time.Second, cfg.Cache.DefaultTTL)
	// Untouched fields keep their defaults.
	assert.Equal(t, time.Minute, cfg.Cache.SweepInterval)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "dash:", cfg.Redis.KeyPrefix)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "querycache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  max_memory_bytes: 1048576\n"), 0o600))

	t.Setenv("QUERYCACHE_CACHE_MAX_MEMORY_BYTES", "2097152")
	t.Setenv("QUERYCACHE_CACHE_DEFAULT_TTL", "90s")
	t.Setenv("QUERYCACHE_REDIS_ADDR", "10.0.0.5:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(2<<20), cfg.Cache.MaxMemoryBytes)
	assert.Equal(t, 90*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, "10.0.0.5:6379", cfg.Redis.Addr)
}

func TestUnknownEnvVarsIgnored(t *testing.T) {
	t.Setenv("QUERYCACHE_NO_SUCH_KEY", "boom")

	_, err := Load("")
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	base := defaultConfig()

	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"zero capacity", func(c *Config) { c.Cache.MaxMemoryBytes = 0 }, "max_memory_bytes"},
		{"negative ttl", func(c *Config) { c.Cache.DefaultTTL = -time.Second }, "default_ttl"},
		{"zero sweep", func(c *Config) { c.Cache.SweepInterval = 0 }, "sweep_interval"},
		{"threshold order", func(c *Config) {
			c.Cache.PressureMediumThreshold = 0.95
		}, "pressure_medium_threshold"},
		{"factor range", func(c *Config) { c.Cache.PressureHighFactor = 1.5 }, "pressure_high_factor"},
		{"redis enabled without addr", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		}, "redis.addr"},
		{"redis zero lock ttl", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.LockTTL = 0
		}, "lock_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errSub == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSub)
		})
	}
}

func TestCacheOptions(t *testing.T) {
	cfg := defaultConfig()
	cfg.Cache.MaxMemoryBytes = 42
	cfg.Redis.LockTTL = 3 * time.Second

	opt := cfg.CacheOptions()
	assert.Equal(t, int64(42), opt.MaxMemoryBytes)
	assert.Equal(t, cfg.Cache.DefaultTTL, opt.DefaultTTL)
	assert.Equal(t, 0.70, opt.Pressure.MediumThreshold)
	assert.Equal(t, 3*time.Second, opt.RemoteLockTTL)
	assert.Equal(t, 10, opt.RemotePollRetries)
}
