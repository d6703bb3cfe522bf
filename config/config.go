// Package config loads querycache settings from layered sources with
// clear precedence: environment variables over an optional YAML file
// over built-in defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/streamlytics/querycache/cache"
)

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "QUERYCACHE_CONFIG"

// DefaultConfigPaths are searched in order when ConfigPathEnvVar is unset.
var DefaultConfigPaths = []string{
	"querycache.yaml",
	"config/querycache.yaml",
	"/etc/querycache/config.yaml",
}

// Config is the full configuration tree.
type Config struct {
	Cache CacheConfig `koanf:"cache"`
	Redis RedisConfig `koanf:"redis"`
}

// CacheConfig configures the local tier.
type CacheConfig struct {
	MaxMemoryBytes int64         `koanf:"max_memory_bytes"`
	DefaultTTL     time.Duration `koanf:"default_ttl"`
	SweepInterval  time.Duration `koanf:"sweep_interval"`

	// Adaptive TTL scaling as the byte budget fills.
	PressureMediumThreshold float64 `koanf:"pressure_medium_threshold"`
	PressureHighThreshold   float64 `koanf:"pressure_high_threshold"`
	PressureMediumFactor    float64 `koanf:"pressure_medium_factor"`
	PressureHighFactor      float64 `koanf:"pressure_high_factor"`
}

// RedisConfig configures the optional distributed tier.
type RedisConfig struct {
	Enabled          bool          `koanf:"enabled"`
	Addr             string        `koanf:"addr"`
	Password         string        `koanf:"password"`
	DB               int           `koanf:"db"`
	KeyPrefix        string        `koanf:"key_prefix"`
	OpTimeout        time.Duration `koanf:"op_timeout"`
	LockTTL          time.Duration `koanf:"lock_ttl"`
	LockPollInterval time.Duration `koanf:"lock_poll_interval"`
	LockPollRetries  int           `koanf:"lock_poll_retries"`
}

// defaultConfig returns the built-in defaults, aligned with what
// cache.Options would apply on its own.
func defaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			MaxMemoryBytes:          100 << 20, // 100 MiB
			DefaultTTL:              5 * time.Minute,
			SweepInterval:           time.Minute,
			PressureMediumThreshold: 0.70,
			PressureHighThreshold:   0.90,
			PressureMediumFactor:    0.5,
			PressureHighFactor:      0.25,
		},
		Redis: RedisConfig{
			Enabled:          false,
			Addr:             "localhost:6379",
			KeyPrefix:        "qc:",
			OpTimeout:        250 * time.Millisecond,
			LockTTL:          10 * time.Second,
			LockPollInterval: 100 * time.Millisecond,
			LockPollRetries:  10,
		},
	}
}

// Load builds the configuration from three layers:
//  1. built-in defaults
//  2. optional YAML file (path argument, ConfigPathEnvVar, or the
//     default search paths; empty path means "search")
//  3. QUERYCACHE_* environment variables (highest priority)
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("QUERYCACHE_", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps QUERYCACHE_* variable names (lowercased, prefix
// stripped) to koanf paths. Config keys themselves contain underscores,
// so the mapping is explicit rather than derived by replacement.
var envMappings = map[string]string{
	"cache_max_memory_bytes":          "cache.max_memory_bytes",
	"cache_default_ttl":               "cache.default_ttl",
	"cache_sweep_interval":            "cache.sweep_interval",
	"cache_pressure_medium_threshold": "cache.pressure_medium_threshold",
	"cache_pressure_high_threshold":   "cache.pressure_high_threshold",
	"cache_pressure_medium_factor":    "cache.pressure_medium_factor",
	"cache_pressure_high_factor":      "cache.pressure_high_factor",

	"redis_enabled":            "redis.enabled",
	"redis_addr":               "redis.addr",
	"redis_password":           "redis.password",
	"redis_db":                 "redis.db",
	"redis_key_prefix":         "redis.key_prefix",
	"redis_op_timeout":         "redis.op_timeout",
	"redis_lock_ttl":           "redis.lock_ttl",
	"redis_lock_poll_interval": "redis.lock_poll_interval",
	"redis_lock_poll_retries":  "redis.lock_poll_retries",
}

// envTransform maps an environment variable name to its koanf path.
// Unknown variables are dropped rather than guessed at.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "QUERYCACHE_"))
	if path, ok := envMappings[key]; ok {
		return path
	}
	return ""
}

// Validate rejects configurations the cache cannot run with.
func (c *Config) Validate() error {
	if c.Cache.MaxMemoryBytes <= 0 {
		return fmt.Errorf("cache.max_memory_bytes must be > 0, got %d", c.Cache.MaxMemoryBytes)
	}
	if c.Cache.DefaultTTL < 0 {
		return fmt.Errorf("cache.default_ttl must be >= 0, got %s", c.Cache.DefaultTTL)
	}
	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("cache.sweep_interval must be > 0, got %s", c.Cache.SweepInterval)
	}
	if t := c.Cache.PressureMediumThreshold; t <= 0 || t >= 1 {
		return fmt.Errorf("cache.pressure_medium_threshold must be in (0, 1), got %g", t)
	}
	if t := c.Cache.PressureHighThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("cache.pressure_high_threshold must be in (0, 1], got %g", t)
	}
	if c.Cache.PressureMediumThreshold >= c.Cache.PressureHighThreshold {
		return fmt.Errorf("cache.pressure_medium_threshold (%g) must be below pressure_high_threshold (%g)",
			c.Cache.PressureMediumThreshold, c.Cache.PressureHighThreshold)
	}
	if f := c.Cache.PressureMediumFactor; f <= 0 || f > 1 {
		return fmt.Errorf("cache.pressure_medium_factor must be in (0, 1], got %g", f)
	}
	if f := c.Cache.PressureHighFactor; f <= 0 || f > 1 {
		return fmt.Errorf("cache.pressure_high_factor must be in (0, 1], got %g", f)
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when redis.enabled is true")
		}
		if c.Redis.LockTTL <= 0 {
			return fmt.Errorf("redis.lock_ttl must be > 0, got %s", c.Redis.LockTTL)
		}
		if c.Redis.LockPollInterval <= 0 {
			return fmt.Errorf("redis.lock_poll_interval must be > 0, got %s", c.Redis.LockPollInterval)
		}
		if c.Redis.LockPollRetries <= 0 {
			return fmt.Errorf("redis.lock_poll_retries must be > 0, got %d", c.Redis.LockPollRetries)
		}
	}
	return nil
}

// CacheOptions translates the cache section into cache.Options. The
// remote tier, logger, and metrics are wired by the caller.
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		MaxMemoryBytes: c.Cache.MaxMemoryBytes,
		DefaultTTL:     c.Cache.DefaultTTL,
		SweepInterval:  c.Cache.SweepInterval,
		Pressure: cache.Pressure{
			MediumThreshold: c.Cache.PressureMediumThreshold,
			HighThreshold:   c.Cache.PressureHighThreshold,
			MediumFactor:    c.Cache.PressureMediumFactor,
			HighFactor:      c.Cache.PressureHighFactor,
		},
		RemoteLockTTL:      c.Redis.LockTTL,
		RemotePollInterval: c.Redis.LockPollInterval,
		RemotePollRetries:  c.Redis.LockPollRetries,
	}
}
