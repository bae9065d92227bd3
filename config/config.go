// Package config loads the edge configuration from YAML with environment
// overrides for deployment-specific values.
package config

import (
	"os"
	"time"

	cerrors "github.com/cockroachdb/errors"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that accepts extended forms in YAML
// (e.g. "1d12h", "5m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := str2duration.ParseDuration(raw)
	if err != nil {
		return cerrors.Wrapf(err, "invalid duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// CacheConfig selects the store backend and names the cache version.
type CacheConfig struct {
	// Version tags the three store names; bumping it makes activation
	// garbage-collect the previous version's stores.
	Version string `yaml:"version"`
	// Backend is one of "memory", "sqlite", "redis".
	Backend string `yaml:"backend"`
	// SQLitePath is the database file for the sqlite backend. Empty means
	// in-memory.
	SQLitePath string `yaml:"sqlite_path"`
	// APIPrefix marks API routes for strategy selection.
	APIPrefix string `yaml:"api_prefix"`
}

// QueueConfig bounds offline action replay.
type QueueConfig struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff Duration `yaml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`
	ReplayInterval Duration `yaml:"replay_interval"`
}

// NotificationsConfig lists shoutrrr service URLs for push delivery.
type NotificationsConfig struct {
	URLs []string `yaml:"urls"`
}

// TelemetryConfig enables OTLP trace export when an endpoint is set.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// Config is the full edge configuration.
type Config struct {
	// Listen is the address the edge serves on.
	Listen string `yaml:"listen"`
	// Upstream is the origin base URL the edge fronts.
	Upstream string `yaml:"upstream"`
	// RedisURL enables the redis store backend and the control channel.
	RedisURL string `yaml:"redis_url"`
	// LogFormat is "console" or "json".
	LogFormat string `yaml:"log_format"`
	// RequestTimeout bounds a single upstream fetch.
	RequestTimeout Duration `yaml:"request_timeout"`

	Cache CacheConfig `yaml:"cache"`
	// Precache is the static manifest written during install.
	Precache []string `yaml:"precache"`
	// OfflineFallback is the page served to offline navigations with no
	// cached entry. It must be part of the precache manifest.
	OfflineFallback string `yaml:"offline_fallback"`

	Queue         QueueConfig         `yaml:"queue"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Listen:         ":8787",
		LogFormat:      "console",
		RequestTimeout: Duration(30 * time.Second),
		Cache: CacheConfig{
			Version:   "v1",
			Backend:   "memory",
			APIPrefix: "/api/",
		},
		Precache: []string{
			"/",
			"/dashboard",
			"/connections",
			"/alarms",
			"/offline.html",
			"/manifest.webmanifest",
			"/icons/icon-192.png",
			"/icons/icon-512.png",
		},
		OfflineFallback: "/offline.html",
		Queue: QueueConfig{
			MaxAttempts:    8,
			InitialBackoff: Duration(time.Minute),
			MaxBackoff:     Duration(4 * time.Hour),
			ReplayInterval: Duration(5 * time.Minute),
		},
	}
}

// Load reads a YAML config file over the defaults and applies environment
// overrides. An empty path loads defaults and environment only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return Config{}, cerrors.Wrapf(err, "failed to read config %s", path)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return Config{}, cerrors.Wrapf(err, "failed to parse config %s", path)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("COSTSHUB_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("COSTSHUB_UPSTREAM"); v != "" {
		c.Upstream = v
	}
	if v := os.Getenv("COSTSHUB_REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("COSTSHUB_CACHE_VERSION"); v != "" {
		c.Cache.Version = v
	}
}

// Validate rejects configurations the worker cannot run with.
func (c *Config) Validate() error {
	if c.Upstream == "" {
		return cerrors.New("config: upstream is required")
	}
	switch c.Cache.Backend {
	case "memory", "sqlite", "redis":
	default:
		return cerrors.Newf("config: unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.RedisURL == "" {
		return cerrors.New("config: redis backend requires redis_url")
	}
	if c.Cache.Version == "" {
		return cerrors.New("config: cache version is required")
	}
	if c.OfflineFallback == "" {
		return cerrors.New("config: offline_fallback is required")
	}
	found := false
	for _, p := range c.Precache {
		if p == c.OfflineFallback {
			found = true
			break
		}
	}
	if !found {
		return cerrors.Newf("config: offline_fallback %q must be in the precache manifest", c.OfflineFallback)
	}
	return nil
}
