// Package config handles loading and saving aios configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/aios/config.yaml
//   - Data:    ~/.local/share/aios/ (local store database)
//
// Environment variables are applied on top of the file; see ApplyEnv.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every error returned from Validate.
var ErrInvalid = errors.New("invalid config")

// Environment variables recognized by ApplyEnv.
const (
	EnvAnalyticsEnabled  = "AIOS_ANALYTICS_ENABLED"
	EnvAnalyticsEndpoint = "AIOS_ANALYTICS_ENDPOINT"
	EnvEnvironment       = "AIOS_ENV"
	EnvStoreDriver       = "AIOS_STORE_DRIVER"
	EnvStorePath         = "AIOS_STORE_PATH"
	EnvRedisAddr         = "AIOS_REDIS_ADDR"
)

// QueueConfig bounds the persistent event queue.
type QueueConfig struct {
	MaxSize         int     `yaml:"max_size,omitempty"`
	HighWater       float64 `yaml:"high_water,omitempty"`       // fraction of max_size that triggers compaction
	CompactFraction float64 `yaml:"compact_fraction,omitempty"` // fraction of max_size evicted per compaction
	MaxRetries      int     `yaml:"max_retries,omitempty"`
}

// BackoffConfig controls the delay between failed delivery attempts.
type BackoffConfig struct {
	Base   time.Duration `yaml:"base,omitempty"`
	Max    time.Duration `yaml:"max,omitempty"`
	Jitter float64       `yaml:"jitter,omitempty"` // 0..1, fraction of the delay added at random
}

// AnalyticsConfig holds the telemetry pipeline settings.
type AnalyticsConfig struct {
	Enabled        *bool         `yaml:"enabled,omitempty"`
	Endpoint       string        `yaml:"endpoint,omitempty"`
	BatchSize      int           `yaml:"batch_size,omitempty"`
	FlushInterval  time.Duration `yaml:"flush_interval,omitempty"`
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
	UserID         string        `yaml:"user_id,omitempty"`
	Queue          QueueConfig   `yaml:"queue,omitempty"`
	Backoff        BackoffConfig `yaml:"backoff,omitempty"`
}

// IsEnabled reports whether analytics collection is on. Unset means on.
func (a AnalyticsConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// RecommendConfig tunes the built-in recommendation rules.
type RecommendConfig struct {
	MeetingLookback   time.Duration `yaml:"meeting_lookback,omitempty"`
	PrepWindow        time.Duration `yaml:"prep_window,omitempty"`
	StaleNoteAfter    time.Duration `yaml:"stale_note_after,omitempty"`
	DueTodayThreshold int           `yaml:"due_today_threshold,omitempty"`
	MaxParallelRules  int           `yaml:"max_parallel_rules,omitempty"`
}

// RedisConfig configures the redis local-store backend.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// StoreConfig selects the local-store backend.
type StoreConfig struct {
	Driver string      `yaml:"driver,omitempty"` // sqlite, memory, redis
	Path   string      `yaml:"path,omitempty"`
	Redis  RedisConfig `yaml:"redis,omitempty"`
}

// Config is the top-level configuration for aios.
type Config struct {
	Env       string          `yaml:"env,omitempty"` // development, production
	Analytics AnalyticsConfig `yaml:"analytics,omitempty"`
	Recommend RecommendConfig `yaml:"recommend,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	enabled := true
	return Config{
		Env: "production",
		Analytics: AnalyticsConfig{
			Enabled:        &enabled,
			BatchSize:      50,
			FlushInterval:  30 * time.Second,
			RequestTimeout: 10 * time.Second,
			Queue: QueueConfig{
				MaxSize:         1000,
				HighWater:       0.9,
				CompactFraction: 0.2,
				MaxRetries:      3,
			},
			Backoff: BackoffConfig{
				Base:   time.Second,
				Max:    30 * time.Second,
				Jitter: 0.5,
			},
		},
		Recommend: RecommendConfig{
			MeetingLookback:   48 * time.Hour,
			PrepWindow:        time.Hour,
			StaleNoteAfter:    30 * 24 * time.Hour,
			DueTodayThreshold: 3,
			MaxParallelRules:  8,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(DataDir(), "aios.db"),
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "aios:",
			},
		},
	}
}

// IsDevelopment reports whether development diagnostics should be on.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development") || strings.EqualFold(c.Env, "dev")
}

// ConfigDir returns the XDG config directory for aios.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "aios")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "aios")
}

// DataDir returns the XDG data directory for aios.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "aios")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "aios")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory and applies
// environment overrides. Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		cfg := DefaultConfig()
		return cfg, cfg.ApplyEnv(os.LookupEnv)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.ApplyEnv(os.LookupEnv)
}

// LoadFrom reads config from a specific path without applying the environment.
// Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Store.Path = expandHome(cfg.Store.Path)
	return cfg, nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// ApplyEnv overlays environment variables onto c. lookup is usually
// os.LookupEnv; tests pass a map-backed function.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAnalyticsEnabled); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAnalyticsEnabled, err)
		}
		c.Analytics.Enabled = &b
	}
	if v, ok := lookup(EnvAnalyticsEndpoint); ok && v != "" {
		c.Analytics.Endpoint = v
	}
	if v, ok := lookup(EnvEnvironment); ok && v != "" {
		c.Env = v
	}
	if v, ok := lookup(EnvStoreDriver); ok && v != "" {
		c.Store.Driver = strings.ToLower(v)
	}
	if v, ok := lookup(EnvStorePath); ok && v != "" {
		c.Store.Path = expandHome(v)
	}
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		c.Store.Redis.Addr = v
	}
	return nil
}

// Validate checks that every setting is within range.
func (c Config) Validate() error {
	a := c.Analytics
	switch {
	case a.BatchSize <= 0:
		return fmt.Errorf("%w: analytics.batch_size must be positive", ErrInvalid)
	case a.FlushInterval <= 0:
		return fmt.Errorf("%w: analytics.flush_interval must be positive", ErrInvalid)
	case a.RequestTimeout <= 0:
		return fmt.Errorf("%w: analytics.request_timeout must be positive", ErrInvalid)
	case a.Queue.MaxSize <= 0:
		return fmt.Errorf("%w: analytics.queue.max_size must be positive", ErrInvalid)
	case a.Queue.HighWater <= 0 || a.Queue.HighWater > 1:
		return fmt.Errorf("%w: analytics.queue.high_water must be in (0,1]", ErrInvalid)
	case a.Queue.CompactFraction < 0 || a.Queue.CompactFraction > 1:
		return fmt.Errorf("%w: analytics.queue.compact_fraction must be in [0,1]", ErrInvalid)
	case a.Queue.MaxRetries <= 0:
		return fmt.Errorf("%w: analytics.queue.max_retries must be positive", ErrInvalid)
	case a.Backoff.Base <= 0:
		return fmt.Errorf("%w: analytics.backoff.base must be positive", ErrInvalid)
	case a.Backoff.Max < a.Backoff.Base:
		return fmt.Errorf("%w: analytics.backoff.max must be >= base", ErrInvalid)
	case a.Backoff.Jitter < 0 || a.Backoff.Jitter > 1:
		return fmt.Errorf("%w: analytics.backoff.jitter must be in [0,1]", ErrInvalid)
	}

	r := c.Recommend
	switch {
	case r.MeetingLookback <= 0:
		return fmt.Errorf("%w: recommend.meeting_lookback must be positive", ErrInvalid)
	case r.PrepWindow <= 0:
		return fmt.Errorf("%w: recommend.prep_window must be positive", ErrInvalid)
	case r.StaleNoteAfter <= 0:
		return fmt.Errorf("%w: recommend.stale_note_after must be positive", ErrInvalid)
	case r.DueTodayThreshold <= 0:
		return fmt.Errorf("%w: recommend.due_today_threshold must be positive", ErrInvalid)
	case r.MaxParallelRules <= 0:
		return fmt.Errorf("%w: recommend.max_parallel_rules must be positive", ErrInvalid)
	}

	switch c.Store.Driver {
	case "sqlite", "":
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required for sqlite", ErrInvalid)
		}
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("%w: store.redis.addr is required for redis", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalid, c.Store.Driver)
	}
	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
