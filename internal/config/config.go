// Package config loads and validates fetch engine configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// FetchConfig governs transport selection and per-attempt behavior.
type FetchConfig struct {
	Backend        string `mapstructure:"backend"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Retries        int    `mapstructure:"retries"`
	RetryDelayMs   int    `mapstructure:"retry_delay_ms"`
}

// PolitenessConfig bounds load placed on any single origin.
type PolitenessConfig struct {
	PerOriginMax  int     `mapstructure:"per_origin_max"`
	OriginRPS     float64 `mapstructure:"origin_rps"`
	RespectRobots bool    `mapstructure:"respect_robots"`
}

// CacheConfig sets freshness cache defaults.
type CacheConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	TTLSeconds int  `mapstructure:"ttl_seconds"`
	MaxEntries int  `mapstructure:"max_entries"`
}

// HeadlessConfig configures the browser-rendered transport variant.
type HeadlessConfig struct {
	MaxParallel   int `mapstructure:"max_parallel"`
	NavTimeoutSec int `mapstructure:"nav_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Transport backends selectable via fetch.backend.
const (
	BackendHTTP     = "http"
	BackendColly    = "colly"
	BackendHeadless = "headless"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POLITEFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("fetch.backend", BackendHTTP)
	v.SetDefault("fetch.user_agent", "politefetch/0.1 (+https://github.com/mwhitford/politefetch)")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.retries", 2)
	v.SetDefault("fetch.retry_delay_ms", 250)
	v.SetDefault("politeness.per_origin_max", 2)
	v.SetDefault("politeness.origin_rps", 0)
	v.SetDefault("politeness.respect_robots", false)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl_seconds", 300)
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Fetch.Backend {
	case BackendHTTP, BackendColly, BackendHeadless:
	default:
		return fmt.Errorf("fetch.backend must be one of %s, %s, %s", BackendHTTP, BackendColly, BackendHeadless)
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries must be >= 0")
	}
	if c.Politeness.PerOriginMax <= 0 {
		return fmt.Errorf("politeness.per_origin_max must be > 0")
	}
	if c.Politeness.OriginRPS < 0 {
		return fmt.Errorf("politeness.origin_rps must be >= 0")
	}
	if c.Cache.Enabled && c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be > 0 when the cache is enabled")
	}
	if c.Fetch.Backend == BackendHeadless && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when the headless backend is selected")
	}
	return nil
}

// FetchTimeout converts the configured per-attempt deadline into a Duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// RetryDelay converts the configured backoff base into a Duration.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Fetch.RetryDelayMs) * time.Millisecond
}

// CacheTTL converts the configured default freshness window into a Duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}
