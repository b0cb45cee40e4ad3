package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, BackendHTTP, cfg.Fetch.Backend)
	require.Equal(t, 2, cfg.Fetch.Retries)
	require.Equal(t, 2, cfg.Politeness.PerOriginMax)
	require.True(t, cfg.Cache.Enabled)
	require.Equal(t, 15*time.Second, cfg.FetchTimeout())
	require.Equal(t, 250*time.Millisecond, cfg.RetryDelay())
	require.Equal(t, 5*time.Minute, cfg.CacheTTL())
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
fetch:
  backend: colly
  user_agent: test-agent
  timeout_seconds: 45
  retries: 4
  retry_delay_ms: 100
politeness:
  per_origin_max: 3
  origin_rps: 1.5
  respect_robots: true
cache:
  enabled: true
  ttl_seconds: 60
  max_entries: 128
headless:
  max_parallel: 2
  nav_timeout_seconds: 30
logging:
  development: false
`
	err := os.WriteFile(path, []byte(configYAML), 0o600)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, BackendColly, cfg.Fetch.Backend)
	require.Equal(t, "test-agent", cfg.Fetch.UserAgent)
	require.Equal(t, 45*time.Second, cfg.FetchTimeout())
	require.Equal(t, 4, cfg.Fetch.Retries)
	require.Equal(t, 3, cfg.Politeness.PerOriginMax)
	require.InDelta(t, 1.5, cfg.Politeness.OriginRPS, 0.001)
	require.True(t, cfg.Politeness.RespectRobots)
	require.Equal(t, 60*time.Second, cfg.CacheTTL())
	require.Equal(t, 128, cfg.Cache.MaxEntries)
	require.False(t, cfg.Logging.Development)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Fetch.Backend = "carrier-pigeon" },
			wantErr: "fetch.backend",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Fetch.TimeoutSeconds = 0 },
			wantErr: "fetch.timeout_seconds",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Fetch.Retries = -1 },
			wantErr: "fetch.retries",
		},
		{
			name:    "zero per-origin cap",
			mutate:  func(c *Config) { c.Politeness.PerOriginMax = 0 },
			wantErr: "politeness.per_origin_max",
		},
		{
			name:    "cache enabled with no capacity",
			mutate:  func(c *Config) { c.Cache.MaxEntries = 0 },
			wantErr: "cache.max_entries",
		},
		{
			name: "headless backend without parallelism",
			mutate: func(c *Config) {
				c.Fetch.Backend = BackendHeadless
				c.Headless.MaxParallel = 0
			},
			wantErr: "headless.max_parallel",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
