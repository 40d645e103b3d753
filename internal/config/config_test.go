package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Site.Backend)
	require.Equal(t, "posts", cfg.Site.ShowOnFront)
	require.Equal(t, 100, cfg.Scan.LimitPerType)
	require.Equal(t, 2, cfg.Scan.CronStride)
	require.Equal(t, time.Hour, cfg.Scan.CronInterval)
	require.Equal(t, 5*time.Minute, cfg.Scan.LockTTL)
	require.Equal(t, "memory", cfg.Scan.Backend)
	require.Equal(t, "scan-results", cfg.Scan.Topic)
	require.Equal(t, time.Hour, cfg.Oracle.MaxAge)
	require.False(t, cfg.Oracle.UseJS)
	require.Equal(t, "none", cfg.Storage.Backend)
	require.Equal(t, 24*time.Hour, cfg.Nonce.TTL)
	require.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
site:
  home_url: https://blog.example
scan:
  limit_per_type: 25
  cron_stride: 4
oracle:
  use_js: true
  css_budget: 50000
storage:
  backend: local
  local_dir: /tmp/snapshots
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "https://blog.example", cfg.Site.HomeURL)
	require.Equal(t, 25, cfg.Scan.LimitPerType)
	require.Equal(t, 4, cfg.Scan.CronStride)
	require.True(t, cfg.Oracle.UseJS)
	require.Equal(t, 50000, cfg.Oracle.CSSBudget)
	require.Equal(t, "local", cfg.Storage.Backend)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AMPSCAN_SCAN_LIMIT_PER_TYPE", "7")
	t.Setenv("AMPSCAN_SERVER_PORT", "9999")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Scan.LimitPerType)
	require.Equal(t, 9999, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg := Config{}
		cfg.Server.Port = 8080
		cfg.Scan.LimitPerType = 100
		cfg.Scan.CronStride = 2
		cfg.Scan.LockTTL = 5 * time.Minute
		cfg.Scan.Backend = "memory"
		cfg.Site.Backend = "memory"
		cfg.Storage.Backend = "none"
		return cfg
	}

	require.NoError(t, base().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"zero limit", func(c *Config) { c.Scan.LimitPerType = 0 }},
		{"zero stride", func(c *Config) { c.Scan.CronStride = 0 }},
		{"zero lock ttl", func(c *Config) { c.Scan.LockTTL = 0 }},
		{"bad scan backend", func(c *Config) { c.Scan.Backend = "redis" }},
		{"postgres without dsn", func(c *Config) { c.Scan.Backend = "postgres" }},
		{"bad site backend", func(c *Config) { c.Site.Backend = "filesystem" }},
		{"bad storage backend", func(c *Config) { c.Storage.Backend = "s3" }},
		{"local storage without dir", func(c *Config) { c.Storage.Backend = "local" }},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = "gcs" }},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true }},
		{"pubsub without project", func(c *Config) { c.PubSub.Enabled = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
