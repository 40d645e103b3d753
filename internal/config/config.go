// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ampscan/ampscan/internal/oracle"
	storepg "github.com/ampscan/ampscan/internal/store/postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Auth    AuthConfig     `mapstructure:"auth"`
	Site    SiteConfig     `mapstructure:"site"`
	Scan    ScanConfig     `mapstructure:"scan"`
	Oracle  oracle.Config  `mapstructure:"oracle"`
	Storage StorageConfig  `mapstructure:"storage"`
	DB      storepg.Config `mapstructure:"db"`
	PubSub  PubSubConfig   `mapstructure:"pubsub"`
	Nonce   NonceConfig    `mapstructure:"nonce"`
	Logging LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SiteConfig points the scanner at the site under validation.
type SiteConfig struct {
	// Backend selects the site index implementation: memory or postgres.
	Backend string `mapstructure:"backend"`
	// HomeURL seeds the memory backend; the postgres backend reads it from
	// the stored site settings instead.
	HomeURL string `mapstructure:"home_url"`
	// ShowOnFront mirrors the front page mode: posts or page.
	ShowOnFront string `mapstructure:"show_on_front"`
}

// ScanConfig governs batch sizing and scheduling.
type ScanConfig struct {
	// LimitPerType caps each content group per batch.
	LimitPerType int `mapstructure:"limit_per_type"`
	// CronStride is the per-tick limit for the background scheduler.
	CronStride int `mapstructure:"cron_stride"`
	// CronInterval is the delay between background ticks.
	CronInterval time.Duration `mapstructure:"cron_interval"`
	// LockTTL bounds how long a crashed scan can hold the lock.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
	// Backend selects the store implementation: memory or postgres.
	Backend string `mapstructure:"backend"`
	// Topic names the event topic for published scan results.
	Topic string `mapstructure:"topic"`
	// AutoAccept marks newly discovered errors as accepted, so sanitized
	// markup ships without moderation.
	AutoAccept bool `mapstructure:"auto_accept"`
}

// StorageConfig selects and parameterizes the snapshot blob store.
type StorageConfig struct {
	// Backend is one of none, memory, local, gcs.
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// NonceConfig configures validate request tokens.
type NonceConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AMPSCAN")
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
	v.SetDefault("site.backend", "memory")
	v.SetDefault("site.show_on_front", "posts")
	v.SetDefault("scan.limit_per_type", 100)
	v.SetDefault("scan.cron_stride", 2)
	v.SetDefault("scan.cron_interval", time.Hour)
	v.SetDefault("scan.lock_ttl", 5*time.Minute)
	v.SetDefault("scan.backend", "memory")
	v.SetDefault("scan.topic", "scan-results")
	v.SetDefault("oracle.user_agent", "ampscan/1.0 (+https://github.com/ampscan/ampscan)")
	v.SetDefault("oracle.request_timeout", 15*time.Second)
	v.SetDefault("oracle.concurrency", 4)
	v.SetDefault("oracle.rate_limit_per_domain", 4)
	v.SetDefault("oracle.max_age", time.Hour)
	v.SetDefault("oracle.use_js", false)
	v.SetDefault("storage.backend", "none")
	v.SetDefault("nonce.ttl", 24*time.Hour)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scan.LimitPerType <= 0 {
		return fmt.Errorf("scan.limit_per_type must be > 0")
	}
	if c.Scan.CronStride <= 0 {
		return fmt.Errorf("scan.cron_stride must be > 0")
	}
	if c.Scan.LockTTL <= 0 {
		return fmt.Errorf("scan.lock_ttl must be > 0")
	}
	switch c.Scan.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("scan.backend must be memory or postgres, got %q", c.Scan.Backend)
	}
	if c.Scan.Backend == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when scan.backend is postgres")
	}
	switch c.Site.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("site.backend must be memory or postgres, got %q", c.Site.Backend)
	}
	switch c.Storage.Backend {
	case "none", "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for local storage")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for gcs storage")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}
