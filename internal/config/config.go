// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Source    SourceConfig    `mapstructure:"source"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Collect   CollectConfig   `mapstructure:"collect"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Export    ExportConfig    `mapstructure:"export"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SourceConfig describes how publication URLs are derived from slugs.
// HostTemplate must contain exactly one %s, which receives the slug.
type SourceConfig struct {
	HostTemplate string `mapstructure:"host_template"`
	ArchivePath  string `mapstructure:"archive_path"`
	UserAgent    string `mapstructure:"user_agent"`
}

// FetchConfig governs transport politeness and retry behavior.
type FetchConfig struct {
	PolitenessDelayMs int `mapstructure:"politeness_delay_ms"`
	TimeoutSeconds    int `mapstructure:"timeout_seconds"`
	MaxRetries        int `mapstructure:"max_retries"`
	BackoffInitialMs  int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int `mapstructure:"backoff_max_ms"`
}

// CollectConfig bounds collection runs.
type CollectConfig struct {
	DefaultMaxPosts int `mapstructure:"default_max_posts"`
	MaxPostsCap     int `mapstructure:"max_posts_cap"`
}

// AnalyticsConfig tunes report computation.
type AnalyticsConfig struct {
	ReadingSpeedWPM int `mapstructure:"reading_speed_wpm"`
	DefaultDaysBack int `mapstructure:"default_days_back"`
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
	ConnLifetime int    `mapstructure:"conn_lifetime_seconds"`
}

// RedisConfig controls the optional analytics report cache. An empty URL
// falls back to the in-memory cache.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// ExportConfig sets where scheduled report files land.
type ExportConfig struct {
	ReportDir string `mapstructure:"report_dir"`
}

// ScheduleConfig controls the periodic refresh loop.
type ScheduleConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	IntervalMinutes int      `mapstructure:"interval_minutes"`
	Publications    []string `mapstructure:"publications"`
	MaxPosts        int      `mapstructure:"max_posts"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STACKLYTICS")
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
	v.SetDefault("source.host_template", "https://%s.substack.com")
	v.SetDefault("source.archive_path", "/archive")
	v.SetDefault("source.user_agent", "stacklytics/1.0")
	v.SetDefault("fetch.politeness_delay_ms", 1500)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_initial_ms", 250)
	v.SetDefault("fetch.backoff_max_ms", 5000)
	v.SetDefault("collect.default_max_posts", 100)
	v.SetDefault("collect.max_posts_cap", 1000)
	v.SetDefault("analytics.reading_speed_wpm", 200)
	v.SetDefault("analytics.default_days_back", 30)
	v.SetDefault("analytics.cache_ttl_seconds", 300)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("db.conn_lifetime_seconds", 1800)
	v.SetDefault("export.report_dir", "data/reports")
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.interval_minutes", 1440)
	v.SetDefault("schedule.max_posts", 20)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.Count(c.Source.HostTemplate, "%s") != 1 {
		return fmt.Errorf("source.host_template must contain exactly one %%s")
	}
	if c.Fetch.PolitenessDelayMs < 0 {
		return fmt.Errorf("fetch.politeness_delay_ms must be >= 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0")
	}
	if c.Collect.DefaultMaxPosts <= 0 || c.Collect.MaxPostsCap <= 0 {
		return fmt.Errorf("collect limits must be > 0")
	}
	if c.Collect.DefaultMaxPosts > c.Collect.MaxPostsCap {
		return fmt.Errorf("collect.default_max_posts must not exceed collect.max_posts_cap")
	}
	if c.Analytics.ReadingSpeedWPM <= 0 {
		return fmt.Errorf("analytics.reading_speed_wpm must be > 0")
	}
	if c.Schedule.Enabled {
		if c.Schedule.IntervalMinutes <= 0 {
			return fmt.Errorf("schedule.interval_minutes must be > 0 when schedule is enabled")
		}
		if len(c.Schedule.Publications) == 0 {
			return fmt.Errorf("schedule.publications must be set when schedule is enabled")
		}
	}
	return nil
}

// PolitenessDelay returns the per-host inter-request delay.
func (c Config) PolitenessDelay() time.Duration {
	return time.Duration(c.Fetch.PolitenessDelayMs) * time.Millisecond
}

// FetchTimeout returns the per-request timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// BackoffBounds returns the initial and maximum retry backoff delays.
func (c Config) BackoffBounds() (time.Duration, time.Duration) {
	return time.Duration(c.Fetch.BackoffInitialMs) * time.Millisecond,
		time.Duration(c.Fetch.BackoffMaxMs) * time.Millisecond
}

// CacheTTL returns how long analytics payloads stay cached.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Analytics.CacheTTLSeconds) * time.Second
}

// ScrapeInterval returns the scheduler cycle period.
func (c Config) ScrapeInterval() time.Duration {
	return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
}
