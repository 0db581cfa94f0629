package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/castsync/castsync/internal/mediaserver"
)

// Version is the application version, set at build time.
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Servers   []MediaServer   `mapstructure:"mediaservers"`
	TMDB      TMDBConfig      `mapstructure:"tmdb"`
	Douban    DoubanConfig    `mapstructure:"douban"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MediaServer describes one media server the scan runs against.
type MediaServer struct {
	Name   string `mapstructure:"name"`
	Type   string `mapstructure:"type"` // "emby" or "jellyfin"
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	UserID string `mapstructure:"user_id"`
}

// TMDBConfig holds TMDB API configuration.
type TMDBConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	ImageBaseURL string `mapstructure:"image_base_url"`
	Language     string `mapstructure:"language"`
	Timeout      int    `mapstructure:"timeout"` // seconds
}

// DoubanConfig holds Douban API configuration.
type DoubanConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"` // seconds
	// PaceMS is the deliberate delay applied before each Douban lookup.
	// The upstream service throttles aggressive clients, so this is a
	// courtesy pause, not a retry mechanism.
	PaceMS int `mapstructure:"pace_ms"`
}

// ScrapeConfig holds the reconciliation engine tunables.
type ScrapeConfig struct {
	// Policy selects which script check marks an item as needing work:
	// "all" (default), "name", or "role".
	Policy string `mapstructure:"policy"`
	// RemoveUnmatched drops people that could not be resolved instead of
	// keeping their original entry.
	RemoveUnmatched bool `mapstructure:"remove_unmatched"`
	// LockFields marks updated name/overview fields as locked on the
	// server so later refreshes do not overwrite them.
	LockFields bool `mapstructure:"lock_fields"`
	// OverwriteImages allows replacing an existing primary image. The
	// default is one-way fill: only people without an image get one.
	OverwriteImages bool `mapstructure:"overwrite_images"`
	// Concurrency bounds the per-item person update fan-out.
	Concurrency int `mapstructure:"concurrency"`
	// CacheClearInterval clears the response cache every N items to bound
	// memory on very large libraries.
	CacheClearInterval int `mapstructure:"cache_clear_interval"`
	// WritePaceMS is the pause before each media-server write.
	WritePaceMS int `mapstructure:"write_pace_ms"`
}

// SchedulerConfig holds the scan scheduling configuration.
type SchedulerConfig struct {
	Cron       string `mapstructure:"cron"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.castsync")
	}

	v.SetEnvPrefix("CASTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Scrape.normalize()

	return cfg, nil
}

// Validate checks that the configuration is complete enough to run a scan.
// A config without media servers or without TMDB credentials cannot do any work,
// so this is the one failure class that aborts instead of degrading.
func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("no media servers configured")
	}
	for i, s := range c.Servers {
		if s.Type != mediaserver.ServerTypeEmby && s.Type != mediaserver.ServerTypeJellyfin {
			return fmt.Errorf("mediaservers[%d]: unsupported type %q", i, s.Type)
		}
		if s.URL == "" || s.APIKey == "" {
			return fmt.Errorf("mediaservers[%d]: url and api_key are required", i)
		}
	}
	if c.TMDB.APIKey == "" {
		return fmt.Errorf("tmdb api_key is not configured")
	}
	return nil
}

// normalize clamps engine tunables into their supported ranges.
func (s *ScrapeConfig) normalize() {
	switch s.Policy {
	case "all", "name", "role":
	default:
		s.Policy = "all"
	}
	if s.Concurrency < 2 {
		s.Concurrency = 2
	}
	if s.Concurrency > 10 {
		s.Concurrency = 10
	}
	if s.CacheClearInterval <= 0 {
		s.CacheClearInterval = 500
	}
	if s.WritePaceMS < 0 {
		s.WritePaceMS = 0
	}
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8686)

	v.SetDefault("database.path", "./data/castsync.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("tmdb.base_url", "https://api.themoviedb.org/3")
	v.SetDefault("tmdb.image_base_url", "https://image.tmdb.org/t/p/original")
	v.SetDefault("tmdb.language", "zh-CN")
	v.SetDefault("tmdb.timeout", 30)

	v.SetDefault("douban.base_url", "https://frodo.douban.com/api/v2")
	v.SetDefault("douban.timeout", 30)
	v.SetDefault("douban.pace_ms", 2000)

	v.SetDefault("scrape.policy", "all")
	v.SetDefault("scrape.remove_unmatched", false)
	v.SetDefault("scrape.lock_fields", false)
	v.SetDefault("scrape.overwrite_images", false)
	v.SetDefault("scrape.concurrency", 5)
	v.SetDefault("scrape.cache_clear_interval", 500)
	v.SetDefault("scrape.write_pace_ms", 500)

	v.SetDefault("scheduler.cron", "")
	v.SetDefault("scheduler.run_on_start", false)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TimeoutDuration returns the TMDB request timeout as a duration.
func (c *TMDBConfig) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// TimeoutDuration returns the Douban request timeout as a duration.
func (c *DoubanConfig) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// Pace returns the Douban pacing delay as a duration.
func (c *DoubanConfig) Pace() time.Duration {
	if c.PaceMS <= 0 {
		return 0
	}
	return time.Duration(c.PaceMS) * time.Millisecond
}

// WritePace returns the media-server write pacing delay as a duration.
func (s *ScrapeConfig) WritePace() time.Duration {
	if s.WritePaceMS <= 0 {
		return 0
	}
	return time.Duration(s.WritePaceMS) * time.Millisecond
}
