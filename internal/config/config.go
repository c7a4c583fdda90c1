// Package config loads and exposes application configuration (TOML).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":1145"
	DefaultDataDir       = "data"
	DefaultStoreBackend  = "json"
	DefaultMaxTextLength = 500
	DefaultMaxImages     = 1
	DefaultCloudBaseURL  = "http://wuyan1003.cn:1145"
	DefaultSyncInterval  = "30m"
	DefaultSyncBatchSize = 10
	DefaultSyncRateEvery = "2s"
	DefaultPGHost        = "127.0.0.1"
	DefaultPGPort        = 5432
	DefaultPGUser        = "postgres"
	DefaultPGDatabase    = "driftbottle"
	DefaultPGSSLMode     = "disable"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Data     DataConfig     `toml:"data"`
	Limits   LimitsConfig   `toml:"limits"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Cloud    CloudConfig    `toml:"cloud"`
	Sync     SyncConfig     `toml:"sync"`
	Telegram TelegramConfig `toml:"telegram"`
	Discord  DiscordConfig  `toml:"discord"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DataConfig holds the local data directory and the store backend selector
// ("json" or "postgres").
type DataConfig struct {
	Dir     string `toml:"dir"`
	Backend string `toml:"backend"`
}

// LimitsConfig bounds bottle content: text length in runes and image count.
type LimitsConfig struct {
	MaxTextLength int `toml:"max_text_length"`
	MaxImages     int `toml:"max_images"`
}

// ServerConfig holds the HTTP bottle API listen address. Empty Addr with
// Enabled=false disables the embedded server.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// CloudConfig holds the remote bottle service base URL and request timeout.
type CloudConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the request timeout, defaulting to 30 seconds.
func (c CloudConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SyncConfig controls the local-to-cloud upload task.
type SyncConfig struct {
	Enabled   bool   `toml:"enabled"`
	Interval  string `toml:"interval"`
	BatchSize int    `toml:"batch_size"`
	// RateEvery is the minimum spacing between uploads within a batch.
	RateEvery string `toml:"rate_every"`
}

// IntervalDuration parses Interval, falling back to the default on error.
func (c SyncConfig) IntervalDuration() time.Duration {
	return parseDuration(c.Interval, DefaultSyncInterval)
}

// RateEveryDuration parses RateEvery, falling back to the default on error.
func (c SyncConfig) RateEveryDuration() time.Duration {
	return parseDuration(c.RateEvery, DefaultSyncRateEvery)
}

// TelegramConfig holds the bot token; an empty token disables the adapter.
type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
}

// DiscordConfig holds the bot token; an empty token disables the adapter.
type DiscordConfig struct {
	BotToken string `toml:"bot_token"`
}

func parseDuration(raw, fallback string) time.Duration {
	if raw == "" {
		raw = fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Data: DataConfig{
			Dir:     DefaultDataDir,
			Backend: DefaultStoreBackend,
		},
		Limits: LimitsConfig{
			MaxTextLength: DefaultMaxTextLength,
			MaxImages:     DefaultMaxImages,
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Cloud: CloudConfig{
			BaseURL:        DefaultCloudBaseURL,
			TimeoutSeconds: 30,
		},
		Sync: SyncConfig{
			Interval:  DefaultSyncInterval,
			BatchSize: DefaultSyncBatchSize,
			RateEvery: DefaultSyncRateEvery,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Data.Backend {
	case "json", "postgres":
	default:
		return fmt.Errorf("unknown store backend: %s (use: json, postgres)", c.Data.Backend)
	}
	if c.Limits.MaxTextLength <= 0 {
		return fmt.Errorf("max_text_length must be positive")
	}
	if c.Limits.MaxImages < 0 {
		return fmt.Errorf("max_images must not be negative")
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync batch_size must be positive")
	}
	return nil
}
