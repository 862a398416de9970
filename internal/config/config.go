// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

// Package config loads and validates Gatewatch configuration from
// struct defaults, an optional YAML file, and environment variables,
// in that order of precedence (later wins).
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	UniFi     UniFiConfig     `koanf:"unifi"`
	Telegram  TelegramConfig  `koanf:"telegram"`
	Database  DatabaseConfig  `koanf:"database"`
	Backfill  BackfillConfig  `koanf:"backfill"`
	Retention RetentionConfig `koanf:"retention"`
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
}

// UniFiConfig holds the upstream console connection settings.
type UniFiConfig struct {
	// Host is the console hostname or IP (no scheme).
	Host string `koanf:"host" validate:"required"`

	// Username is a local admin account (not SSO).
	Username string `koanf:"username" validate:"required"`

	// Password for the local admin account.
	Password string `koanf:"password" validate:"required"`

	// VerifySSL enables certificate verification. Consoles ship with
	// self-signed certificates, so this defaults to false.
	VerifySSL bool `koanf:"verify_ssl"`
}

// BaseURL returns the HTTPS base URL for REST requests.
func (c *UniFiConfig) BaseURL() string {
	return "https://" + c.Host
}

// TelegramConfig holds the notification channel settings.
// When BotToken or ChatID is empty, notifications are drained to a sink.
type TelegramConfig struct {
	BotToken string `koanf:"bot_token"`
	ChatID   string `koanf:"chat_id"`

	// MaxAttempts is the retry budget per notification.
	MaxAttempts int `koanf:"max_attempts" validate:"min=1"`
}

// Enabled reports whether Telegram delivery is configured.
func (c *TelegramConfig) Enabled() bool {
	return c.BotToken != "" && c.ChatID != ""
}

// DatabaseConfig holds the DuckDB store settings.
type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`

	// MaxSizeMB is the retention size budget for the store file.
	MaxSizeMB int64 `koanf:"max_size_mb" validate:"min=1"`

	// MaxMemory caps DuckDB's working memory (e.g. "512MB").
	MaxMemory string `koanf:"max_memory"`

	// Threads for DuckDB; 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// BackfillConfig controls the one-shot historical REST fetch.
type BackfillConfig struct {
	NetworkLimit int `koanf:"network_limit" validate:"min=0"`
	SystemLimit  int `koanf:"system_limit" validate:"min=0"`

	// AlarmFallback selects the source tag applied to system-backfill
	// rows served by the network alarm fallback endpoint:
	//   "merge"    - keep the system source tag (default)
	//   "distinct" - tag them with the network source that served them
	AlarmFallback string `koanf:"alarm_fallback" validate:"oneof=merge distinct"`
}

// Alarm fallback policies.
const (
	AlarmFallbackMerge    = "merge"
	AlarmFallbackDistinct = "distinct"
)

// RetentionConfig controls the periodic store shrink.
type RetentionConfig struct {
	Interval time.Duration `koanf:"interval" validate:"min=1m"`

	// TargetRatio is the fraction of the size budget the store is
	// shrunk to when the budget is exceeded.
	TargetRatio float64 `koanf:"target_ratio" validate:"gt=0,lte=1"`
}

// ServerConfig holds the operations HTTP surface settings.
type ServerConfig struct {
	ListenAddr      string        `koanf:"listen_addr" validate:"required"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit" validate:"min=1"` // requests/min per IP
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// defaultConfig returns a Config with all default values applied.
// Defaults are loaded first, then overridden by file and env values.
func defaultConfig() *Config {
	return &Config{
		UniFi: UniFiConfig{
			VerifySSL: false, // consoles use self-signed certs by default
		},
		Telegram: TelegramConfig{
			MaxAttempts: 10,
		},
		Database: DatabaseConfig{
			Path:      "/data/gatewatch.duckdb",
			MaxSizeMB: 512,
			MaxMemory: "512MB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Backfill: BackfillConfig{
			NetworkLimit:  1000,
			SystemLimit:   500,
			AlarmFallback: AlarmFallbackMerge,
		},
		Retention: RetentionConfig{
			Interval:    time.Hour,
			TargetRatio: 0.8,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			CORSOrigins:     []string{"*"},
			RateLimit:       120,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
