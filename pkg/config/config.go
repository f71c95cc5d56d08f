// Package config provides configuration loading and validation utilities.
package config

import "time"

// Bot transport modes.
const (
	BotModeLongPoll = "longpoll"
	BotModeWebhook  = "webhook"
)

// Storage backend names.
const (
	StorageBackendFile     = "file"
	StorageBackendRedis    = "redis"
	StorageBackendPostgres = "postgres"
)

// Notifier sweep interval bounds. The upstream portal throttles aggressive
// polling, and anything above the upper bound defeats the point of a
// change notifier.
const (
	MinNotifyInterval     = 2 * time.Minute
	MaxNotifyInterval     = 15 * time.Minute
	DefaultNotifyInterval = 5 * time.Minute
)

// Config holds the full runtime configuration for the gradewatch bot.
type Config struct {
	AppEnv string `mapstructure:"app_env"`

	Bot        BotConfig        `mapstructure:"bot" validate:"required"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Encryption EncryptionConfig `mapstructure:"encryption" validate:"required"`
	Storage    StorageConfig    `mapstructure:"storage" validate:"required"`
	Notifier   NotifierConfig   `mapstructure:"notifier"`
	Server     ServerConfig     `mapstructure:"server"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
}

// BotConfig configures the Telegram transport.
type BotConfig struct {
	Token         string        `mapstructure:"token" validate:"required"`
	Mode          string        `mapstructure:"mode" validate:"oneof=longpoll webhook"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout"`
	WebhookListen string        `mapstructure:"webhook_listen" validate:"required_if=Mode webhook"`
	WebhookURL    string        `mapstructure:"webhook_url" validate:"required_if=Mode webhook"`
}

// RedisConfig configures the shared Redis connection. It is required when
// either the dialog store or the storage backend uses Redis.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// EncryptionConfig carries the AES key material for data at rest.
type EncryptionConfig struct {
	Key string `mapstructure:"key" validate:"required,len=32"`
	IV  string `mapstructure:"iv" validate:"required,len=16"`
}

// StorageConfig selects the durable key-value backend.
type StorageConfig struct {
	Backend     string `mapstructure:"backend" validate:"oneof=file redis postgres"`
	FilePath    string `mapstructure:"file_path" validate:"required_if=Backend file"`
	PostgresDSN string `mapstructure:"postgres_dsn" validate:"required_if=Backend postgres"`
}

// NotifierConfig configures the periodic transcript sweep.
type NotifierConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ServerConfig configures the operational HTTP server (health, metrics).
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggerConfig configures structured logging output.
type LoggerConfig struct {
	Level  string        `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string        `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig configures rotated log files.
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path" validate:"required_if=Enabled true"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn" validate:"required_if=Enabled true"`
}

// NotifyInterval returns the configured sweep interval clamped to the
// supported range, falling back to the default when unset.
func (c *Config) NotifyInterval() time.Duration {
	interval := c.Notifier.Interval
	switch {
	case interval == 0:
		return DefaultNotifyInterval
	case interval < MinNotifyInterval:
		return MinNotifyInterval
	case interval > MaxNotifyInterval:
		return MaxNotifyInterval
	default:
		return interval
	}
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Redis.Addr != "" || c.Storage.Backend == StorageBackendRedis
}
