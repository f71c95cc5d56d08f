package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from YAML files and environment variables,
// validates it, and returns the resulting Config alongside the viper instance
// for change watching.
func Load() (*Config, *viper.Viper, error) {
	// Missing env files are fine, the YAML config is the source of truth.
	_ = godotenv.Load(".env.local", ".env")

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	v.SetConfigFile(fmt.Sprintf("./configs/%s.yaml", env))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.AppEnv = env

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.mode", BotModeLongPoll)
	v.SetDefault("bot.poll_timeout", "10s")
	v.SetDefault("storage.backend", StorageBackendFile)
	v.SetDefault("storage.file_path", "./data")
	v.SetDefault("notifier.interval", DefaultNotifyInterval.String())
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// WatchLogLevel reloads the log level when the config file changes, so the
// level can be raised on a live process without a restart.
func WatchLogLevel(v *viper.Viper, level *slog.LevelVar, log *slog.Logger) {
	v.OnConfigChange(func(event fsnotify.Event) {
		if event.Op&fsnotify.Write == 0 {
			return
		}

		var parsed slog.Level
		raw := v.GetString("logger.level")
		if err := parsed.UnmarshalText([]byte(raw)); err != nil {
			log.Warn("ignoring invalid log level from config change", slog.String("level", raw))
			return
		}

		if parsed != level.Level() {
			level.Set(parsed)
			log.Info("log level changed", slog.String("level", parsed.String()))
		}
	})
	v.WatchConfig()
}
