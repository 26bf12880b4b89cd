package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load,
// e.g. TASKSTREAM_DATABASE_URL for database.url.
const EnvPrefix = "TASKSTREAM"

// keys lists every configuration key so each can be bound to its environment
// variable even when no default or config file entry exists for it.
var keys = []string{
	"server.port",
	"server.log_level",
	"server.cors_allowed_origins",
	"server.rate_limit_requests",
	"server.rate_limit_window_seconds",
	"server.shutdown_timeout_seconds",
	"database.url",
	"database.max_open_conns",
	"database.max_idle_conns",
	"auth.jwt_secret",
	"auth.token_lifetime_minutes",
	"auth.refresh_token_lifetime_minutes",
	"auth.websocket_token_lifetime_minutes",
	"auth.bcrypt_cost",
	"realtime.write_timeout_seconds",
	"realtime.pong_timeout_seconds",
	"realtime.send_buffer_size",
	"realtime.max_message_bytes",
	"realtime.frames_per_second",
	"realtime.frame_burst",
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// An optional config.yaml in the working directory
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers the fallback value for every optional setting.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.cors_allowed_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("server.rate_limit_requests", 20)
	v.SetDefault("server.rate_limit_window_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("auth.token_lifetime_minutes", 30)
	v.SetDefault("auth.refresh_token_lifetime_minutes", 7*24*60)
	v.SetDefault("auth.websocket_token_lifetime_minutes", 15)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("realtime.write_timeout_seconds", 10)
	v.SetDefault("realtime.pong_timeout_seconds", 60)
	v.SetDefault("realtime.send_buffer_size", 256)
	v.SetDefault("realtime.max_message_bytes", 4096)
	v.SetDefault("realtime.frames_per_second", 20)
	v.SetDefault("realtime.frame_burst", 40)
}
