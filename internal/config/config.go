/**
 * @description
 * This package handles the configuration management for the admin-service. It uses the
 * Viper library to read configuration from environment variables and an optional .env
 * file, then normalises the values the rest of the service relies on.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultLockPrefix   = "admin:action_lock"
	defaultExchange     = "ledger.events"
	defaultChangeQueue  = "admin_service.ledger_changes"
	defaultResync       = "@every 5m"
	defaultLockTTL      = 30
	defaultSessionTTL   = 720
	defaultWriteTimeout = 15
)

// Config holds all the configuration variables for the admin-service.
type Config struct {
	ServerPort               string `mapstructure:"SERVER_PORT"`
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisLockPrefix          string `mapstructure:"REDIS_LOCK_PREFIX"`
	ActionLockTTLSeconds     int    `mapstructure:"ACTION_LOCK_TTL_SECONDS"`
	RabbitMQURL              string `mapstructure:"RABBITMQ_URL"`
	LedgerExchange           string `mapstructure:"LEDGER_EXCHANGE"`
	LedgerChangeQueue        string `mapstructure:"LEDGER_CHANGE_QUEUE"`
	SessionSecret            string `mapstructure:"SESSION_SECRET"`
	SessionTTLMinutes        int    `mapstructure:"SESSION_TTL_MINUTES"`
	AdminPasswordHash        string `mapstructure:"ADMIN_PASSWORD_HASH"`
	ResyncSchedule           string `mapstructure:"RESYNC_SCHEDULE"`
	LogLevel                 string `mapstructure:"LOG_LEVEL"`
	CORSAllowedOrigins       string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	StoreWriteTimeoutSeconds int    `mapstructure:"STORE_WRITE_TIMEOUT_SECONDS"`
}

// LoadConfig reads configuration from environment variables and an optional .env file
// in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_LOCK_PREFIX", defaultLockPrefix)
	viper.SetDefault("ACTION_LOCK_TTL_SECONDS", defaultLockTTL)
	viper.SetDefault("LEDGER_EXCHANGE", defaultExchange)
	viper.SetDefault("LEDGER_CHANGE_QUEUE", defaultChangeQueue)
	viper.SetDefault("SESSION_TTL_MINUTES", defaultSessionTTL)
	viper.SetDefault("RESYNC_SCHEDULE", defaultResync)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("STORE_WRITE_TIMEOUT_SECONDS", defaultWriteTimeout)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "ADMIN_REDIS_URL")
	_ = viper.BindEnv("REDIS_LOCK_PREFIX")
	_ = viper.BindEnv("ACTION_LOCK_TTL_SECONDS")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("LEDGER_EXCHANGE")
	_ = viper.BindEnv("LEDGER_CHANGE_QUEUE")
	_ = viper.BindEnv("SESSION_SECRET")
	_ = viper.BindEnv("SESSION_TTL_MINUTES")
	_ = viper.BindEnv("ADMIN_PASSWORD_HASH")
	_ = viper.BindEnv("RESYNC_SCHEDULE")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("STORE_WRITE_TIMEOUT_SECONDS")

	// A missing .env file is fine; any other read error falls back to the environment.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("failed to read config file; using environment values", "component", "config", "error", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.AdminPasswordHash = strings.TrimSpace(config.AdminPasswordHash)

	config.RedisLockPrefix = strings.TrimSpace(config.RedisLockPrefix)
	if config.RedisLockPrefix == "" {
		config.RedisLockPrefix = defaultLockPrefix
	}
	config.LedgerExchange = strings.TrimSpace(config.LedgerExchange)
	if config.LedgerExchange == "" {
		config.LedgerExchange = defaultExchange
	}
	config.LedgerChangeQueue = strings.TrimSpace(config.LedgerChangeQueue)
	if config.LedgerChangeQueue == "" {
		config.LedgerChangeQueue = defaultChangeQueue
	}
	config.ResyncSchedule = strings.TrimSpace(config.ResyncSchedule)
	if config.ResyncSchedule == "" {
		config.ResyncSchedule = defaultResync
	}

	if config.ActionLockTTLSeconds <= 0 {
		slog.Warn("non-positive action lock ttl configured; using default", "component", "config", "value", config.ActionLockTTLSeconds)
		config.ActionLockTTLSeconds = defaultLockTTL
	}
	if config.SessionTTLMinutes <= 0 {
		slog.Warn("non-positive session ttl configured; using default", "component", "config", "value", config.SessionTTLMinutes)
		config.SessionTTLMinutes = defaultSessionTTL
	}
	if config.StoreWriteTimeoutSeconds <= 0 {
		slog.Warn("non-positive store write timeout configured; using default", "component", "config", "value", config.StoreWriteTimeoutSeconds)
		config.StoreWriteTimeoutSeconds = defaultWriteTimeout
	}

	return
}

// ActionLockTTL is the lifetime of a Redis action lock.
func (c Config) ActionLockTTL() time.Duration {
	return time.Duration(c.ActionLockTTLSeconds) * time.Second
}

// SessionTTL is the lifetime of a session token.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// StoreWriteTimeout bounds one plan application.
func (c Config) StoreWriteTimeout() time.Duration {
	return time.Duration(c.StoreWriteTimeoutSeconds) * time.Second
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas, dropping blanks.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
