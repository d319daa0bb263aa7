package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix is the prefix for all environment variables read by Load
// (e.g. QUIZ_SERVER_PORT, QUIZ_DATABASE_URL).
const envPrefix = "QUIZ"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults keep a development setup runnable with only the database URL
	// and JWT secret supplied.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("task.worker_count", 2)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.max_attempts", 3)
	v.SetDefault("task.retry_backoff_seconds", 5)
	v.SetDefault("task.timeout_minutes", 10)
	v.SetDefault("task.stuck_task_age_minutes", 30)
	v.SetDefault("schedule.tick_seconds", 60)
	v.SetDefault("schedule.daily_reminder_hour", 18)
	v.SetDefault("schedule.monthly_report_day", 1)
	v.SetDefault("schedule.monthly_report_hour", 8)
	v.SetDefault("notify.inactivity_window_days", 7)
	v.SetDefault("notify.webhook_timeout_seconds", 10)
	v.SetDefault("report.export_dir", "exports")
	v.SetDefault("redis.ranking_ttl_seconds", 3600)

	// Optional config file in the working directory.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; environment variables and defaults apply.
	}

	// Environment variables override file values: QUIZ_SERVER_PORT etc.
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults must be bound explicitly for Unmarshal to see
	// their environment values.
	for _, key := range []string{
		"database.url",
		"auth.jwt_secret",
		"redis.addr",
		"notify.smtp.host",
		"notify.smtp.port",
		"notify.smtp.from",
		"notify.smtp.username",
		"notify.smtp.password",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}
