package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "QUILL"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// A .env file in the working directory is loaded first when present; it never
// overrides variables that are already set.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

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
	bindEnvironmentVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.public_url", "http://localhost:8080")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("auth.refresh_token_lifetime_minutes", 10080)
	v.SetDefault("auth.reset_token_lifetime_minutes", 30)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.cookie_name", "access_token")
	v.SetDefault("auth.cookie_secure", false)

	v.SetDefault("task.worker_count", 2)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.stuck_task_age_minutes", 30)
	v.SetDefault("task.max_attempts", 3)
	v.SetDefault("task.retry_delay_seconds", 5)
	v.SetDefault("task.timeout_seconds", 120)

	v.SetDefault("scheduler.publish_spec", "@every 1m")
	v.SetDefault("scheduler.reconcile_spec", "@every 10m")
	v.SetDefault("scheduler.batch_size", 100)
	v.SetDefault("scheduler.stale_after_minutes", 30)

	v.SetDefault("redis.blog_cache_ttl_seconds", 300)

	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("rate_limit.auth_attempts", 5)
	v.SetDefault("rate_limit.auth_window_seconds", 900)

	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "no-reply@quill.local")

	v.SetDefault("search.index", "blogs")

	v.SetDefault("storage.max_upload_bytes", 5<<20)

	v.SetDefault("broker.exchange", "quill.events")
}

// bindEnvironmentVariables binds every known key so that AutomaticEnv can
// populate values that have no default or config file entry.
func bindEnvironmentVariables(v *viper.Viper) {
	keys := []string{
		"server.port", "server.log_level", "server.shutdown_timeout_seconds",
		"server.allowed_origins", "server.public_url",
		"database.url", "database.max_open_conns", "database.max_idle_conns",
		"auth.jwt_secret", "auth.token_lifetime_minutes", "auth.refresh_token_lifetime_minutes",
		"auth.reset_token_lifetime_minutes", "auth.bcrypt_cost", "auth.cookie_name", "auth.cookie_secure",
		"task.worker_count", "task.queue_size", "task.stuck_task_age_minutes",
		"task.max_attempts", "task.retry_delay_seconds", "task.timeout_seconds",
		"scheduler.publish_spec", "scheduler.reconcile_spec", "scheduler.batch_size",
		"redis.url", "redis.blog_cache_ttl_seconds",
		"rate_limit.requests_per_second", "rate_limit.burst",
		"rate_limit.auth_attempts", "rate_limit.auth_window_seconds",
		"mail.host", "mail.port", "mail.username", "mail.password", "mail.from",
		"search.elasticsearch_url", "search.index",
		"storage.bucket", "storage.credentials_file", "storage.public_base_url", "storage.max_upload_bytes",
		"broker.url", "broker.exchange",
	}
	for _, key := range keys {
		// BindEnv only fails when called without a key
		_ = v.BindEnv(key)
	}
}
