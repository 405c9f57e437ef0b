package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. LEADGEN_SERVER_PORT or LEADGEN_QUEUE_REDIS_URL.
const EnvPrefix = "LEADGEN"

// DefaultOwnerID is the fallback owner used when none is configured.
const DefaultOwnerID = "00000000-0000-0000-0000-000000000001"

// Load configuration from a .env file, an optional config.yaml and environment
// variables. Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
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

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks a Config against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// setDefaults registers every key so that AutomaticEnv can bind it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.run_migrations", true)

	v.SetDefault("queue.transport", "memory")
	v.SetDefault("queue.buffer_size", 100)
	v.SetDefault("queue.redis_url", "")
	v.SetDefault("queue.stream", "leadgen:jobs")
	v.SetDefault("queue.group", "leadgen-workers")
	v.SetDefault("queue.consumer", "")
	v.SetDefault("queue.dlq_stream", "leadgen:jobs:dlq")
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.block", 5*time.Second)
	v.SetDefault("queue.claim_min_idle", 5*time.Minute)
	v.SetDefault("queue.max_attempts", 3)

	v.SetDefault("task.worker_count", 2)
	v.SetDefault("task.recover_pending", true)
	v.SetDefault("task.recover_pending_after", time.Minute)
	v.SetDefault("task.stuck_job_age", 30*time.Minute)
	v.SetDefault("task.stuck_check_interval", 5*time.Minute)

	v.SetDefault("generator.kind", "placeholder")
	v.SetDefault("generator.gemini_api_key", "")
	v.SetDefault("generator.model", "gemini-2.0-flash")
	v.SetDefault("generator.temperature", 0.4)
	v.SetDefault("generator.max_retries", 3)
	v.SetDefault("generator.base_delay", 2*time.Second)

	v.SetDefault("export.page_size", 500)

	v.SetDefault("owner.default_id", DefaultOwnerID)
	v.SetDefault("owner.default_email", "test@example.com")
	v.SetDefault("owner.default_name", "Test User")

	v.SetDefault("api.submit_rate", 5.0)
	v.SetDefault("api.submit_burst", 10)
}
