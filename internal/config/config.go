package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Queue     QueueConfig     `mapstructure:"queue"     validate:"required"`
	Task      TaskConfig      `mapstructure:"task"      validate:"required"`
	Generator GeneratorConfig `mapstructure:"generator" validate:"required"`
	Export    ExportConfig    `mapstructure:"export"    validate:"required"`
	Owner     OwnerConfig     `mapstructure:"owner"     validate:"required"`
	API       APIConfig       `mapstructure:"api"       validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"             validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level"        validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig selects the job store backend and its connection settings.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"            validate:"required,oneof=postgres memory"`
	URL             string        `mapstructure:"url"               validate:"required_if=Driver postgres"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
}

// QueueConfig selects the dispatch transport.
// The memory transport is not durable and exists for development and tests.
type QueueConfig struct {
	Transport    string        `mapstructure:"transport"      validate:"required,oneof=memory redis"`
	BufferSize   int           `mapstructure:"buffer_size"    validate:"gt=0"`
	RedisURL     string        `mapstructure:"redis_url"      validate:"required_if=Transport redis"`
	Stream       string        `mapstructure:"stream"         validate:"required"`
	Group        string        `mapstructure:"group"          validate:"required"`
	Consumer     string        `mapstructure:"consumer"`
	DLQStream    string        `mapstructure:"dlq_stream"     validate:"required"`
	BatchSize    int           `mapstructure:"batch_size"     validate:"gt=0"`
	Block        time.Duration `mapstructure:"block"          validate:"gt=0"`
	ClaimMinIdle time.Duration `mapstructure:"claim_min_idle" validate:"gt=0"`
	MaxAttempts  int           `mapstructure:"max_attempts"   validate:"gte=1"`
}

// TaskConfig controls the worker pool and its background maintenance.
type TaskConfig struct {
	WorkerCount         int           `mapstructure:"worker_count"          validate:"gte=1"`
	RecoverPending      bool          `mapstructure:"recover_pending"`
	RecoverPendingAfter time.Duration `mapstructure:"recover_pending_after" validate:"gte=0"`
	StuckJobAge         time.Duration `mapstructure:"stuck_job_age"         validate:"gt=0"`
	StuckCheckInterval  time.Duration `mapstructure:"stuck_check_interval"  validate:"gt=0"`
}

// GeneratorConfig selects the lead generation strategy.
type GeneratorConfig struct {
	Kind         string        `mapstructure:"kind"           validate:"required,oneof=placeholder sample gemini"`
	GeminiAPIKey string        `mapstructure:"gemini_api_key" validate:"required_if=Kind gemini"`
	Model        string        `mapstructure:"model"`
	Temperature  float32       `mapstructure:"temperature"    validate:"gte=0,lte=2"`
	MaxRetries   int           `mapstructure:"max_retries"    validate:"gte=0,lte=10"`
	BaseDelay    time.Duration `mapstructure:"base_delay"     validate:"gte=0"`
}

// ExportConfig contains CSV export settings.
type ExportConfig struct {
	PageSize int `mapstructure:"page_size" validate:"gte=1,lte=10000"`
}

// OwnerConfig describes the owner used when a request names none.
type OwnerConfig struct {
	DefaultID    string `mapstructure:"default_id"    validate:"required,uuid"`
	DefaultEmail string `mapstructure:"default_email" validate:"required,email"`
	DefaultName  string `mapstructure:"default_name"`
}

// APIConfig contains HTTP API behavior settings.
type APIConfig struct {
	// SubmitRate is the sustained number of job submissions accepted per second.
	// Zero disables limiting.
	SubmitRate  float64 `mapstructure:"submit_rate"  validate:"gte=0"`
	SubmitBurst int     `mapstructure:"submit_burst" validate:"gte=1"`
}
