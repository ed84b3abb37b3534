package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
	Ingest   IngestConfig   `mapstructure:"ingest" validate:"required"`
	Webhook  WebhookConfig  `mapstructure:"webhook" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// RedisConfig locates the fast counter cache. The cache is advisory;
// the service runs degraded but correct without it.
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// QueueConfig tunes the task queue client and its lease semantics.
type QueueConfig struct {
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`
	QueueSize   int `mapstructure:"queue_size" validate:"required,gt=0"`

	// LeaseTimeout is how long a task may sit in processing before it is
	// considered abandoned and redelivered. Keep it well above the
	// worst-case row batch duration.
	LeaseTimeout time.Duration `mapstructure:"lease_timeout" validate:"required"`

	// LeaseCheckInterval is how often abandoned tasks are scanned for.
	LeaseCheckInterval time.Duration `mapstructure:"lease_check_interval" validate:"required"`
}

// IngestConfig tunes the CSV import pipeline.
type IngestConfig struct {
	// UploadDir is where accepted source files are persisted before the
	// job is enqueued.
	UploadDir string `mapstructure:"upload_dir" validate:"required"`

	// BatchSize is how many row decisions are committed per transaction.
	BatchSize int `mapstructure:"batch_size" validate:"required,gt=0"`

	// DeleteBatchSize is how many products a bulk delete removes per
	// transaction.
	DeleteBatchSize int `mapstructure:"delete_batch_size" validate:"required,gt=0"`
}

// WebhookConfig tunes the webhook dispatcher.
type WebhookConfig struct {
	Timeout     time.Duration `mapstructure:"timeout" validate:"required"`
	MaxAttempts int           `mapstructure:"max_attempts" validate:"required,gt=0"`
}
