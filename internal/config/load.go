package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file; env vars always win.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, which it
	// learns from defaults or a config file. database.url carries no
	// default, so every key is bound explicitly or CATALOG_DATABASE_URL
	// would never be read.
	keys := []string{
		"server.port",
		"server.log_level",
		"database.url",
		"redis.url",
		"queue.worker_count",
		"queue.queue_size",
		"queue.lease_timeout",
		"queue.lease_check_interval",
		"ingest.upload_dir",
		"ingest.batch_size",
		"ingest.delete_batch_size",
		"webhook.timeout",
		"webhook.max_attempts",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("queue.worker_count", 2)
	v.SetDefault("queue.queue_size", 100)
	v.SetDefault("queue.lease_timeout", 10*time.Minute)
	v.SetDefault("queue.lease_check_interval", time.Minute)
	v.SetDefault("ingest.upload_dir", "/tmp/uploads")
	v.SetDefault("ingest.batch_size", 500)
	v.SetDefault("ingest.delete_batch_size", 1000)
	v.SetDefault("webhook.timeout", 30*time.Second)
	v.SetDefault("webhook.max_attempts", 3)
}
