package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by Load
const EnvPrefix = "TASKKEEPER"

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from the config file.
// An empty path looks for taskkeeper.yaml in the working directory and in
// /etc/taskkeeper; a missing file is not an error in that case.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("housekeeping.interval", "5s")
	v.SetDefault("housekeeping.finished_retention", "1h")
	v.SetDefault("housekeeping.max_finished", 3)
	v.SetDefault("housekeeping.failed_retention", "4h")
	v.SetDefault("housekeeping.max_failed", 10)
	v.SetDefault("pool.size", 8)
	v.SetDefault("pool.nonblocking", true)
	v.SetDefault("history.driver", "none")
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.retention", "720h")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "taskkeeper.lifecycle")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("taskkeeper")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/taskkeeper")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
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

// Validate checks the struct tags of a loaded configuration
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
