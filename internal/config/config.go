package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server       ServerConfig       `mapstructure:"server" validate:"required"`
	Auth         AuthConfig         `mapstructure:"auth" validate:"required"`
	Housekeeping HousekeepingConfig `mapstructure:"housekeeping" validate:"required"`
	Pool         PoolConfig         `mapstructure:"pool" validate:"required"`
	History      HistoryConfig      `mapstructure:"history" validate:"required"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	// Names maps task kinds to the labels shown to users
	Names map[string]string `mapstructure:"names"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"required,oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// AuthConfig contains the settings for operator tokens.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0,lt=525600"`
}

// HousekeepingConfig controls how long terminated tasks stay visible.
// A zero retention or count means no limit of that kind.
type HousekeepingConfig struct {
	Interval          time.Duration `mapstructure:"interval" validate:"gt=0"`
	FinishedRetention time.Duration `mapstructure:"finished_retention" validate:"gte=0"`
	MaxFinished       int           `mapstructure:"max_finished" validate:"gte=0"`
	FailedRetention   time.Duration `mapstructure:"failed_retention" validate:"gte=0"`
	MaxFailed         int           `mapstructure:"max_failed" validate:"gte=0"`
}

// PoolConfig bounds the number of task bodies running at once.
type PoolConfig struct {
	Size        int  `mapstructure:"size" validate:"gte=0"`
	Nonblocking bool `mapstructure:"nonblocking"`
}

// History drivers
const (
	HistoryDriverNone     = "none"
	HistoryDriverSQLite   = "sqlite"
	HistoryDriverPostgres = "postgres"
)

// HistoryConfig selects where records of disposed tasks are kept.
type HistoryConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=none sqlite postgres"`
	// DSN is a file path for sqlite and a connection URL for postgres
	DSN       string        `mapstructure:"dsn" validate:"required_unless=Driver none"`
	Retention time.Duration `mapstructure:"retention" validate:"gte=0"`
}

// RedisConfig configures the live progress cache. Empty Address disables it.
type RedisConfig struct {
	Address  string        `mapstructure:"address" validate:"omitempty,hostname_port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// Enabled reports whether a redis address is configured
func (c RedisConfig) Enabled() bool {
	return c.Address != ""
}

// KafkaConfig configures the lifecycle event publisher. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic" validate:"required_with=Brokers"`
}

// Enabled reports whether kafka brokers are configured
func (c KafkaConfig) Enabled() bool {
	return c.Brokers != ""
}
