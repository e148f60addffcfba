package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds server configuration values.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	JWT       JWTConfig       `mapstructure:"jwt" yaml:"jwt"`
	Chat      ChatConfig      `mapstructure:"chat" yaml:"chat"`
	Push      PushConfig      `mapstructure:"push" yaml:"push"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch" yaml:"dispatch"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka" yaml:"kafka"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" yaml:"ratelimit"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	// WSBuffer is the per-client event buffer.
	WSBuffer int `mapstructure:"ws_buffer" yaml:"ws_buffer" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=console json"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=sqlite mongo"`
	Path   string `mapstructure:"path" yaml:"path" validate:"required_if=Driver sqlite"`

	MongoURI string `mapstructure:"mongo_uri" yaml:"mongo_uri" validate:"required_if=Driver mongo"`
	MongoDB  string `mapstructure:"mongo_db" yaml:"mongo_db" validate:"required_if=Driver mongo"`
}

type JWTConfig struct {
	Secret   string        `mapstructure:"secret" yaml:"secret" validate:"required,min=16"`
	Issuer   string        `mapstructure:"issuer" yaml:"issuer"`
	Audience string        `mapstructure:"audience" yaml:"audience"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"gt=0"`
}

type ChatConfig struct {
	PublicFallbackName string `mapstructure:"public_fallback_name" yaml:"public_fallback_name" validate:"required"`
	MaxMessageLength   int    `mapstructure:"max_message_length" yaml:"max_message_length" validate:"gt=0"`
}

// PushConfig selects the push provider. "log" only records what would be sent.
type PushConfig struct {
	Provider        string        `mapstructure:"provider" yaml:"provider" validate:"oneof=log fcm"`
	ProjectID       string        `mapstructure:"project_id" yaml:"project_id"`
	CredentialsFile string        `mapstructure:"credentials_file" yaml:"credentials_file" validate:"required_if=Provider fcm"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`

	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures" yaml:"breaker_max_failures" validate:"gt=0"`
	BreakerInterval    time.Duration `mapstructure:"breaker_interval" yaml:"breaker_interval"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout" yaml:"breaker_timeout" validate:"gt=0"`
}

type DispatchConfig struct {
	Workers   int `mapstructure:"workers" yaml:"workers" validate:"gt=0"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size" validate:"gt=0"`
}

// RedisConfig enables the cross-instance event relay when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db" validate:"gte=0"`
	Channel  string `mapstructure:"channel" yaml:"channel"`
}

// KafkaConfig enables the Kafka dead-letter sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers" yaml:"brokers"`
	Topic   string   `mapstructure:"topic" yaml:"topic" validate:"required_with=Brokers"`
}

// RateLimitConfig bounds message sends per actor.
type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second" yaml:"per_second" validate:"gt=0"`
	Burst     int     `mapstructure:"burst" yaml:"burst" validate:"gt=0"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			WSBuffer:          64,
		},
		Log: LogConfig{Level: "info", Format: "console"},
		Store: StoreConfig{
			Driver:  "sqlite",
			Path:    "myconnect.db",
			MongoDB: "myconnect",
		},
		JWT: JWTConfig{
			Secret:   "change-me-in-production-please",
			Issuer:   "myconnect",
			Audience: "myconnect-app",
			TTL:      24 * time.Hour,
		},
		Chat: ChatConfig{
			PublicFallbackName: "My Connect",
			MaxMessageLength:   4000,
		},
		Push: PushConfig{
			Provider:           "log",
			Timeout:            10 * time.Second,
			BreakerMaxFailures: 5,
			BreakerInterval:    time.Minute,
			BreakerTimeout:     30 * time.Second,
		},
		Dispatch: DispatchConfig{Workers: 4, QueueSize: 256},
		Redis:    RedisConfig{Channel: "myconnect:events"},
		Kafka:    KafkaConfig{Topic: "myconnect.deadletters"},
		RateLimit: RateLimitConfig{
			PerSecond: 5,
			Burst:     10,
		},
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
