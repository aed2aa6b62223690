package pubsub

import (
	"fmt"
	"time"
)

// Supported drivers.
const (
	DriverNone  = "none"
	DriverRedis = "redis"
	DriverKafka = "kafka"
	DriverNATS  = "nats"
)

// KafkaConfig holds Kafka-specific configuration.
type KafkaConfig struct {
	Brokers    string `mapstructure:"brokers"`
	GroupID    string `mapstructure:"group_id"`
	Partitions int    `mapstructure:"partitions"`
}

// NATSConfig holds NATS-specific configuration.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// Config holds the configuration for the pub/sub system.
type Config struct {
	Driver string      `mapstructure:"driver"` // "none", "redis", "kafka", "nats"
	Redis  RedisConfig `mapstructure:"redis"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
	NATS   NATSConfig  `mapstructure:"nats"`
}

// Enabled reports whether a bus driver is configured.
func (c Config) Enabled() bool {
	return c.Driver != "" && c.Driver != DriverNone
}

// RedisConfig holds Redis-specific configuration.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Driver: DriverNone,
		Redis: RedisConfig{
			Address:      "localhost:6379",
			Password:     "",
			DB:           0,
			PoolSize:     10,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:    "localhost:9092",
			GroupID:    "photo-relay",
			Partitions: 4,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Name:          "photo-relay",
			MaxReconnects: 10,
			ReconnectWait: time.Second,
		},
	}
}

// NewPubSub creates a new PubSub instance based on the configuration.
func NewPubSub(cfg Config) (PubSub, error) {
	switch cfg.Driver {
	case DriverKafka:
		return NewKafkaPubSub(cfg.Kafka)
	case DriverRedis:
		return NewRedisPubSub(cfg.Redis)
	case DriverNATS:
		return NewNATSPubSub(cfg.NATS)
	default:
		return nil, fmt.Errorf("unsupported pubsub driver %q", cfg.Driver)
	}
}
