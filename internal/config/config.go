package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/ylxai/Hafiportrait-sub001/pkg/config"
	"github.com/ylxai/Hafiportrait-sub001/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	PubSub    pubsub.Config `mapstructure:"pubsub"`
	Kafka     KafkaConfig
	Auth      AuthConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig
}

type ServerConfig struct {
	Host       string
	Port       int
	Version    string
	InstanceID string `mapstructure:"instance_id"`
}

type WebSocketConfig struct {
	Path           string
	PingInterval   time.Duration `mapstructure:"-"`
	PongWait       time.Duration `mapstructure:"-"`
	WriteWait      time.Duration `mapstructure:"-"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// KafkaConfig configures the photo activity stream. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers    string
	Topic      string
	Partitions int
}

// AuthConfig configures the admin room gate. Empty JWTSecret leaves join-admin open.
type AuthConfig struct {
	JWTSecret  string   `mapstructure:"jwt_secret"`
	AdminRoles []string `mapstructure:"admin_roles"`
}

// RateLimitConfig caps WebSocket handshakes per client IP. Zero disables it.
type RateLimitConfig struct {
	HandshakeRequests int           `mapstructure:"handshake_requests"`
	Window            time.Duration `mapstructure:"-"`
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// DefaultAllowedOrigins are the front-end origins the photo app is served from.
var DefaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:3002",
	"http://127.0.0.1:3002",
	"http://localhost:4002",
	"https://hafiportrait.photography",
	"https://hafiportrait-staging.vercel.app",
	"*",
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	setDefaults(v)
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 25*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.PubSub.Redis.ReadTimeout = parseDuration(v, "pubsub.redis.read_timeout", 3*time.Second)
	cfg.PubSub.Redis.WriteTimeout = parseDuration(v, "pubsub.redis.write_timeout", 3*time.Second)
	cfg.PubSub.NATS.ReconnectWait = parseDuration(v, "pubsub.nats.reconnect_wait", time.Second)
	cfg.RateLimit.Window = parseDuration(v, "ratelimit.window", time.Minute)

	// Pings must arrive before the read deadline expires.
	if cfg.WebSocket.PingInterval >= cfg.WebSocket.PongWait {
		cfg.WebSocket.PingInterval = (cfg.WebSocket.PongWait * 9) / 10
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := pubsub.DefaultConfig()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.version", "1.0.0")
	v.SetDefault("server.instance_id", "")
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.ping_interval", "25s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 1<<20)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("cors.allowed_origins", DefaultAllowedOrigins)
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Requested-With"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("pubsub.driver", defaults.Driver)
	v.SetDefault("pubsub.redis.address", defaults.Redis.Address)
	v.SetDefault("pubsub.redis.password", defaults.Redis.Password)
	v.SetDefault("pubsub.redis.db", defaults.Redis.DB)
	v.SetDefault("pubsub.redis.pool_size", defaults.Redis.PoolSize)
	v.SetDefault("pubsub.redis.read_timeout", "3s")
	v.SetDefault("pubsub.redis.write_timeout", "3s")
	v.SetDefault("pubsub.kafka.brokers", defaults.Kafka.Brokers)
	v.SetDefault("pubsub.kafka.group_id", defaults.Kafka.GroupID)
	v.SetDefault("pubsub.kafka.partitions", defaults.Kafka.Partitions)
	v.SetDefault("pubsub.nats.url", defaults.NATS.URL)
	v.SetDefault("pubsub.nats.name", defaults.NATS.Name)
	v.SetDefault("pubsub.nats.max_reconnects", defaults.NATS.MaxReconnects)
	v.SetDefault("pubsub.nats.reconnect_wait", "1s")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "photo-activity")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.admin_roles", []string{"admin"})
	v.SetDefault("ratelimit.handshake_requests", 60)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func bindEnv(v *viper.Viper) {
	// Override from environment
	v.BindEnv("server.host", "HOST")
	v.BindEnv("server.port", "SOCKETIO_PORT", "PORT")
	v.BindEnv("server.instance_id", "INSTANCE_ID")
	v.BindEnv("websocket.ping_interval", "WS_PING_INTERVAL")
	v.BindEnv("websocket.pong_wait", "WS_PONG_WAIT")
	v.BindEnv("cors.allowed_origins", "CORS_ALLOWED_ORIGINS")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.redis.address", "REDIS_ADDRESS")
	v.BindEnv("pubsub.redis.password", "REDIS_PASSWORD")
	v.BindEnv("pubsub.kafka.brokers", "PUBSUB_KAFKA_BROKERS")
	v.BindEnv("pubsub.nats.url", "NATS_URL")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("auth.jwt_secret", "SUPABASE_JWT_SECRET")
	v.BindEnv("ratelimit.handshake_requests", "RATE_LIMIT_HANDSHAKES")
	v.BindEnv("log.level", "LOG_LEVEL")
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
