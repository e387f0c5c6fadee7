package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	Dispatch DispatchConfig
	Realtime RealtimeConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port    string
	Timeout time.Duration
}

type RabbitMQConfig struct {
	URL        string
	EmailQueue string
	SMSQueue   string
	PushQueue  string
	RetryQueue string
	Exchange   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DispatchConfig struct {
	ChannelTimeout      time.Duration
	BatchWorkers        int
	IdempotencyTTL      time.Duration
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerCooldown     time.Duration
}

type RealtimeConfig struct {
	MaxUpdates           int
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
}

type AuthConfig struct {
	JWTSecret string
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.timeout", "10s")
	viper.SetDefault("rabbitmq.exchange", "notifications.direct")
	viper.SetDefault("rabbitmq.email_queue", "email.queue")
	viper.SetDefault("rabbitmq.sms_queue", "sms.queue")
	viper.SetDefault("rabbitmq.push_queue", "push.queue")
	viper.SetDefault("rabbitmq.retry_queue", "retry.queue")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("dispatch.channel_timeout", "5s")
	viper.SetDefault("dispatch.batch_workers", 8)
	viper.SetDefault("dispatch.idempotency_ttl", "24h")
	viper.SetDefault("dispatch.breaker_min_requests", 3)
	viper.SetDefault("dispatch.breaker_failure_ratio", 0.6)
	viper.SetDefault("dispatch.breaker_cooldown", "60s")
	viper.SetDefault("realtime.max_updates", 10)
	viper.SetDefault("realtime.reconnect_base_delay", "500ms")
	viper.SetDefault("realtime.max_reconnect_attempts", 5)

	// Read from environment
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
