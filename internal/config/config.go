package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Webhook  WebhookConfig
	JWT      JWTConfig
	Trial    TrialConfig
	Queues   QueuesConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdleConns   int
	MigrationsPath string
}

type RedisConfig struct {
	URL string
}

type WebhookConfig struct {
	// Shared secret used to verify the HMAC signature on inbound
	// organization-lifecycle events.
	SigningSecret string
}

type JWTConfig struct {
	Secret string
}

type TrialConfig struct {
	Days        int
	DefaultTier string
}

// QueueConfig holds the per-queue execution knobs. Attempts is the total
// attempt ceiling, not the retry count.
type QueueConfig struct {
	Concurrency    int
	Attempts       int
	BackoffBase    time.Duration
	RatePerSecond  int
	DequeueTimeout time.Duration
}

type QueuesConfig struct {
	Approval  QueueConfig
	Sync      QueueConfig
	Retention RetentionConfig
}

type RetentionConfig struct {
	CompletedAge   time.Duration
	CompletedCount int
	FailedAge      time.Duration
	FailedCount    int
	SweepInterval  time.Duration
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("TENANTCORE")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("database.maxconnections", 25)
	viper.SetDefault("database.maxidleconns", 5)
	viper.SetDefault("database.migrationspath", "migrations")
	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("trial.days", 14)
	viper.SetDefault("trial.defaulttier", "starter")
	viper.SetDefault("queues.approval.concurrency", 2)
	viper.SetDefault("queues.approval.attempts", 3)
	viper.SetDefault("queues.approval.backoffbase", "5s")
	viper.SetDefault("queues.approval.ratepersecond", 10)
	viper.SetDefault("queues.approval.dequeuetimeout", "5s")
	viper.SetDefault("queues.sync.concurrency", 3)
	viper.SetDefault("queues.sync.attempts", 3)
	viper.SetDefault("queues.sync.backoffbase", "10s")
	viper.SetDefault("queues.sync.ratepersecond", 5)
	viper.SetDefault("queues.sync.dequeuetimeout", "5s")
	viper.SetDefault("queues.retention.completedage", "1h")
	viper.SetDefault("queues.retention.completedcount", 200)
	viper.SetDefault("queues.retention.failedage", "24h")
	viper.SetDefault("queues.retention.failedcount", 1000)
	viper.SetDefault("queues.retention.sweepinterval", "5m")

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if secret := os.Getenv("WEBHOOK_SIGNING_SECRET"); secret != "" {
		cfg.Webhook.SigningSecret = secret
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}

	return &cfg, nil
}
