package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"

	BrokerInProcess = "inprocess"
	BrokerRabbitMQ  = "rabbitmq"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string `yaml:"service_name"`
	HTTPPort    string `yaml:"http_port"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	StorageDriver string `yaml:"storage_driver"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	AutoMigrate   bool   `yaml:"auto_migrate"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	BrokerDriver string `yaml:"broker_driver"`
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`

	JWTSecret      string        `yaml:"jwt_secret"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	BankName       string        `yaml:"bank_name"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`

	OutboxPollInterval           time.Duration `yaml:"outbox_poll_interval"`
	OutboxBatchSize              int           `yaml:"outbox_batch_size"`
	EnableOutboxRelay            bool          `yaml:"enable_outbox_relay"`
	EnableUserRegisteredConsumer bool          `yaml:"enable_user_registered_consumer"`
}

// DevJWTSecret signs sessions in memory mode only; shared storage drivers
// refuse to start with it.
const DevJWTSecret = "unity-dev-secret"

func Defaults() Config {
	return Config{
		ServiceName:                  "unity",
		HTTPPort:                     "8080",
		LogLevel:                     "info",
		LogFormat:                    "json",
		StorageDriver:                StorageMemory,
		MongoDatabase:                "unity",
		BrokerDriver:                 BrokerInProcess,
		AMQPExchange:                 "unity.events",
		JWTSecret:                    DevJWTSecret,
		SessionTTL:                   24 * time.Hour,
		BankName:                     "Unity Credit Union",
		IdempotencyTTL:               7 * 24 * time.Hour,
		OutboxPollInterval:           time.Second,
		OutboxBatchSize:              100,
		EnableOutboxRelay:            true,
		EnableUserRegisteredConsumer: true,
	}
}

// Load applies defaults, then the YAML file named by CONFIG_FILE, then
// environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.ServiceName = envString("SERVICE_NAME", cfg.ServiceName)
	cfg.HTTPPort = envString("HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envString("LOG_FORMAT", cfg.LogFormat)

	cfg.StorageDriver = strings.ToLower(envString("STORAGE_DRIVER", cfg.StorageDriver))
	cfg.PostgresDSN = envString("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.MongoURI = envString("MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = envString("MONGO_DATABASE", cfg.MongoDatabase)
	cfg.AutoMigrate = envBool("AUTO_MIGRATE", cfg.AutoMigrate)

	cfg.RedisAddr = envString("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envString("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = envInt("REDIS_DB", cfg.RedisDB)

	cfg.BrokerDriver = strings.ToLower(envString("BROKER_DRIVER", cfg.BrokerDriver))
	cfg.AMQPURL = envString("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = envString("AMQP_EXCHANGE", cfg.AMQPExchange)

	cfg.JWTSecret = envString("JWT_SECRET", cfg.JWTSecret)
	cfg.SessionTTL = envDuration("SESSION_TTL", cfg.SessionTTL)
	cfg.BankName = envString("BANK_NAME", cfg.BankName)
	cfg.IdempotencyTTL = envDuration("IDEMPOTENCY_TTL", cfg.IdempotencyTTL)

	cfg.OutboxPollInterval = envDuration("OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.EnableOutboxRelay = envBool("ENABLE_OUTBOX_RELAY", cfg.EnableOutboxRelay)
	cfg.EnableUserRegisteredConsumer = envBool("ENABLE_USER_REGISTERED_CONSUMER", cfg.EnableUserRegisteredConsumer)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for storage driver %q", c.StorageDriver)
		}
	case StorageMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for storage driver %q", c.StorageDriver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	switch c.BrokerDriver {
	case BrokerInProcess:
	case BrokerRabbitMQ:
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required for broker driver %q", c.BrokerDriver)
		}
	default:
		return fmt.Errorf("unknown broker driver %q", c.BrokerDriver)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.StorageDriver != StorageMemory && c.JWTSecret == DevJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set explicitly for storage driver %q", c.StorageDriver)
	}
	return nil
}

func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func envString(name string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
