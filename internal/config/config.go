package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is read from CHECKOUT_* environment variables.
type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":50051"`

	MySQLDSN             string        `envconfig:"MYSQL_DSN" required:"true"`
	MySQLMaxOpenConns    int           `envconfig:"MYSQL_MAX_OPEN_CONNS" default:"50"`
	MySQLMaxIdleConns    int           `envconfig:"MYSQL_MAX_IDLE_CONNS" default:"25"`
	MySQLConnMaxLifetime time.Duration `envconfig:"MYSQL_CONN_MAX_LIFETIME" default:"5m"`

	// empty disables the stock gate
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPoolSize int    `envconfig:"REDIS_POOL_SIZE" default:"100"`

	// empty selects the log publisher
	KafkaBrokers string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string `envconfig:"KAFKA_TOPIC" default:"order-events"`

	WorkerCount     int           `envconfig:"WORKER_COUNT" default:"10"`
	QueueSize       int           `envconfig:"QUEUE_SIZE" default:"10000"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("checkout", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.MySQLDSN) == "" {
		return fmt.Errorf("load config: MYSQL_DSN is required")
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("load config: WORKER_COUNT must be positive, got %d", c.WorkerCount)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("load config: QUEUE_SIZE must be positive, got %d", c.QueueSize)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("load config: LOG_LEVEL: %w", err)
	}
	return level, nil
}
