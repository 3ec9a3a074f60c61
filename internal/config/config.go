package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MigrationsPath  string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type SchedulerConfig struct {
	StalePendingInterval  time.Duration
	AbandonedCartInterval time.Duration
	GuestExpiryInterval   time.Duration
	LowStockInterval      time.Duration
	OrderCleanupInterval  time.Duration
}

type Config struct {
	App struct {
		Port string
	}
	Postgres  PostgresConfig
	Kafka     KafkaConfig
	Scheduler SchedulerConfig
}

// Load reads configuration from the environment, optionally seeded from a
// .env file at path.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{}
	cfg.App.Port = getEnv("APP_PORT", "8080")

	var err error
	if cfg.Postgres.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Postgres.User, err = requireEnv("DB_USER"); err != nil {
		return nil, err
	}
	if cfg.Postgres.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Postgres.DBName, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}
	cfg.Postgres.Port = getEnv("DB_PORT", "5432")
	cfg.Postgres.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Postgres.MigrationsPath = getEnv("DB_MIGRATIONS_PATH", "migrations")
	cfg.Postgres.MaxConns = int32(getEnvInt("DB_MAX_CONNS", 10))
	cfg.Postgres.MinConns = int32(getEnvInt("DB_MIN_CONNS", 2))
	cfg.Postgres.MaxConnLifetime = getEnvDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute)

	cfg.Kafka.Brokers = []string{getEnv("KAFKA_BROKER", "localhost:9092")}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", "commerce-events")

	cfg.Scheduler.StalePendingInterval = getEnvDuration("SWEEP_STALE_PENDING_INTERVAL", 30*time.Minute)
	cfg.Scheduler.AbandonedCartInterval = getEnvDuration("SWEEP_ABANDONED_CART_INTERVAL", 6*time.Hour)
	cfg.Scheduler.GuestExpiryInterval = getEnvDuration("SWEEP_GUEST_EXPIRY_INTERVAL", 24*time.Hour)
	cfg.Scheduler.LowStockInterval = getEnvDuration("SWEEP_LOW_STOCK_INTERVAL", 24*time.Hour)
	cfg.Scheduler.OrderCleanupInterval = getEnvDuration("SWEEP_ORDER_CLEANUP_INTERVAL", 24*time.Hour)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
