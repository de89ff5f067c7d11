package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// DB stores database connection settings.
type DB struct {
	Host string
	Port string
	User string
	Pass string
	Name string
}

// DSN builds a postgres connection string.
func (d DB) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", d.User, d.Pass, d.Host, d.Port, d.Name)
}

// Kafka stores order-event consumer settings. Empty brokers disable the consumer.
type Kafka struct {
	Brokers       []string
	ConsumerGroup string
	OrdersTopic   string
}

// AMQP stores RabbitMQ settings shared by the notification publisher and the
// dispatch task queue. An empty URL disables both (the task executor then
// skips its async tier and the notifier becomes a nop).
type AMQP struct {
	URL                  string
	NotificationExchange string
	TaskQueue            string
}

// Dispatch stores driver matching and retry policy.
type Dispatch struct {
	RadiusKm              float64
	UnknownLocationFactor float64
	MaxRetries            int
	RetryBaseDelay        time.Duration
	AssignmentTimeout     time.Duration
	TimeoutSweepInterval  time.Duration
}

// Executor stores task execution fallback policy.
type Executor struct {
	EnableAsyncQueue bool
	FallbackToSync   bool
	PoolWorkers      int
	PoolQueueSize    int
}

// Config stores service settings.
type Config struct {
	Port     int
	DB       DB
	Kafka    Kafka
	AMQP     AMQP
	Dispatch Dispatch
	Executor Executor
}

// Load reads configuration in order: .env (if present) → environment → flags.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: .env not loaded: %v", err)
	}

	cfg := &Config{
		Port:     envInt("PORT", DefaultPort()),
		DB:       DefaultDB(),
		Kafka:    DefaultKafka(),
		AMQP:     DefaultAMQP(),
		Dispatch: DefaultDispatch(),
		Executor: DefaultExecutor(),
	}

	cfg.DB.Host = envStr("DB_HOST", cfg.DB.Host)
	cfg.DB.Port = envStr("DB_PORT", cfg.DB.Port)
	cfg.DB.User = envStr("DB_USER", cfg.DB.User)
	cfg.DB.Pass = envStr("DB_PASSWORD", cfg.DB.Pass)
	cfg.DB.Name = envStr("DB_NAME", cfg.DB.Name)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitCSV(v)
	}
	cfg.Kafka.ConsumerGroup = envStr("KAFKA_CONSUMER_GROUP", cfg.Kafka.ConsumerGroup)
	cfg.Kafka.OrdersTopic = envStr("KAFKA_ORDERS_TOPIC", cfg.Kafka.OrdersTopic)

	cfg.AMQP.URL = envStr("AMQP_URL", cfg.AMQP.URL)
	cfg.AMQP.NotificationExchange = envStr("AMQP_NOTIFICATION_EXCHANGE", cfg.AMQP.NotificationExchange)
	cfg.AMQP.TaskQueue = envStr("AMQP_TASK_QUEUE", cfg.AMQP.TaskQueue)

	cfg.Dispatch.RadiusKm = envFloat("DISPATCH_RADIUS_KM", cfg.Dispatch.RadiusKm)
	cfg.Dispatch.UnknownLocationFactor = envFloat("DISPATCH_UNKNOWN_LOCATION_FACTOR", cfg.Dispatch.UnknownLocationFactor)
	cfg.Dispatch.MaxRetries = envInt("DISPATCH_MAX_RETRIES", cfg.Dispatch.MaxRetries)
	cfg.Dispatch.RetryBaseDelay = envDuration("DISPATCH_RETRY_BASE_DELAY", cfg.Dispatch.RetryBaseDelay)
	cfg.Dispatch.AssignmentTimeout = envDuration("DISPATCH_ASSIGNMENT_TIMEOUT", cfg.Dispatch.AssignmentTimeout)
	cfg.Dispatch.TimeoutSweepInterval = envDuration("DISPATCH_TIMEOUT_SWEEP_INTERVAL", cfg.Dispatch.TimeoutSweepInterval)

	cfg.Executor.EnableAsyncQueue = envBool("EXECUTOR_ENABLE_ASYNC_QUEUE", cfg.Executor.EnableAsyncQueue)
	cfg.Executor.FallbackToSync = envBool("EXECUTOR_FALLBACK_TO_SYNC", cfg.Executor.FallbackToSync)
	cfg.Executor.PoolWorkers = envInt("EXECUTOR_POOL_WORKERS", cfg.Executor.PoolWorkers)
	cfg.Executor.PoolQueueSize = envInt("EXECUTOR_POOL_QUEUE_SIZE", cfg.Executor.PoolQueueSize)

	pflag.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
	pflag.Parse()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Dispatch.RadiusKm <= 0 {
		return fmt.Errorf("invalid dispatch radius: %f", c.Dispatch.RadiusKm)
	}
	if c.Dispatch.UnknownLocationFactor < 0 || c.Dispatch.UnknownLocationFactor > 1 {
		return fmt.Errorf("invalid unknown location factor: %f", c.Dispatch.UnknownLocationFactor)
	}
	if c.Dispatch.MaxRetries < 0 {
		return fmt.Errorf("invalid max retries: %d", c.Dispatch.MaxRetries)
	}
	if c.Executor.PoolWorkers <= 0 || c.Executor.PoolQueueSize <= 0 {
		return fmt.Errorf("invalid executor pool settings: workers=%d queue=%d",
			c.Executor.PoolWorkers, c.Executor.PoolQueueSize)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
