package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"service-dispatch/internal/config"
)

func resetFlags(t *testing.T) {
	t.Helper()
	old := pflag.CommandLine
	pflag.CommandLine = pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)
	t.Cleanup(func() {
		pflag.CommandLine = old
	})
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
		"KAFKA_BROKERS", "KAFKA_CONSUMER_GROUP", "KAFKA_ORDERS_TOPIC",
		"AMQP_URL", "AMQP_NOTIFICATION_EXCHANGE", "AMQP_TASK_QUEUE",
		"DISPATCH_RADIUS_KM", "DISPATCH_UNKNOWN_LOCATION_FACTOR",
		"DISPATCH_MAX_RETRIES", "DISPATCH_RETRY_BASE_DELAY",
		"DISPATCH_ASSIGNMENT_TIMEOUT", "DISPATCH_TIMEOUT_SWEEP_INTERVAL",
		"EXECUTOR_ENABLE_ASYNC_QUEUE", "EXECUTOR_FALLBACK_TO_SYNC",
		"EXECUTOR_POOL_WORKERS", "EXECUTOR_POOL_QUEUE_SIZE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	resetFlags(t)
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	require.Equal(t, 8080, cfg.Port)

	require.Equal(t, "127.0.0.1", cfg.DB.Host)
	require.Equal(t, "5432", cfg.DB.Port)
	require.Equal(t, "dispatch_db", cfg.DB.Name)

	require.Empty(t, cfg.Kafka.Brokers)
	require.Equal(t, "service-dispatch", cfg.Kafka.ConsumerGroup)
	require.Equal(t, "order-events", cfg.Kafka.OrdersTopic)

	require.Empty(t, cfg.AMQP.URL)
	require.Equal(t, "dispatch.notifications", cfg.AMQP.NotificationExchange)
	require.Equal(t, "dispatch.tasks", cfg.AMQP.TaskQueue)

	require.InDelta(t, 10.0, cfg.Dispatch.RadiusKm, 1e-9)
	require.InDelta(t, 0.8, cfg.Dispatch.UnknownLocationFactor, 1e-9)
	require.Equal(t, 3, cfg.Dispatch.MaxRetries)
	require.Equal(t, 30*time.Second, cfg.Dispatch.RetryBaseDelay)
	require.Equal(t, 5*time.Minute, cfg.Dispatch.AssignmentTimeout)
	require.Equal(t, time.Minute, cfg.Dispatch.TimeoutSweepInterval)

	require.True(t, cfg.Executor.EnableAsyncQueue)
	require.True(t, cfg.Executor.FallbackToSync)
	require.Equal(t, 4, cfg.Executor.PoolWorkers)
	require.Equal(t, 64, cfg.Executor.PoolQueueSize)
}

func TestLoad_EnvOverrides(t *testing.T) {
	resetFlags(t)
	clearEnv(t)

	t.Setenv("PORT", "9090")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "dispatch_test")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("AMQP_URL", "amqp://guest:guest@mq:5672/")
	t.Setenv("DISPATCH_RADIUS_KM", "7.5")
	t.Setenv("DISPATCH_UNKNOWN_LOCATION_FACTOR", "0.5")
	t.Setenv("DISPATCH_MAX_RETRIES", "5")
	t.Setenv("DISPATCH_RETRY_BASE_DELAY", "10s")
	t.Setenv("DISPATCH_ASSIGNMENT_TIMEOUT", "2m")
	t.Setenv("EXECUTOR_ENABLE_ASYNC_QUEUE", "false")
	t.Setenv("EXECUTOR_POOL_WORKERS", "8")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, "db", cfg.DB.Host)
	require.Equal(t, "dispatch_test", cfg.DB.Name)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "amqp://guest:guest@mq:5672/", cfg.AMQP.URL)
	require.InDelta(t, 7.5, cfg.Dispatch.RadiusKm, 1e-9)
	require.InDelta(t, 0.5, cfg.Dispatch.UnknownLocationFactor, 1e-9)
	require.Equal(t, 5, cfg.Dispatch.MaxRetries)
	require.Equal(t, 10*time.Second, cfg.Dispatch.RetryBaseDelay)
	require.Equal(t, 2*time.Minute, cfg.Dispatch.AssignmentTimeout)
	require.False(t, cfg.Executor.EnableAsyncQueue)
	require.Equal(t, 8, cfg.Executor.PoolWorkers)
}

func TestLoad_DSN(t *testing.T) {
	resetFlags(t)
	clearEnv(t)

	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "15432")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_PASSWORD", "p")
	t.Setenv("DB_NAME", "dispatch")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "postgres://u:p@db:15432/dispatch", cfg.DB.DSN())
}

func TestLoad_InvalidPort(t *testing.T) {
	resetFlags(t)
	clearEnv(t)

	t.Setenv("PORT", "70000")

	cfg, err := config.Load()
	require.Error(t, err)
	require.Nil(t, cfg)
}

func TestLoad_InvalidRadius(t *testing.T) {
	resetFlags(t)
	clearEnv(t)

	t.Setenv("DISPATCH_RADIUS_KM", "-1")

	cfg, err := config.Load()
	require.Error(t, err)
	require.Nil(t, cfg)
}

func TestLoad_InvalidUnknownLocationFactor(t *testing.T) {
	resetFlags(t)
	clearEnv(t)

	t.Setenv("DISPATCH_UNKNOWN_LOCATION_FACTOR", "1.5")

	cfg, err := config.Load()
	require.Error(t, err)
	require.Nil(t, cfg)
}
