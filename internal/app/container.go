package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"service-dispatch/internal/config"
	"service-dispatch/internal/http/handlers"
	"service-dispatch/internal/http/router"
	"service-dispatch/internal/jobs"
	"service-dispatch/internal/logx"
	"service-dispatch/internal/metrics"
	"service-dispatch/internal/ports/dispatchtx"
	"service-dispatch/internal/repository"
	"service-dispatch/internal/service/dispatch"
	"service-dispatch/internal/service/matching"
	"service-dispatch/internal/service/orders"
	"service-dispatch/internal/taskexec"
	"service-dispatch/internal/taskqueue"
	"service-dispatch/internal/transport/kafka"
)

// ContainerBuilder is a dig container builder.
type ContainerBuilder struct {
	dbConnect func(context.Context, string, int, time.Duration) (*pgxpool.Pool, error)
	logFatalf func(string, ...interface{})
	worker    bool
}

// NewContainerBuilder returns a new dig container builder.
func NewContainerBuilder() *ContainerBuilder {
	return &ContainerBuilder{
		dbConnect: connectDbWithRetry,
		logFatalf: log.Fatalf,
	}
}

// WithDBConnect sets the database connection function.
func (b *ContainerBuilder) WithDBConnect(
	fn func(context.Context, string, int, time.Duration) (*pgxpool.Pool, error),
) *ContainerBuilder {
	if fn != nil {
		b.dbConnect = fn
	}
	return b
}

// WithLogFatalf sets the log.Fatalf function.
func (b *ContainerBuilder) WithLogFatalf(fn func(string, ...interface{})) *ContainerBuilder {
	if fn != nil {
		b.logFatalf = fn
	}
	return b
}

// ForWorker includes the worker-only providers (consumers, sweep job).
func (b *ContainerBuilder) ForWorker() *ContainerBuilder {
	b.worker = true
	return b
}

// MustBuild builds and returns a new dig container.
func (b *ContainerBuilder) MustBuild(ctx context.Context) *dig.Container {
	container, err := b.build(ctx)
	if err != nil {
		b.logFatalf("failed to build container: %v", err)
	}
	return container
}

func (b *ContainerBuilder) build(ctx context.Context) (*dig.Container, error) {
	container := dig.New()

	if err := registerCore(container, ctx); err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}
	if err := registerDb(container, b.dbConnect); err != nil {
		return nil, fmt.Errorf("DB: %w", err)
	}
	if err := registerService(container); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	if err := registerHTTP(container); err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	if b.worker {
		if err := registerWorker(container); err != nil {
			return nil, fmt.Errorf("worker: %w", err)
		}
	}
	return container, nil
}

// MustBuildContainer builds the API container.
func MustBuildContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder().MustBuild(ctx)
}

// MustBuildWorkerContainer builds the worker container.
func MustBuildWorkerContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder().ForWorker().MustBuild(ctx)
}

func provideAll(container *dig.Container, providers ...any) error {
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return fmt.Errorf("provide %T: %w", provider, err)
		}
	}
	return nil
}

func registerCore(container *dig.Container, ctx context.Context) error {
	return provideAll(container,
		func() context.Context { return ctx },
		NewLogger,
		config.Load,
	)
}

func registerDb(
	container *dig.Container,
	dbConnect func(context.Context, string, int, time.Duration) (*pgxpool.Pool, error),
) error {
	providerDB := func(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
		return dbConnect(ctx, cfg.DB.DSN(), 10, time.Second)
	}
	return provideAll(container, providerDB)
}

// register adds c to the default registry, tolerating re-registration so
// rebuilding a container in tests does not panic.
func register(c prometheus.Collector) prometheus.Counter {
	if err := prometheus.DefaultRegisterer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(prometheus.Counter)
		}
	}
	return c.(prometheus.Counter)
}

func registerService(container *dig.Container) error {
	return provideAll(container,
		NewBroker,
		repository.NewDispatchRepo,
		repository.NewDriverRepo,
		func(repo *repository.DispatchRepo) dispatchtx.Runner { return repo },
		func(cfg *config.Config) *matching.Matcher {
			return matching.NewMatcher(cfg.Dispatch.RadiusKm, cfg.Dispatch.UnknownLocationFactor)
		},
		func(cfg *config.Config, logger logx.Logger) *taskexec.Pool {
			return taskexec.NewPool(cfg.Executor.PoolWorkers, cfg.Executor.PoolQueueSize, logger)
		},
		func(cfg *config.Config, pool *taskexec.Pool, broker *Broker, logger logx.Logger) *taskexec.Executor {
			return taskexec.NewExecutor(taskexec.Config{
				EnableAsyncQueue: cfg.Executor.EnableAsyncQueue && broker.Enabled(),
				FallbackToSync:   cfg.Executor.FallbackToSync,
			}, pool, logger, register(metrics.NewExecutorFallbacksTotal()))
		},
		func() dispatch.Counters {
			return dispatch.Counters{
				Assignments:          register(metrics.NewAssignmentsTotal()),
				Reassignments:        register(metrics.NewReassignmentsTotal()),
				Retries:              register(metrics.NewDispatchRetriesTotal()),
				ManualEscalations:    register(metrics.NewManualEscalationsTotal()),
				DroppedNotifications: register(metrics.NewNotificationsDroppedTotal()),
			}
		},
		func(
			repo dispatchtx.Runner,
			matcher *matching.Matcher,
			executor *taskexec.Executor,
			broker *Broker,
			cfg *config.Config,
			logger logx.Logger,
			counters dispatch.Counters,
		) *dispatch.Service {
			return dispatch.NewService(repo, matcher, executor, broker.Notifier, broker.SubmitTask(),
				dispatch.Policy{
					MaxRetries:        cfg.Dispatch.MaxRetries,
					RetryBaseDelay:    cfg.Dispatch.RetryBaseDelay,
					AssignmentTimeout: cfg.Dispatch.AssignmentTimeout,
				}, logger, counters)
		},
	)
}

func registerHTTP(container *dig.Container) error {
	serverProvider := func(cfg *config.Config, mux http.Handler) *http.Server {
		return &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}
	return provideAll(container,
		handlers.New,
		handlers.NewDispatchUsecase,
		handlers.NewDeliveryHandler,
		handlers.NewDriverUsecase,
		handlers.NewDriverHandler,
		router.New,
		serverProvider,
	)
}

func registerWorker(container *dig.Container) error {
	return provideAll(container,
		func(svc *dispatch.Service, executor *taskexec.Executor, broker *Broker, logger logx.Logger) *orders.Processor {
			var submit func(ctx context.Context, env taskqueue.Envelope) error
			if broker.Enabled() {
				submit = broker.SubmitTask()
			}
			return orders.NewProcessor(svc, executor, submit, logger)
		},
		func(cfg *config.Config, p *orders.Processor, logger logx.Logger) (*kafka.Consumer, error) {
			return kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.OrdersTopic, p.Handle, logger)
		},
		func(cfg *config.Config, broker *Broker, svc *dispatch.Service, logger logx.Logger) *taskqueue.Consumer {
			if !broker.Enabled() {
				return nil
			}
			return taskqueue.NewConsumer(broker.Queue, cfg.Executor.PoolQueueSize, svc.HandleTask, logger)
		},
		func(
			cfg *config.Config,
			repo dispatchtx.Runner,
			executor *taskexec.Executor,
			broker *Broker,
			svc *dispatch.Service,
			logger logx.Logger,
		) *jobs.TimeoutSweep {
			check := func(ctx context.Context, deliveryID int64) error {
				_, err := svc.CheckAssignmentTimeout(ctx, deliveryID)
				return err
			}
			var submit func(ctx context.Context, env taskqueue.Envelope) error
			if broker.Enabled() {
				submit = broker.SubmitTask()
			}
			return jobs.NewTimeoutSweep(repo, executor, submit, check,
				cfg.Dispatch.AssignmentTimeout, cfg.Dispatch.TimeoutSweepInterval, logger)
		},
	)
}
