package app

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/dig"
	"golang.org/x/sync/errgroup"

	"service-dispatch/internal/jobs"
	"service-dispatch/internal/logx"
	"service-dispatch/internal/taskexec"
	"service-dispatch/internal/taskqueue"
	"service-dispatch/internal/transport/kafka"
)

// WorkerRunner runs the dispatch worker: the Kafka order consumer, the AMQP
// task consumer and the assignment timeout sweep.
type WorkerRunner struct {
	runFn func(*dig.Container) error
}

// NewWorkerRunner returns a new WorkerRunner.
func NewWorkerRunner() *WorkerRunner {
	return &WorkerRunner{runFn: runWorker}
}

// MustRun starts the worker using the provided DI container.
func (r *WorkerRunner) MustRun(container *dig.Container) {
	err := r.runFn(container)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	panic(err)
}

func runWorker(container *dig.Container) error {
	return container.Invoke(workerRun)
}

func workerRun(
	ctx context.Context,
	pool *pgxpool.Pool,
	workers *taskexec.Pool,
	broker *Broker,
	logger logx.Logger,
	kafkaConsumer *kafka.Consumer,
	taskConsumer *taskqueue.Consumer,
	sweep *jobs.TimeoutSweep,
) error {
	defer closeWorker(pool, workers, broker, logger, kafkaConsumer)

	workers.Start(ctx)
	if err := sweep.Start(); err != nil {
		return err
	}
	defer sweep.Stop()

	logger.Info("service-dispatch-worker started")

	g, gctx := errgroup.WithContext(ctx)
	if kafkaConsumer != nil {
		g.Go(func() error { return kafkaConsumer.Run(gctx) })
	}
	if taskConsumer != nil {
		g.Go(func() error { return taskConsumer.Run(gctx) })
	}
	if kafkaConsumer == nil && taskConsumer == nil {
		logger.Warn("no consumers configured, worker runs the timeout sweep only")
		<-ctx.Done()
		return ctx.Err()
	}
	return g.Wait()
}

func closeWorker(pool *pgxpool.Pool, workers *taskexec.Pool, broker *Broker, logger logx.Logger, kafkaConsumer *kafka.Consumer) {
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Close(); err != nil {
			logger.Error("kafka close error", logx.Any("err", err))
		}
	}
	if workers != nil {
		workers.Stop()
	}
	broker.Close(logger)
	if pool != nil {
		pool.Close()
	}
}
