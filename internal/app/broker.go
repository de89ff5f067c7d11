package app

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"service-dispatch/internal/config"
	"service-dispatch/internal/logx"
	"service-dispatch/internal/notify"
	"service-dispatch/internal/service/dispatch"
	"service-dispatch/internal/taskqueue"
)

// Broker bundles the optional AMQP resources. With no AMQP URL configured the
// notifier is a nop and the task queue tier is disabled; the dispatch core
// then runs on the worker pool and the synchronous fallback alone.
type Broker struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	Queue    *taskqueue.Queue
	Notifier notify.Notifier
}

// NewBroker connects to RabbitMQ and declares the notification exchange and
// the task queue. An empty URL yields a disabled broker, not an error.
func NewBroker(cfg *config.Config, logger logx.Logger) (*Broker, error) {
	if cfg.AMQP.URL == "" {
		logger.Info("amqp disabled: notifications are nop, task queue tier is off")
		return &Broker{Notifier: notify.Nop()}, nil
	}

	conn, ch, err := taskqueue.Dial(cfg.AMQP.URL)
	if err != nil {
		return nil, fmt.Errorf("broker connect: %w", err)
	}

	notifier, err := notify.NewAMQPNotifier(ch, cfg.AMQP.NotificationExchange)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("broker notifier: %w", err)
	}
	queue, err := taskqueue.NewQueue(ch, cfg.AMQP.TaskQueue)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("broker queue: %w", err)
	}

	return &Broker{conn: conn, channel: ch, Queue: queue, Notifier: notifier}, nil
}

// SubmitTask returns the queue submit function, nil when the queue is off.
func (b *Broker) SubmitTask() dispatch.SubmitTask {
	if b == nil || b.Queue == nil {
		return nil
	}
	return func(ctx context.Context, env taskqueue.Envelope) error {
		return b.Queue.Submit(ctx, env)
	}
}

// Enabled reports whether the AMQP connection is live.
func (b *Broker) Enabled() bool {
	return b != nil && b.Queue != nil
}

// Close releases the AMQP channel and connection.
func (b *Broker) Close(logger logx.Logger) {
	if b == nil {
		return
	}
	if b.channel != nil {
		if err := b.channel.Close(); err != nil {
			logger.Error("amqp channel close error", logx.Any("err", err))
		}
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			logger.Error("amqp connection close error", logx.Any("err", err))
		}
	}
}
