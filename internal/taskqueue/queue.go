package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"service-dispatch/internal/logx"
)

// HandleFunc processes a single queued task.
type HandleFunc func(context.Context, Envelope) error

// Queue is the durable AMQP dispatch task queue: the API binary publishes
// assignment work into it, the worker binary consumes it.
type Queue struct {
	ch   *amqp.Channel
	name string
}

// NewQueue declares the durable queue and returns a handle on it.
func NewQueue(ch *amqp.Channel, name string) (*Queue, error) {
	if ch == nil {
		return nil, fmt.Errorf("nil amqp channel")
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %q: %w", name, err)
	}
	return &Queue{ch: ch, name: name}, nil
}

// Submit publishes a task envelope as a persistent message.
func (q *Queue) Submit(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", env.ID, err)
	}
	err = q.ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    env.ID,
		Type:         string(env.Type),
		Timestamp:    env.CreatedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish task %s: %w", env.ID, err)
	}
	return nil
}

// Consumer drains the task queue and dispatches envelopes to a handler.
type Consumer struct {
	queue    *Queue
	handler  HandleFunc
	logger   logx.Logger
	prefetch int
}

// NewConsumer creates a task queue consumer.
func NewConsumer(queue *Queue, prefetch int, h HandleFunc, logger logx.Logger) *Consumer {
	if prefetch <= 0 {
		prefetch = 8
	}
	return &Consumer{queue: queue, handler: h, logger: logger, prefetch: prefetch}
}

// Run consumes until ctx is cancelled. Malformed messages are acked and
// dropped; handler errors nack with requeue so transient failures replay.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil || c.queue == nil {
		return nil
	}

	if err := c.queue.ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := c.queue.ch.Consume(c.queue.name, "dispatch-worker", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %q: %w", c.queue.name, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("task queue channel closed")
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	var env Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		c.logger.Error("task queue: bad json", logx.Any("err", err))
		_ = msg.Ack(false)
		return
	}

	if err := c.handler(ctx, env); err != nil {
		c.logger.Warn("task handling failed, requeueing",
			logx.String("task_id", env.ID),
			logx.String("type", string(env.Type)),
			logx.Any("err", err),
		)
		// brief pause so a hard failure doesn't spin the queue
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		_ = msg.Nack(false, true)
		return
	}

	_ = msg.Ack(false)
}

// Dial connects to the broker and opens a channel. Callers own both and must
// close them on shutdown.
func Dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	return conn, ch, nil
}
