package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPNotifier publishes notification events to a topic exchange with the
// event channel as routing key, so consumers bind per audience
// (driver.*, order.*, restaurant.*).
type AMQPNotifier struct {
	ch       *amqp.Channel
	exchange string
}

// NewAMQPNotifier declares the exchange and returns a notifier bound to it.
func NewAMQPNotifier(ch *amqp.Channel, exchange string) (*AMQPNotifier, error) {
	if ch == nil {
		return nil, fmt.Errorf("nil amqp channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	return &AMQPNotifier{ch: ch, exchange: exchange}, nil
}

// Notify publishes the event. Routing keys replace the channel's ':' with '.'
// to match AMQP topic segment syntax.
func (n *AMQPNotifier) Notify(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	err = n.ch.PublishWithContext(ctx, n.exchange, routingKey(e.Channel), false, false, amqp.Publishing{
		DeliveryMode: amqp.Transient,
		ContentType:  "application/json",
		MessageId:    e.ID,
		Timestamp:    e.CreatedAt,
		Type:         e.TypeName,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish event %s: %w", e.ID, err)
	}
	return nil
}

func routingKey(channel string) string {
	return strings.ReplaceAll(channel, ":", ".")
}
