// Package broker is the order pipeline's view of a topic-routing message
// broker. Connection and Channel mirror the AMQP 0-9-1 operations the
// publisher and the notification worker use, so the RabbitMQ adapter and the
// in-memory broker are interchangeable.
package broker

import (
	"context"
	"errors"
)

const (
	ExchangeTopic  = "topic"
	ExchangeFanout = "fanout"

	// ArgDeadLetterExchange is the queue argument RabbitMQ reads to route
	// rejected messages.
	ArgDeadLetterExchange = "x-dead-letter-exchange"
)

var ErrConnectionLost = errors.New("broker connection lost")

// Delivery is one message handed to a consumer. DeliveryTag is only
// meaningful on the channel that delivered it.
type Delivery struct {
	Exchange    string
	RoutingKey  string
	Body        []byte
	DeliveryTag uint64
	Redelivered bool
}

// Channel is a single broker session. Declarations are durable and
// idempotent. Consume always uses manual acknowledgement.
type Channel interface {
	ExchangeDeclare(name, kind string) error
	QueueDeclare(name string, args map[string]any) error
	QueueBind(queue, routingKey, exchange string) error
	Qos(prefetch int) error
	// Confirm puts the channel in publisher-confirm mode; Publish then
	// returns only once the broker has taken responsibility for the message.
	Confirm() error
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
	Consume(ctx context.Context, queue, consumerTag string) (<-chan Delivery, error)
	Ack(tag uint64) error
	Nack(tag uint64, requeue bool) error
	// NotifyClose yields the error that closed the channel, or is closed
	// without a value on a clean shutdown.
	NotifyClose() <-chan error
	Close() error
}

type Connection interface {
	Channel() (Channel, error)
	Close() error
}

// Dialer opens a new connection. Each call must return a fresh connection;
// callers own what they dial and close it themselves.
type Dialer func(ctx context.Context) (Connection, error)
