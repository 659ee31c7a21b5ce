package broker

import (
	"context"
	"errors"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	amqpHeartbeat      = 10 * time.Second
	amqpConnectTimeout = 5 * time.Second
)

var errPublishNacked = errors.New("broker rejected the message")

// AMQPDialer dials RabbitMQ at url. The TCP connect honours ctx and the
// handshake is bounded by a fixed timeout.
func AMQPDialer(url string) Dialer {
	return func(ctx context.Context) (Connection, error) {
		conn, err := amqp.DialConfig(url, amqp.Config{
			Heartbeat: amqpHeartbeat,
			Locale:    "en_US",
			Dial: func(network, addr string) (net.Conn, error) {
				d := net.Dialer{Timeout: amqpConnectTimeout}
				c, err := d.DialContext(ctx, network, addr)
				if err != nil {
					return nil, err
				}
				// amqp clears the deadline once the handshake completes.
				if err := c.SetDeadline(time.Now().Add(amqpConnectTimeout)); err != nil {
					_ = c.Close()
					return nil, err
				}
				return c, nil
			},
		})
		if err != nil {
			return nil, err
		}
		return &amqpConnection{conn: conn}, nil
	}
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return &amqpChannel{ch: ch}, nil
}

func (c *amqpConnection) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

type amqpChannel struct {
	ch *amqp.Channel
}

func (c *amqpChannel) ExchangeDeclare(name, kind string) error {
	return c.ch.ExchangeDeclare(name, kind, true, false, false, false, nil)
}

func (c *amqpChannel) QueueDeclare(name string, args map[string]any) error {
	_, err := c.ch.QueueDeclare(name, true, false, false, false, amqp.Table(args))
	return err
}

func (c *amqpChannel) QueueBind(queue, routingKey, exchange string) error {
	return c.ch.QueueBind(queue, routingKey, exchange, false, nil)
}

func (c *amqpChannel) Qos(prefetch int) error {
	return c.ch.Qos(prefetch, 0, false)
}

func (c *amqpChannel) Confirm() error {
	return c.ch.Confirm(false)
}

func (c *amqpChannel) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return err
	}
	if dc == nil {
		return nil
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return errPublishNacked
	}
	return nil
}

func (c *amqpChannel) Consume(ctx context.Context, queue, consumerTag string) (<-chan Delivery, error) {
	msgs, err := c.ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for m := range msgs {
			d := Delivery{
				Exchange:    m.Exchange,
				RoutingKey:  m.RoutingKey,
				Body:        m.Body,
				DeliveryTag: m.DeliveryTag,
				Redelivered: m.Redelivered,
			}
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *amqpChannel) Ack(tag uint64) error {
	return c.ch.Ack(tag, false)
}

func (c *amqpChannel) Nack(tag uint64, requeue bool) error {
	return c.ch.Nack(tag, false, requeue)
}

func (c *amqpChannel) NotifyClose() <-chan error {
	closed := c.ch.NotifyClose(make(chan *amqp.Error, 1))
	out := make(chan error, 1)
	go func() {
		defer close(out)
		if amqpErr, ok := <-closed; ok && amqpErr != nil {
			out <- amqpErr
		}
	}()
	return out
}

func (c *amqpChannel) Close() error {
	if c.ch.IsClosed() {
		return nil
	}
	return c.ch.Close()
}
