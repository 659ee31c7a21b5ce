package worker

import (
	"context"
	"fmt"
	"time"

	"healthstack/internal/domain"
	"healthstack/internal/infrastructure/broker"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// OrderCreatedHandler performs the side effect for one event. Returning an
// error makes the worker requeue the message, unless the error is
// domain.KindDecode.
type OrderCreatedHandler interface {
	HandleOrderCreated(ctx context.Context, ev domain.OrderCreatedEvent) error
}

// NotificationWorker consumes OrderCreated events with manual
// acknowledgement. It reconnects at a fixed interval for as long as ctx
// lives, so a missing broker never stops the process.
type NotificationWorker struct {
	dial          broker.Dialer
	topology      broker.Topology
	handler       OrderCreatedHandler
	retryInterval time.Duration
	log           *logrus.Entry
}

func NewNotificationWorker(
	dial broker.Dialer,
	topology broker.Topology,
	handler OrderCreatedHandler,
	retryInterval time.Duration,
	log *logrus.Entry,
) *NotificationWorker {
	return &NotificationWorker{
		dial:          dial,
		topology:      topology,
		handler:       handler,
		retryInterval: retryInterval,
		log: log.WithFields(logrus.Fields{
			"component": "notification-worker",
			"queue":     topology.Queue,
		}),
	}
}

// Run blocks until ctx is cancelled. It only returns an error if the retry
// policy gives up, which the constant backoff never does.
func (w *NotificationWorker) Run(ctx context.Context) error {
	w.log.Info("notification worker started")

	b := backoff.WithContext(backoff.NewConstantBackOff(w.retryInterval), ctx)
	err := backoff.RetryNotify(func() error {
		return w.session(ctx)
	}, b, func(err error, wait time.Duration) {
		w.log.WithError(err).WithField("retry_in", wait.String()).Warn("broker not ready, retrying")
	})

	if ctx.Err() != nil {
		w.log.Info("notification worker stopped")
		return nil
	}
	return err
}

// session is one connection lifetime: connect, declare, consume until the
// channel drops or ctx ends. The connection and channel are closed on every
// return path. A nil return means ctx was cancelled.
func (w *NotificationWorker) session(ctx context.Context) error {
	conn, err := w.dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := w.topology.Declare(ch); err != nil {
		return err
	}
	if err := ch.Qos(1); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	closed := ch.NotifyClose()
	deliveries, err := ch.Consume(ctx, w.topology.Queue, w.topology.ConsumerTag)
	if err != nil {
		return fmt.Errorf("consume %s: %w", w.topology.Queue, err)
	}

	w.log.WithFields(logrus.Fields{
		"exchange":    w.topology.Exchange,
		"routing_key": w.topology.RoutingKey,
	}).Info("listening for OrderCreated events")

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-closed:
			if !ok || err == nil {
				return broker.ErrConnectionLost
			}
			return fmt.Errorf("%w: %v", broker.ErrConnectionLost, err)
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return broker.ErrConnectionLost
			}
			w.process(ctx, ch, d)
		}
	}
}

// process settles exactly one delivery: ack on success, requeue on a
// processing failure, and drop or dead-letter a message that cannot decode.
func (w *NotificationWorker) process(ctx context.Context, ch broker.Channel, d broker.Delivery) {
	entry := w.log.WithFields(logrus.Fields{
		"delivery_tag": d.DeliveryTag,
		"routing_key":  d.RoutingKey,
		"redelivered":  d.Redelivered,
	})

	ev, err := domain.DecodeOrderCreatedEvent(d.Body)
	if err == nil {
		entry = entry.WithField("order_id", ev.OrderID)
		err = w.handler.HandleOrderCreated(ctx, ev)
	}

	switch {
	case err == nil:
		if ackErr := ch.Ack(d.DeliveryTag); ackErr != nil {
			entry.WithError(ackErr).Error("ack failed, message will be redelivered")
		}
	case domain.KindOf(err) == domain.KindDecode:
		w.reject(entry, ch, d, err)
	default:
		entry.WithError(err).Error("processing failed, requeueing")
		if nackErr := ch.Nack(d.DeliveryTag, true); nackErr != nil {
			entry.WithError(nackErr).Error("nack failed, message will be redelivered")
		}
	}
}

func (w *NotificationWorker) reject(entry *logrus.Entry, ch broker.Channel, d broker.Delivery, cause error) {
	var err error
	if w.topology.DeadLetterExchange != "" {
		entry.WithError(cause).WithField("dead_letter_exchange", w.topology.DeadLetterExchange).
			Warn("unprocessable message, dead-lettering")
		err = ch.Nack(d.DeliveryTag, false)
	} else {
		entry.WithError(cause).WithField("body", truncate(d.Body, 512)).
			Warn("unprocessable message, dropping")
		err = ch.Ack(d.DeliveryTag)
	}
	if err != nil {
		entry.WithError(err).Error("settling unprocessable message failed")
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
