package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"healthstack/internal/domain"

	"github.com/sirupsen/logrus"
)

// Publisher hands an event to the broker and reports whether the broker
// accepted it.
type Publisher interface {
	Publish(ctx context.Context, event any, routingKey string) error
}

var ErrPublisherStopped = errors.New("publisher is not running")

type publishRequest struct {
	ctx        context.Context
	routingKey string
	body       []byte
	done       chan error
}

// AMQPPublisher serializes events as JSON and publishes them to one topic
// exchange. The connection belongs to the Run goroutine; Publish only talks
// to it through a Go channel.
type AMQPPublisher struct {
	dial     Dialer
	exchange string
	timeout  time.Duration
	log      *logrus.Entry

	requests chan publishRequest
	stopped  chan struct{}
}

func NewAMQPPublisher(dial Dialer, exchange string, timeout time.Duration, log *logrus.Entry) *AMQPPublisher {
	return &AMQPPublisher{
		dial:     dial,
		exchange: exchange,
		timeout:  timeout,
		log:      log.WithField("component", "publisher"),
		requests: make(chan publishRequest),
		stopped:  make(chan struct{}),
	}
}

// Publish blocks until the broker confirms the message, the publish timeout
// elapses, or ctx is done. It never queues locally: if the broker cannot be
// reached the call fails.
func (p *AMQPPublisher) Publish(ctx context.Context, event any, routingKey string) error {
	const op = "publish"

	body, err := json.Marshal(event)
	if err != nil {
		return domain.NewError(domain.KindPublish, op, fmt.Errorf("encode event: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := publishRequest{ctx: ctx, routingKey: routingKey, body: body, done: make(chan error, 1)}
	select {
	case p.requests <- req:
	case <-p.stopped:
		return domain.NewError(domain.KindPublish, op, ErrPublisherStopped)
	case <-ctx.Done():
		return domain.NewError(domain.KindPublish, op, ctx.Err())
	}

	select {
	case err := <-req.done:
		return domain.NewError(domain.KindPublish, op, err)
	case <-ctx.Done():
		return domain.NewError(domain.KindPublish, op, ctx.Err())
	}
}

type publishSession struct {
	conn   Connection
	ch     Channel
	closed <-chan error
}

func (s *publishSession) close() {
	_ = s.ch.Close()
	_ = s.conn.Close()
}

// Run owns the broker connection until ctx is cancelled. It connects eagerly,
// and after a failure or a dropped connection it redials on the next
// publish.
func (p *AMQPPublisher) Run(ctx context.Context) error {
	defer close(p.stopped)

	sess, err := p.open(ctx)
	if err != nil {
		p.log.WithError(err).Warn("broker unavailable, will dial on first publish")
	} else {
		p.log.WithField("exchange", p.exchange).Info("publisher connected")
	}
	defer func() {
		if sess != nil {
			sess.close()
		}
	}()

	for {
		var closed <-chan error
		if sess != nil {
			closed = sess.closed
		}

		select {
		case <-ctx.Done():
			p.log.Info("publisher stopped")
			return nil

		case err := <-closed:
			p.log.WithError(err).Warn("publisher channel closed")
			sess.close()
			sess = nil

		case req := <-p.requests:
			if sess == nil {
				sess, err = p.open(req.ctx)
				if err != nil {
					req.done <- fmt.Errorf("connect: %w", err)
					continue
				}
			}
			if err := sess.ch.Publish(req.ctx, p.exchange, req.routingKey, req.body); err != nil {
				sess.close()
				sess = nil
				req.done <- err
				continue
			}
			req.done <- nil
		}
	}
}

func (p *AMQPPublisher) open(ctx context.Context) (*publishSession, error) {
	conn, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	sess := &publishSession{conn: conn, ch: ch}
	if err := ch.Confirm(); err != nil {
		sess.close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, ExchangeTopic); err != nil {
		sess.close()
		return nil, fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	sess.closed = ch.NotifyClose()
	return sess, nil
}
