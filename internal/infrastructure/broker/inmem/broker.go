package inmem

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"healthstack/internal/infrastructure/broker"
)

var (
	ErrUnavailable   = errors.New("inmem: broker unavailable")
	ErrConnReset     = errors.New("inmem: connection reset by broker")
	ErrChannelClosed = errors.New("inmem: channel closed")
)

// Message is a published message as the broker saw it.
type Message struct {
	Exchange   string
	RoutingKey string
	Body       []byte
}

type message struct {
	exchange    string
	routingKey  string
	body        []byte
	redelivered bool
}

type queue struct {
	name  string
	args  map[string]any
	ready []message
}

type binding struct {
	exchange string
	key      string
	queue    string
}

type Broker struct {
	mu        sync.Mutex
	available bool
	exchanges map[string]string
	queues    map[string]*queue
	bindings  []binding
	conns     map[*connection]struct{}
	changed   chan struct{}

	dials      int
	published  []Message
	deliveries []broker.Delivery
	acks       int
	nacks      int
	requeues   int
}

func New() *Broker {
	return &Broker{
		available: true,
		exchanges: make(map[string]string),
		queues:    make(map[string]*queue),
		conns:     make(map[*connection]struct{}),
		changed:   make(chan struct{}),
	}
}

// broadcastLocked wakes every goroutine waiting for broker state to change.
func (b *Broker) broadcastLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *Broker) Dialer() broker.Dialer {
	return func(ctx context.Context) (broker.Connection, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.mu.Lock()
		defer b.mu.Unlock()

		b.dials++
		if !b.available {
			return nil, ErrUnavailable
		}
		c := &connection{b: b, channels: make(map[*channel]struct{})}
		b.conns[c] = struct{}{}
		return c, nil
	}
}

// SetAvailable toggles whether dials succeed. Taking the broker down also
// drops every open connection.
func (b *Broker) SetAvailable(up bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.available = up
	if !up {
		b.dropLocked()
	}
}

// DropConnections closes every open connection with ErrConnReset, the way a
// broker restart would.
func (b *Broker) DropConnections() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked()
}

func (b *Broker) dropLocked() {
	for c := range b.conns {
		c.closeLocked(ErrConnReset)
	}
}

func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

func (b *Broker) Published() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.published...)
}

func (b *Broker) Deliveries() []broker.Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broker.Delivery(nil), b.deliveries...)
}

func (b *Broker) Acks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acks
}

// Nacks counts every negative acknowledgement; Requeues counts the ones
// that put the message back.
func (b *Broker) Nacks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nacks
}

func (b *Broker) Requeues() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requeues
}

// Ready returns the bodies waiting in a queue, head first.
func (b *Broker) Ready(queueName string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queueName]
	if !ok {
		return nil
	}
	out := make([][]byte, 0, len(q.ready))
	for _, m := range q.ready {
		out = append(out, m.body)
	}
	return out
}

// Unacked counts messages delivered from a queue and not yet settled.
func (b *Broker) Unacked(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for c := range b.conns {
		for ch := range c.channels {
			for _, p := range ch.unacked {
				if p.queue.name == queueName {
					n++
				}
			}
		}
	}
	return n
}

func (b *Broker) HasExchange(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.exchanges[name]
	return ok
}

// QueueArgs reports a queue's declared arguments and whether it exists.
func (b *Broker) QueueArgs(name string) (map[string]any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return nil, false
	}
	return q.args, true
}

// routeLocked copies a message into every queue bound to exchange for key.
func (b *Broker) routeLocked(exchange, key string, body []byte) {
	if exchange == "" {
		if q, ok := b.queues[key]; ok {
			q.ready = append(q.ready, message{exchange: exchange, routingKey: key, body: body})
		}
		return
	}

	kind := b.exchanges[exchange]
	seen := make(map[string]bool)
	for _, bd := range b.bindings {
		if bd.exchange != exchange || seen[bd.queue] {
			continue
		}
		var match bool
		switch kind {
		case broker.ExchangeFanout:
			match = true
		case broker.ExchangeTopic:
			match = topicMatch(bd.key, key)
		default:
			match = bd.key == key
		}
		if !match {
			continue
		}
		if q, ok := b.queues[bd.queue]; ok {
			seen[bd.queue] = true
			q.ready = append(q.ready, message{exchange: exchange, routingKey: key, body: body})
		}
	}
}

// topicMatch implements AMQP topic patterns: "*" is one word, "#" is zero or
// more words.
func topicMatch(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(p, k []string) bool {
	if len(p) == 0 {
		return len(k) == 0
	}
	switch p[0] {
	case "#":
		for i := 0; i <= len(k); i++ {
			if matchWords(p[1:], k[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(k) > 0 && matchWords(p[1:], k[1:])
	default:
		return len(k) > 0 && p[0] == k[0] && matchWords(p[1:], k[1:])
	}
}

type connection struct {
	b        *Broker
	channels map[*channel]struct{}
	closed   bool
}

func (c *connection) Channel() (broker.Channel, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return nil, ErrConnReset
	}
	ch := &channel{
		conn:    c,
		unacked: make(map[uint64]pending),
		done:    make(chan struct{}),
	}
	c.channels[ch] = struct{}{}
	return ch, nil
}

func (c *connection) Close() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.closeLocked(nil)
	return nil
}

func (c *connection) closeLocked(err error) {
	if c.closed {
		return
	}
	c.closed = true
	for ch := range c.channels {
		ch.closeLocked(err)
	}
	delete(c.b.conns, c)
}

type pending struct {
	queue *queue
	msg   message
}

type channel struct {
	conn     *connection
	closed   bool
	confirm  bool
	prefetch int
	nextTag  uint64
	unacked  map[uint64]pending
	notify   []chan error
	done     chan struct{}
}

// closeLocked requeues everything still unacked at the head of its queue,
// flagged redelivered, then signals close listeners.
func (ch *channel) closeLocked(err error) {
	if ch.closed {
		return
	}
	ch.closed = true

	tags := make([]uint64, 0, len(ch.unacked))
	for tag := range ch.unacked {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] > tags[j] })
	for _, tag := range tags {
		p := ch.unacked[tag]
		p.msg.redelivered = true
		p.queue.ready = append([]message{p.msg}, p.queue.ready...)
	}
	ch.unacked = nil

	for _, n := range ch.notify {
		if err != nil {
			n <- err
		}
		close(n)
	}
	ch.notify = nil
	close(ch.done)
	delete(ch.conn.channels, ch)
	ch.conn.b.broadcastLocked()
}

// fail closes the channel with err, as RabbitMQ does on a channel-level
// protocol error, and returns err.
func (ch *channel) failLocked(err error) error {
	ch.closeLocked(err)
	return err
}

func (ch *channel) lock() (*Broker, error) {
	b := ch.conn.b
	b.mu.Lock()
	if ch.closed {
		b.mu.Unlock()
		return nil, ErrChannelClosed
	}
	return b, nil
}

func (ch *channel) ExchangeDeclare(name, kind string) error {
	b, err := ch.lock()
	if err != nil {
		return err
	}
	defer b.mu.Unlock()

	if existing, ok := b.exchanges[name]; ok && existing != kind {
		return ch.failLocked(fmt.Errorf("PRECONDITION_FAILED: exchange %s is %s, not %s", name, existing, kind))
	}
	b.exchanges[name] = kind
	return nil
}

func (ch *channel) QueueDeclare(name string, args map[string]any) error {
	b, err := ch.lock()
	if err != nil {
		return err
	}
	defer b.mu.Unlock()

	if len(args) == 0 {
		args = nil
	}
	if q, ok := b.queues[name]; ok {
		if !reflect.DeepEqual(q.args, args) {
			return ch.failLocked(fmt.Errorf("PRECONDITION_FAILED: queue %s declared with different arguments", name))
		}
		return nil
	}
	b.queues[name] = &queue{name: name, args: args}
	return nil
}

func (ch *channel) QueueBind(queueName, routingKey, exchange string) error {
	b, err := ch.lock()
	if err != nil {
		return err
	}
	defer b.mu.Unlock()

	if _, ok := b.queues[queueName]; !ok {
		return ch.failLocked(fmt.Errorf("NOT_FOUND: no queue %s", queueName))
	}
	if _, ok := b.exchanges[exchange]; !ok {
		return ch.failLocked(fmt.Errorf("NOT_FOUND: no exchange %s", exchange))
	}
	bd := binding{exchange: exchange, key: routingKey, queue: queueName}
	for _, existing := range b.bindings {
		if existing == bd {
			return nil
		}
	}
	b.bindings = append(b.bindings, bd)
	return nil
}

func (ch *channel) Qos(prefetch int) error {
	b, err := ch.lock()
	if err != nil {
		return err
	}
	defer b.mu.Unlock()
	ch.prefetch = prefetch
	return nil
}

func (ch *channel) Confirm() error {
	b, err := ch.lock()
	if err != nil {
		return err
	}
	defer b.mu.Unlock()
	ch.confirm = true
	return nil
}

func (ch *channel) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := ch.lock()
	if err != nil {
		return err
	}
	defer b.mu.Unlock()

	if _, ok := b.exchanges[exchange]; exchange != "" && !ok {
		return ch.failLocked(fmt.Errorf("NOT_FOUND: no exchange %s", exchange))
	}
	cp := append([]byte(nil), body...)
	b.published = append(b.published, Message{Exchange: exchange, RoutingKey: routingKey, Body: cp})
	b.routeLocked(exchange, routingKey, cp)
	b.broadcastLocked()
	return nil
}

func (ch *channel) Consume(ctx context.Context, queueName, consumerTag string) (<-chan broker.Delivery, error) {
	b, err := ch.lock()
	if err != nil {
		return nil, err
	}
	q, ok := b.queues[queueName]
	if !ok {
		err := ch.failLocked(fmt.Errorf("NOT_FOUND: no queue %s", queueName))
		b.mu.Unlock()
		return nil, err
	}
	b.mu.Unlock()

	out := make(chan broker.Delivery)
	go ch.deliver(ctx, q, out)
	return out, nil
}

func (ch *channel) deliver(ctx context.Context, q *queue, out chan<- broker.Delivery) {
	b := ch.conn.b
	defer close(out)

	for {
		b.mu.Lock()
		if ch.closed {
			b.mu.Unlock()
			return
		}
		if len(q.ready) > 0 && (ch.prefetch == 0 || len(ch.unacked) < ch.prefetch) {
			m := q.ready[0]
			q.ready = q.ready[1:]
			ch.nextTag++
			tag := ch.nextTag
			ch.unacked[tag] = pending{queue: q, msg: m}
			d := broker.Delivery{
				Exchange:    m.exchange,
				RoutingKey:  m.routingKey,
				Body:        append([]byte(nil), m.body...),
				DeliveryTag: tag,
				Redelivered: m.redelivered,
			}
			b.deliveries = append(b.deliveries, d)
			b.mu.Unlock()

			select {
			case out <- d:
			case <-ch.done:
				return
			case <-ctx.Done():
				return
			}
			continue
		}
		wait := b.changed
		b.mu.Unlock()

		select {
		case <-wait:
		case <-ch.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (ch *channel) settleLocked(tag uint64) (pending, error) {
	p, ok := ch.unacked[tag]
	if !ok {
		return pending{}, ch.failLocked(fmt.Errorf("PRECONDITION_FAILED: unknown delivery tag %d", tag))
	}
	delete(ch.unacked, tag)
	return p, nil
}

func (ch *channel) Ack(tag uint64) error {
	b, err := ch.lock()
	if err != nil {
		return err
	}
	defer b.mu.Unlock()

	if _, err := ch.settleLocked(tag); err != nil {
		return err
	}
	b.acks++
	b.broadcastLocked()
	return nil
}

func (ch *channel) Nack(tag uint64, requeue bool) error {
	b, err := ch.lock()
	if err != nil {
		return err
	}
	defer b.mu.Unlock()

	p, err := ch.settleLocked(tag)
	if err != nil {
		return err
	}
	b.nacks++
	if requeue {
		b.requeues++
		p.msg.redelivered = true
		p.queue.ready = append([]message{p.msg}, p.queue.ready...)
	} else if dlx, ok := p.queue.args[broker.ArgDeadLetterExchange].(string); ok {
		b.routeLocked(dlx, p.msg.routingKey, p.msg.body)
	}
	b.broadcastLocked()
	return nil
}

func (ch *channel) NotifyClose() <-chan error {
	n := make(chan error, 1)
	b := ch.conn.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch.closed {
		close(n)
		return n
	}
	ch.notify = append(ch.notify, n)
	return n
}

func (ch *channel) Close() error {
	b := ch.conn.b
	b.mu.Lock()
	defer b.mu.Unlock()
	ch.closeLocked(nil)
	return nil
}
