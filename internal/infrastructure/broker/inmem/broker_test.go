package inmem

import (
	"context"
	"testing"
	"time"

	"healthstack/internal/infrastructure/broker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openChannel(t *testing.T, b *Broker) broker.Channel {
	t.Helper()
	conn, err := b.Dialer()(context.Background())
	require.NoError(t, err)
	ch, err := conn.Channel()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return ch
}

func receive(t *testing.T, deliveries <-chan broker.Delivery) broker.Delivery {
	t.Helper()
	select {
	case d, ok := <-deliveries:
		require.True(t, ok, "delivery channel closed")
		return d
	case <-time.After(time.Second):
		t.Fatal("no delivery")
		return broker.Delivery{}
	}
}

func declare(t *testing.T, ch broker.Channel, topo broker.Topology) {
	t.Helper()
	require.NoError(t, topo.Declare(ch))
}

var topo = broker.Topology{Exchange: "order.exchange", Queue: "q", RoutingKey: "order.created"}

func TestTopicMatch(t *testing.T) {
	tests := []struct {
		pattern, key string
		want         bool
	}{
		{"order.created", "order.created", true},
		{"order.created", "order.updated", false},
		{"order.*", "order.created", true},
		{"order.*", "order.created.v2", false},
		{"order.#", "order.created.v2", true},
		{"#", "anything.at.all", true},
		{"#.created", "order.created", true},
		{"*.created", "created", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, topicMatch(tt.pattern, tt.key), "%s vs %s", tt.pattern, tt.key)
	}
}

func TestPublishRoutesByTopic(t *testing.T) {
	b := New()
	ch := openChannel(t, b)
	declare(t, ch, topo)

	require.NoError(t, ch.Publish(context.Background(), "order.exchange", "order.created", []byte("a")))
	require.NoError(t, ch.Publish(context.Background(), "order.exchange", "order.cancelled", []byte("b")))

	assert.Equal(t, [][]byte{[]byte("a")}, b.Ready("q"))
	assert.Len(t, b.Published(), 2)
}

func TestPublishToMissingExchangeClosesChannel(t *testing.T) {
	b := New()
	ch := openChannel(t, b)
	closed := ch.NotifyClose()

	err := ch.Publish(context.Background(), "nope", "k", []byte("x"))
	require.Error(t, err)

	select {
	case cerr := <-closed:
		assert.Error(t, cerr)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	assert.ErrorIs(t, ch.Ack(1), ErrChannelClosed)
}

func TestAckRemovesMessage(t *testing.T) {
	b := New()
	ch := openChannel(t, b)
	declare(t, ch, topo)
	require.NoError(t, ch.Publish(context.Background(), topo.Exchange, topo.RoutingKey, []byte("m")))

	deliveries, err := ch.Consume(context.Background(), "q", "c")
	require.NoError(t, err)
	d := receive(t, deliveries)

	assert.Equal(t, 1, b.Unacked("q"))
	require.NoError(t, ch.Ack(d.DeliveryTag))
	assert.Equal(t, 0, b.Unacked("q"))
	assert.Empty(t, b.Ready("q"))
	assert.Equal(t, 1, b.Acks())
}

func TestNackRequeueRedelivers(t *testing.T) {
	b := New()
	ch := openChannel(t, b)
	declare(t, ch, topo)
	require.NoError(t, ch.Publish(context.Background(), topo.Exchange, topo.RoutingKey, []byte("m")))

	deliveries, err := ch.Consume(context.Background(), "q", "c")
	require.NoError(t, err)

	first := receive(t, deliveries)
	assert.False(t, first.Redelivered)
	require.NoError(t, ch.Nack(first.DeliveryTag, true))

	second := receive(t, deliveries)
	assert.True(t, second.Redelivered)
	assert.Equal(t, first.Body, second.Body)
	assert.NotEqual(t, first.DeliveryTag, second.DeliveryTag)
	assert.Equal(t, 1, b.Requeues())
}

func TestDoubleAckFailsChannel(t *testing.T) {
	b := New()
	ch := openChannel(t, b)
	declare(t, ch, topo)
	require.NoError(t, ch.Publish(context.Background(), topo.Exchange, topo.RoutingKey, []byte("m")))

	deliveries, err := ch.Consume(context.Background(), "q", "c")
	require.NoError(t, err)
	d := receive(t, deliveries)

	require.NoError(t, ch.Ack(d.DeliveryTag))
	assert.Error(t, ch.Ack(d.DeliveryTag))
	assert.Equal(t, 1, b.Acks())
}

func TestPrefetchLimitsInFlight(t *testing.T) {
	b := New()
	ch := openChannel(t, b)
	declare(t, ch, topo)
	require.NoError(t, ch.Qos(1))
	for _, body := range []string{"1", "2"} {
		require.NoError(t, ch.Publish(context.Background(), topo.Exchange, topo.RoutingKey, []byte(body)))
	}

	deliveries, err := ch.Consume(context.Background(), "q", "c")
	require.NoError(t, err)
	first := receive(t, deliveries)

	select {
	case d := <-deliveries:
		t.Fatalf("second delivery %q before ack", d.Body)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, ch.Ack(first.DeliveryTag))
	second := receive(t, deliveries)
	assert.Equal(t, []byte("2"), second.Body)
}

func TestDroppedConnectionRequeuesUnacked(t *testing.T) {
	b := New()
	ch := openChannel(t, b)
	declare(t, ch, topo)
	require.NoError(t, ch.Publish(context.Background(), topo.Exchange, topo.RoutingKey, []byte("m")))

	closed := ch.NotifyClose()
	deliveries, err := ch.Consume(context.Background(), "q", "c")
	require.NoError(t, err)
	receive(t, deliveries)

	b.DropConnections()

	assert.ErrorIs(t, <-closed, ErrConnReset)
	_, open := <-deliveries
	assert.False(t, open)
	assert.Equal(t, [][]byte{[]byte("m")}, b.Ready("q"))

	ch2 := openChannel(t, b)
	deliveries2, err := ch2.Consume(context.Background(), "q", "c")
	require.NoError(t, err)
	assert.True(t, receive(t, deliveries2).Redelivered)
}

func TestUnavailableBrokerRefusesDial(t *testing.T) {
	b := New()
	b.SetAvailable(false)

	_, err := b.Dialer()(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	b.SetAvailable(true)
	_, err = b.Dialer()(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, b.Dials())
}

func TestDeadLetterOnReject(t *testing.T) {
	b := New()
	ch := openChannel(t, b)
	dl := topo
	dl.DeadLetterExchange = "order.dlx"
	declare(t, ch, dl)

	args, ok := b.QueueArgs("q")
	require.True(t, ok)
	assert.Equal(t, "order.dlx", args[broker.ArgDeadLetterExchange])

	require.NoError(t, ch.Publish(context.Background(), dl.Exchange, dl.RoutingKey, []byte("bad")))
	deliveries, err := ch.Consume(context.Background(), "q", "c")
	require.NoError(t, err)
	d := receive(t, deliveries)

	require.NoError(t, ch.Nack(d.DeliveryTag, false))

	assert.Empty(t, b.Ready("q"))
	assert.Equal(t, [][]byte{[]byte("bad")}, b.Ready("q.dead"))
}

func TestRedeclareWithDifferentArgsFails(t *testing.T) {
	b := New()
	declare(t, openChannel(t, b), topo)

	dl := topo
	dl.DeadLetterExchange = "order.dlx"
	assert.Error(t, dl.Declare(openChannel(t, b)))
}

func TestDeclareIsIdempotent(t *testing.T) {
	b := New()
	declare(t, openChannel(t, b), topo)
	declare(t, openChannel(t, b), topo)

	ch := openChannel(t, b)
	require.NoError(t, ch.Publish(context.Background(), topo.Exchange, topo.RoutingKey, []byte("once")))
	assert.Len(t, b.Ready("q"), 1, "duplicate bindings must not duplicate messages")
}
