package broker

import "fmt"

// Topology is what a consumer needs to exist before it starts consuming.
type Topology struct {
	Exchange    string
	Queue       string
	RoutingKey  string
	ConsumerTag string

	// DeadLetterExchange, when set, is declared as a fanout exchange feeding
	// "<Queue>.dead", and Queue is declared to dead-letter into it.
	DeadLetterExchange string
}

func (t Topology) DeadLetterQueue() string {
	if t.DeadLetterExchange == "" {
		return ""
	}
	return t.Queue + ".dead"
}

// Declare creates the exchange, queue and binding. It is safe to call on
// every reconnect. Switching DeadLetterExchange on an existing queue makes
// RabbitMQ refuse the declaration; delete the queue first.
func (t Topology) Declare(ch Channel) error {
	if err := ch.ExchangeDeclare(t.Exchange, ExchangeTopic); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}

	var args map[string]any
	if t.DeadLetterExchange != "" {
		if err := ch.ExchangeDeclare(t.DeadLetterExchange, ExchangeFanout); err != nil {
			return fmt.Errorf("declare dead-letter exchange %s: %w", t.DeadLetterExchange, err)
		}
		if err := ch.QueueDeclare(t.DeadLetterQueue(), nil); err != nil {
			return fmt.Errorf("declare dead-letter queue %s: %w", t.DeadLetterQueue(), err)
		}
		if err := ch.QueueBind(t.DeadLetterQueue(), "", t.DeadLetterExchange); err != nil {
			return fmt.Errorf("bind dead-letter queue: %w", err)
		}
		args = map[string]any{ArgDeadLetterExchange: t.DeadLetterExchange}
	}

	if err := ch.QueueDeclare(t.Queue, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	if err := ch.QueueBind(t.Queue, t.RoutingKey, t.Exchange); err != nil {
		return fmt.Errorf("bind queue %s to %s/%s: %w", t.Queue, t.Exchange, t.RoutingKey, err)
	}
	return nil
}
