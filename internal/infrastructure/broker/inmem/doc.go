// Package inmem is an in-process broker with RabbitMQ's routing and
// acknowledgement rules: durable topic and fanout exchanges, manual acks,
// requeue-to-head on nack or channel loss, prefetch limits and
// dead-lettering through x-dead-letter-exchange.
//
// It is test and simulator infrastructure, not a production broker. Nothing
// is persisted and there is no network listener. Inspection helpers such as
// Ready, Unacked, QueueArgs and HasExchange exist for assertions.
package inmem
