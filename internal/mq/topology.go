package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeEvents Exchange = "poller.events"
	ExchangeDLQ    Exchange = "poller.dlq"
)

// Queues — имена очередей.
const (
	QueueEventsPending Queue = "events.pending"
	QueueEventsStatus  Queue = "events.status"
	QueueDLQEvents     Queue = "dlq.events"
)

// Routing keys.
const (
	RoutingKeyPending RoutingKey = "pending"
	RoutingKeyStatus  RoutingKey = "status"
	RoutingKeyDLQ     RoutingKey = "events"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// topology возвращает объявления обменников, очередей и привязок.
func topology() ([]exchangeDecl, []queueDecl, []bindingDecl) {
	exchanges := []exchangeDecl{
		{ExchangeEvents, "direct"},
		{ExchangeDLQ, "direct"},
	}

	queues := []queueDecl{
		// events.pending — некорректные сообщения уходят в DLQ
		{QueueEventsPending, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQ),
		}},
		{QueueEventsStatus, nil},
		{QueueDLQEvents, nil},
	}

	bindings := []bindingDecl{
		{QueueEventsPending, RoutingKeyPending, ExchangeEvents},
		{QueueEventsStatus, RoutingKeyStatus, ExchangeEvents},
		{QueueDLQEvents, RoutingKeyDLQ, ExchangeDLQ},
	}

	return exchanges, queues, bindings
}

// SetupTopology объявляет обменники, очереди и привязки.
func SetupTopology(ctx context.Context, conn *Connection) error {
	exchanges, queues, bindings := topology()

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges {
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queues {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindings {
			if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Poller RabbitMQ Topology:

    poller.events (direct)
    ├── events.pending [routing: pending]
    │       Consumer: poller (EVENT_SOURCE=amqp)
    │       DLQ: dlq.events
    └── events.status [routing: status]
            Consumer: downstream status readers

    poller.dlq (direct)
    └── dlq.events [routing: events]
            Manual processing
  `
}
