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
	ExchangeTasks Exchange = "beeflow.tasks"
	ExchangeDLQ   Exchange = "beeflow.dlq"
)

// Queues — имена очередей.
const (
	QueueTaskUpdates Queue = "tasks.updates"
	QueueDLQUpdates  Queue = "dlq.updates"
)

// Routing keys.
const (
	RoutingKeyUpdates    RoutingKey = "updates"
	RoutingKeyDLQUpdates RoutingKey = "updates"
)

// SetupTopology объявляет exchanges, очереди и bindings. Повторный вызов безопасен.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Exchanges
		for _, name := range []Exchange{ExchangeTasks, ExchangeDLQ} {
			err := ch.ExchangeDeclare(
				string(name), // name
				"direct",     // type
				true,         // durable
				false,        // auto-deleted
				false,        // internal
				false,        // no-wait
				nil,          // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", name, err)
			}
		}

		// 2. Queues
		if err := declareQueues(ch); err != nil {
			return err
		}

		// 3. Bindings
		return bindQueues(ch)
	})
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// tasks.updates — пачки updates от TM; отвергнутые уходят в DLQ
		{QueueTaskUpdates, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQUpdates),
		}},
		{QueueDLQUpdates, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueTaskUpdates, RoutingKeyUpdates, ExchangeTasks},
		{QueueDLQUpdates, RoutingKeyDLQUpdates, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  beeflow RabbitMQ topology:

    beeflow.tasks (direct)
    └── tasks.updates [routing: updates]
            Producer: Task Manager (update batches)
            Consumer: Workflow Manager
            DLQ: dlq.updates

    beeflow.dlq (direct)
    └── dlq.updates [routing: updates]
            Manual processing
  `
}
