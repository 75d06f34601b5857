package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Имена объектов топологии.
const (
	ExchangeJobs = "clipforge.jobs"
	ExchangeDLQ  = "clipforge.dlq"

	QueueJobsQueued = "jobs.queued"
	QueueDLQJobs    = "dlq.jobs"

	RoutingKeyQueued  = "queued"
	RoutingKeyDLQJobs = "jobs"
)

// SetupTopology декларирует exchanges, очереди и bindings.
// Идемпотентна — безопасно вызывать при каждом старте процесса.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		for _, ex := range []string{ExchangeJobs, ExchangeDLQ} {
			err := ch.ExchangeDeclare(
				ex,       // name
				"direct", // type
				true,     // durable
				false,    // auto-deleted
				false,    // internal
				false,    // no-wait
				nil,      // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		// jobs.queued — с DLQ: некорректные сообщения уходят в dlq.jobs
		dlqArgs := amqp.Table{
			"x-dead-letter-exchange":    ExchangeDLQ,
			"x-dead-letter-routing-key": RoutingKeyDLQJobs,
		}

		queues := []struct {
			name string
			args amqp.Table
		}{
			{QueueJobsQueued, dlqArgs},
			{QueueDLQJobs, nil},
		}

		for _, q := range queues {
			_, err := ch.QueueDeclare(
				q.name, // name
				true,   // durable
				false,  // delete when unused
				false,  // exclusive
				false,  // no-wait
				q.args, // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		bindings := []struct {
			queue      string
			routingKey string
			exchange   string
		}{
			{QueueJobsQueued, RoutingKeyQueued, ExchangeJobs},
			{QueueDLQJobs, RoutingKeyDLQJobs, ExchangeDLQ},
		}

		for _, b := range bindings {
			if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}
