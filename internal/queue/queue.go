package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message — конверт job в очереди.
// Несёт только идентификатор: полное состояние job живёт в БД.
type Message struct {
	// JobID — идентификатор job.
	JobID uuid.UUID `json:"job_id"`

	// Pipeline — имя pipeline (для логов и маршрутизации, не источник истины).
	Pipeline string `json:"pipeline,omitempty"`

	// EnqueuedAt — время постановки в очередь.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// JobQueue — durable FIFO очередь jobs.
//
// Pop атомарен и эксклюзивен: prefetch=1 плюс ack при извлечении
// гарантируют, что job достаётся ровно одному воркеру. Это единственный
// механизм балансировки нагрузки между воркерами.
//
// Сообщение подтверждается (ack) в момент pop: устойчивость к потере
// воркера обеспечивается статусом job в БД — graceful shutdown делает
// явный requeue, упавшие без shutdown воркеры подбирает janitor.
type JobQueue struct {
	conn   *Connection
	logger *slog.Logger

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

// NewJobQueue создаёт очередь поверх соединения.
func NewJobQueue(conn *Connection, logger *slog.Logger) *JobQueue {
	return &JobQueue{
		conn:   conn,
		logger: logger,
	}
}

// Push публикует job в очередь.
// Сообщение persistent — переживает рестарт брокера.
func (q *JobQueue) Push(ctx context.Context, msg *Message) error {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return q.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			ExchangeJobs,
			RoutingKeyQueued,
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    uuid.New().String(),
				Timestamp:    msg.EnqueuedAt,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish job %s: %w", msg.JobID, err)
		}

		q.logger.Debug("job pushed to queue", "job_id", msg.JobID, "pipeline", msg.Pipeline)
		return nil
	})
}

// Pop блокируется до появления job, но не дольше timeout.
//
// Возвращает (nil, nil) по таймауту — это штатная ситуация, в которой
// вызывающий цикл проверяет shutdown-флаг и выполняет health check.
// Некорректные сообщения уходят в DLQ, Pop возвращает ошибку.
func (q *JobQueue) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	deliveries, err := q.ensureConsumer()
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case <-time.After(timeout):
		return nil, nil

	case raw, ok := <-deliveries:
		if !ok {
			// Канал закрыт брокером — пересоздадим consumer при следующем Pop
			q.resetConsumer()
			return nil, ErrConsumerClosed
		}

		var msg Message
		if err := json.Unmarshal(raw.Body, &msg); err != nil {
			q.logger.Error("failed to unmarshal job message",
				"error", err,
				"body", string(raw.Body),
			)
			raw.Nack(false, false) // в DLQ
			return nil, fmt.Errorf("unmarshal job message: %w", err)
		}

		if msg.JobID == uuid.Nil {
			q.logger.Error("job message without id", "body", string(raw.Body))
			raw.Nack(false, false)
			return nil, fmt.Errorf("job message without id")
		}

		if err := raw.Ack(false); err != nil {
			return nil, fmt.Errorf("ack job %s: %w", msg.JobID, err)
		}

		q.logger.Debug("job popped from queue", "job_id", msg.JobID)
		return &msg, nil
	}
}

// Ping проверяет связь с брокером (для health check).
func (q *JobQueue) Ping(ctx context.Context) error {
	if !q.conn.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// ensureConsumer лениво запускает consumer с prefetch=1.
func (q *JobQueue) ensureConsumer() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.deliveries != nil {
		return q.deliveries, nil
	}

	ch := q.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	// prefetch=1 — брокер не выдаёт следующий job, пока текущий не ack'нут
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		QueueJobsQueued, // queue
		"",              // consumer tag (auto-generated)
		false,           // auto-ack (ack вручную при pop)
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	q.deliveries = deliveries
	return deliveries, nil
}

// resetConsumer сбрасывает consumer после закрытия канала доставки.
func (q *JobQueue) resetConsumer() {
	q.mu.Lock()
	q.deliveries = nil
	q.mu.Unlock()
}
