package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Каналы pub/sub.
const (
	ChannelStatus   = "clipforge.jobs.status"
	ChannelProgress = "clipforge.jobs.progress"
)

// defaultStatusTTL — время жизни кэша статуса.
const defaultStatusTTL = 24 * time.Hour

// Event — событие прогресса, публикуемое на каждую смену статуса stage.
type Event struct {
	// JobID — идентификатор job.
	JobID uuid.UUID `json:"job_id"`

	// Stage — имя stage (пустое для job-уровневых событий).
	Stage string `json:"stage,omitempty"`

	// Progress — общий прогресс job 0–100 (среднее по всем stages).
	Progress int `json:"progress"`

	// Status — статус job или stage на момент события.
	Status string `json:"status"`

	// WorkerID — воркер, опубликовавший событие (для атрибуции).
	WorkerID string `json:"worker_id,omitempty"`

	// Timestamp — время события.
	Timestamp time.Time `json:"timestamp"`
}

// Publisher публикует события прогресса и ведёт TTL-кэш статусов.
type Publisher struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Config — конфигурация Publisher.
type Config struct {
	// Client — клиент Redis.
	Client *redis.Client

	// StatusTTL — TTL кэша статуса (default: 24h).
	StatusTTL time.Duration

	// Logger
	Logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(cfg Config) *Publisher {
	ttl := cfg.StatusTTL
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		rdb:    cfg.Client,
		ttl:    ttl,
		logger: logger,
	}
}

// NewClient создаёт клиент Redis и проверяет связь.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// StatusChanged публикует смену статуса job.
// Никогда не возвращает ошибку: сбой публикации не должен провалить job.
func (p *Publisher) StatusChanged(ctx context.Context, ev Event) {
	p.publish(ctx, ChannelStatus, ev)
}

// StageProgress публикует гранулярное событие прогресса stage.
func (p *Publisher) StageProgress(ctx context.Context, ev Event) {
	p.publish(ctx, ChannelProgress, ev)
}

func (p *Publisher) publish(ctx context.Context, channel string, ev Event) {
	if p.rdb == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("failed to marshal progress event", "job_id", ev.JobID, "error", err)
		return
	}

	if err := p.rdb.Publish(ctx, channel, body).Err(); err != nil {
		p.logger.Warn("failed to publish progress event",
			"job_id", ev.JobID,
			"channel", channel,
			"error", err,
		)
	}

	// Кэш последнего состояния для поллеров
	if err := p.rdb.Set(ctx, statusKey(ev.JobID), body, p.ttl).Err(); err != nil {
		p.logger.Warn("failed to cache job status", "job_id", ev.JobID, "error", err)
	}
}

// Snapshot возвращает последнее закэшированное событие job.
// Возвращает (nil, nil), если кэш пуст или истёк.
func (p *Publisher) Snapshot(ctx context.Context, jobID uuid.UUID) (*Event, error) {
	if p.rdb == nil {
		return nil, nil
	}

	body, err := p.rdb.Get(ctx, statusKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached status: %w", err)
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal cached status: %w", err)
	}
	return &ev, nil
}

// Ping проверяет связь с Redis.
func (p *Publisher) Ping(ctx context.Context) error {
	if p.rdb == nil {
		return fmt.Errorf("redis client not configured")
	}
	return p.rdb.Ping(ctx).Err()
}

func statusKey(jobID uuid.UUID) string {
	return "clipforge:job:" + jobID.String() + ":status"
}
