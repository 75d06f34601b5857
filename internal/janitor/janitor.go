// Package janitor возвращает в очередь jobs, потерянные упавшими воркерами.
//
// Graceful shutdown делает requeue сам; janitor закрывает оставшийся
// сценарий — воркер убит без шанса на очистку (OOM, kill -9, потеря
// ноды). Такие jobs висят в PROCESSING с устаревшим heartbeat
// (updated_at), janitor находит их по visibility timeout и ставит
// обратно в очередь. Завершённые stages сохранены, поэтому следующий
// воркер продолжит с места обрыва.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clipforge/clipforge/internal/progress"
	"github.com/clipforge/clipforge/internal/queue"
	"github.com/clipforge/clipforge/internal/repo"
	"github.com/clipforge/clipforge/internal/telemetry"

	"github.com/clipforge/clipforge/internal/domain"
)

// Default configuration values.
const (
	defaultVisibilityTimeout = 10 * time.Minute
	defaultBatchSize         = 50
)

// Janitor находит зависшие jobs и возвращает их в очередь.
type Janitor struct {
	jobs      *repo.JobRepo
	queue     *queue.JobQueue
	publisher *progress.Publisher
	logger    *slog.Logger

	visibilityTimeout time.Duration
	batchSize         int
}

// Config — конфигурация Janitor.
type Config struct {
	Jobs      *repo.JobRepo
	Queue     *queue.JobQueue
	Publisher *progress.Publisher
	Logger    *slog.Logger

	// VisibilityTimeout — сколько job может висеть в PROCESSING без
	// heartbeat, прежде чем считается потерянным (default: 10m).
	// Должен быть заметно больше самого долгого stage между heartbeat'ами.
	VisibilityTimeout time.Duration

	// BatchSize — количество jobs за один тик (default: 50).
	BatchSize int
}

// New создаёт новый Janitor.
func New(cfg Config) *Janitor {
	visibilityTimeout := cfg.VisibilityTimeout
	if visibilityTimeout <= 0 {
		visibilityTimeout = defaultVisibilityTimeout
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Janitor{
		jobs:              cfg.Jobs,
		queue:             cfg.Queue,
		publisher:         cfg.Publisher,
		logger:            logger,
		visibilityTimeout: visibilityTimeout,
		batchSize:         batchSize,
	}
}

// Tick выполняет один проход janitor'а.
//
// Ошибки одного job не блокируют обработку остальных.
func (j *Janitor) Tick(ctx context.Context) error {
	cutoff := time.Now().Add(-j.visibilityTimeout)

	stale, err := j.jobs.ListStale(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("list stale jobs: %w", err)
	}

	if len(stale) == 0 {
		return nil
	}

	j.logger.Debug("found stale jobs", "count", len(stale))

	var requeued int
	for i := range stale {
		job := &stale[i]

		if err := j.requeue(ctx, job); err != nil {
			j.logger.Error("failed to requeue stale job",
				"job_id", job.ID,
				"error", err,
			)
			continue
		}
		requeued++
	}

	j.logger.Info("janitor tick completed",
		"stale", len(stale),
		"requeued", requeued,
	)
	return nil
}

// requeue возвращает один потерянный job в очередь.
//
// Сначала Push, потом смена статуса: если Push прошёл, а Update упал,
// job остаётся PROCESSING со старым heartbeat и следующий тик повторит
// попытку. Дубликат сообщения безопасен — воркер пропускает jobs
// в терминальном статусе.
func (j *Janitor) requeue(ctx context.Context, job *domain.Job) error {
	lostWorker := job.WorkerID

	if err := j.queue.Push(ctx, &queue.Message{JobID: job.ID, Pipeline: job.Pipeline}); err != nil {
		return fmt.Errorf("push job to queue: %w", err)
	}

	job.MarkPending()
	if err := j.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("mark job pending: %w", err)
	}

	if j.publisher != nil {
		j.publisher.StatusChanged(ctx, progress.Event{
			JobID:  job.ID,
			Status: string(domain.JobStatusPending),
		})
	}

	telemetry.JobsRequeued.WithLabelValues("stale").Inc()
	j.logger.Warn("stale job requeued",
		"job_id", job.ID,
		"lost_worker", lostWorker,
	)
	return nil
}
