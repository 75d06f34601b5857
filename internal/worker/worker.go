package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/progress"
	"github.com/clipforge/clipforge/internal/queue"
	"github.com/clipforge/clipforge/internal/telemetry"
)

// Default configuration values.
const (
	defaultPopTimeout     = 1 * time.Second
	defaultHealthInterval = 30 * time.Second
	defaultMaxAttempts    = 3
	defaultBackoffBase    = 2 * time.Second
	defaultBackoffMax     = 30 * time.Second

	// requeueTimeout — сколько даём на возврат job в очередь при shutdown.
	// Основной контекст к этому моменту уже отменён.
	requeueTimeout = 10 * time.Second

	// pingTimeout — таймаут одной health-проверки зависимости.
	pingTimeout = 5 * time.Second
)

// Store — персистентность jobs и stages, нужная воркеру.
// Реализуется repo.Store; в тестах подменяется фейком.
type Store interface {
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	UpdateJob(ctx context.Context, job *domain.Job) error
	GetStage(ctx context.Context, jobID uuid.UUID, name string) (*domain.Stage, error)
	CreateStage(ctx context.Context, stage *domain.Stage) error
	UpdateStage(ctx context.Context, stage *domain.Stage) error
	ListStages(ctx context.Context, jobID uuid.UUID) ([]domain.Stage, error)
	Ping(ctx context.Context) error
}

// Queue — очередь jobs. Реализуется queue.JobQueue.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.Message, error)
	Push(ctx context.Context, msg *queue.Message) error
	Ping(ctx context.Context) error
}

// Publisher — публикация прогресса. Реализуется progress.Publisher.
type Publisher interface {
	StatusChanged(ctx context.Context, ev progress.Event)
	StageProgress(ctx context.Context, ev progress.Event)
}

// Worker последовательно выполняет jobs из очереди.
//
// Один воркер обрабатывает один job за раз: stages pipeline выполняются
// строго по порядку, параллелизм достигается количеством воркеров.
type Worker struct {
	id string

	store     Store
	queue     Queue
	publisher Publisher
	registry  *Registry

	// Configuration
	popTimeout     time.Duration
	healthInterval time.Duration
	maxAttempts    int
	backoffBase    time.Duration
	backoffMax     time.Duration

	// Lifecycle
	state      *State
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	healthMu        sync.RWMutex
	brokerHealthy   bool
	storeHealthy    bool
	lastHealthCheck time.Time
}

// Config — конфигурация Worker.
type Config struct {
	// WorkerID — идентификатор воркера (генерируется, если пустой).
	WorkerID string

	Store     Store
	Queue     Queue
	Publisher Publisher

	// Registry — реестр executor'ов stages.
	Registry *Registry

	// PopTimeout — таймаут блокирующего pop (default: 1s).
	// По таймауту цикл проверяет shutdown-флаг и health.
	PopTimeout time.Duration

	// HealthInterval — период health check зависимостей (default: 30s).
	HealthInterval time.Duration

	// MaxAttempts — максимум попыток stage, включая первую (default: 3).
	MaxAttempts int

	// BackoffBase — задержка перед первым retry (default: 2s).
	// Каждый следующий retry удваивает задержку.
	BackoffBase time.Duration

	// BackoffMax — потолок задержки retry (default: 30s).
	BackoffMax time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	id := cfg.WorkerID
	if id == "" {
		id = "worker-" + uuid.New().String()[:8]
	}

	popTimeout := cfg.PopTimeout
	if popTimeout <= 0 {
		popTimeout = defaultPopTimeout
	}

	healthInterval := cfg.HealthInterval
	if healthInterval <= 0 {
		healthInterval = defaultHealthInterval
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = defaultBackoffBase
	}

	backoffMax := cfg.BackoffMax
	if backoffMax <= 0 {
		backoffMax = defaultBackoffMax
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Worker{
		id:             id,
		store:          cfg.Store,
		queue:          cfg.Queue,
		publisher:      cfg.Publisher,
		registry:       registry,
		popTimeout:     popTimeout,
		healthInterval: healthInterval,
		maxAttempts:    maxAttempts,
		backoffBase:    backoffBase,
		backoffMax:     backoffMax,
		state:          NewState(),
		logger:         telemetry.WithWorkerID(logger, id),
	}
}

// ID возвращает идентификатор воркера.
func (w *Worker) ID() string { return w.id }

// Start запускает основной цикл воркера.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"pop_timeout", w.popTimeout,
		"health_interval", w.healthInterval,
		"max_attempts", w.maxAttempts,
	)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.runLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает воркер.
//
// Блокируется до завершения текущего stage: прерывать вызов внешнего
// сервиса посреди генерации бессмысленно, проще дать ему закончиться
// и вернуть job в очередь с уже сохранённым прогрессом.
func (w *Worker) Stop() {
	w.state.RequestShutdown()
	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// runLoop — основной цикл: pop → process → repeat.
func (w *Worker) runLoop(ctx context.Context) {
	w.state.SetRunning(true)
	defer w.state.SetRunning(false)

	// Первый health check сразу при старте
	w.runHealthCheck(ctx)

	for {
		if w.state.ShutdownRequested() || ctx.Err() != nil {
			break
		}

		if time.Since(w.lastCheck()) >= w.healthInterval {
			w.runHealthCheck(ctx)
		}

		msg, err := w.queue.Pop(ctx, w.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logger.Error("failed to pop job from queue", "error", err)
			continue
		}
		if msg == nil {
			// Таймаут — очередь пуста, штатная ситуация
			telemetry.QueuePopTimeouts.Inc()
			continue
		}

		w.state.SetCurrentJob(msg.JobID)

		if err := w.processJob(ctx, msg.JobID); err != nil {
			if errors.Is(err, ErrShutdown) || errors.Is(err, context.Canceled) {
				// Job остаётся закреплённым и будет возвращён в очередь ниже
				break
			}
			// Инфраструктурный сбой: job остаётся PROCESSING,
			// его подберёт janitor по visibility timeout
			w.logger.Error("failed to process job", "job_id", msg.JobID, "error", err)
		}

		w.state.ClearCurrentJob()
	}

	// Graceful shutdown: вернуть недоработанный job в очередь
	if jobID, held := w.state.CurrentJob(); held {
		w.requeueJob(jobID)
		w.state.ClearCurrentJob()
	}
}

// requeueJob возвращает job в очередь при graceful shutdown.
// Прогресс завершённых stages сохранён в БД — следующий воркер
// продолжит с первого незавершённого stage.
func (w *Worker) requeueJob(jobID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), requeueTimeout)
	defer cancel()

	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		w.logger.Error("failed to load job for requeue", "job_id", jobID, "error", err)
		return
	}
	if job.IsFinished() {
		// Успели завершить до выхода из цикла
		return
	}

	job.MarkPending()
	if err := w.store.UpdateJob(ctx, job); err != nil {
		w.logger.Error("failed to mark job pending for requeue", "job_id", jobID, "error", err)
		return
	}

	if err := w.queue.Push(ctx, &queue.Message{JobID: job.ID, Pipeline: job.Pipeline}); err != nil {
		// Статус уже PENDING — janitor вернёт job в очередь позже
		w.logger.Error("failed to push job back to queue", "job_id", jobID, "error", err)
		return
	}

	w.publisher.StatusChanged(ctx, progress.Event{
		JobID:    job.ID,
		Status:   string(domain.JobStatusPending),
		WorkerID: w.id,
	})

	telemetry.JobsRequeued.WithLabelValues("shutdown").Inc()
	w.logger.Info("job requeued on shutdown", "job_id", jobID)
}

// runHealthCheck проверяет связь с брокером и БД.
func (w *Worker) runHealthCheck(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	brokerErr := w.queue.Ping(pingCtx)
	storeErr := w.store.Ping(pingCtx)

	w.healthMu.Lock()
	w.brokerHealthy = brokerErr == nil
	w.storeHealthy = storeErr == nil
	w.lastHealthCheck = time.Now()
	w.healthMu.Unlock()

	if brokerErr != nil {
		w.logger.Warn("broker health check failed", "error", brokerErr)
	}
	if storeErr != nil {
		w.logger.Warn("store health check failed", "error", storeErr)
	}
}

func (w *Worker) lastCheck() time.Time {
	w.healthMu.RLock()
	defer w.healthMu.RUnlock()
	return w.lastHealthCheck
}

// Health возвращает снимок состояния воркера для health endpoint.
func (w *Worker) Health() Health {
	w.healthMu.RLock()
	broker, store := w.brokerHealthy, w.storeHealthy
	w.healthMu.RUnlock()

	h := Health{
		WorkerID:      w.id,
		Running:       w.state.Running(),
		BrokerHealthy: broker,
		StoreHealthy:  store,
		Timestamp:     time.Now(),
	}
	if jobID, held := w.state.CurrentJob(); held {
		h.CurrentJob = jobID.String()
	}
	h.Healthy = h.Running && broker && store
	return h
}
