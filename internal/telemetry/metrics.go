package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики воркера. Регистрируются в default registry и отдаются
// promhttp.Handler'ом на /metrics каждого бинарника.
var (
	// JobsProcessed — завершённые jobs по результату: completed / failed.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipforge_worker_jobs_processed_total",
		Help: "Total jobs finished by the worker, by result",
	}, []string{"result"})

	// JobsRequeued — jobs, возвращённые в очередь при graceful shutdown
	// или janitor'ом.
	JobsRequeued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipforge_jobs_requeued_total",
		Help: "Total jobs returned to the queue, by reason",
	}, []string{"reason"})

	// StageRetries — повторные попытки stages после retryable ошибок.
	StageRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipforge_worker_stage_retries_total",
		Help: "Total stage retry attempts",
	})

	// StageDuration — длительность успешных stages по типу executor'а.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clipforge_worker_stage_duration_seconds",
		Help:    "Duration of completed stages, by executor type",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"type"})

	// QueuePopTimeouts — pop'ы, завершившиеся таймаутом (пустая очередь).
	QueuePopTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipforge_worker_queue_pop_timeouts_total",
		Help: "Total queue pops that returned empty after the wait timeout",
	})
)
