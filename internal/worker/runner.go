package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/progress"
	"github.com/clipforge/clipforge/internal/repo"
	"github.com/clipforge/clipforge/internal/telemetry"
)

// jobRun — прогресс stages одного выполнения job.
//
// Общий прогресс job — среднее по всем stages pipeline; ещё не
// начатые stages считаются с прогрессом 0, поэтому значение растёт
// плавно от 0 до 100 и на границах stages совпадает с равномерным
// разбиением (4 stages → 25/50/75/100).
//
// Вклад stage не уменьшается: retry сбрасывает персистентный
// Stage.Progress, но публикуемый общий прогресс не откатывается.
type jobRun struct {
	pipeline *domain.Pipeline
	progress map[string]int
}

func newJobRun(pipeline *domain.Pipeline) *jobRun {
	return &jobRun{
		pipeline: pipeline,
		progress: make(map[string]int, len(pipeline.Stages)),
	}
}

func (r *jobRun) set(stage string, pct int) {
	if pct > r.progress[stage] {
		r.progress[stage] = pct
	}
}

func (r *jobRun) overall() int {
	n := len(r.pipeline.Stages)
	if n == 0 {
		return 0
	}
	sum := 0
	for _, def := range r.pipeline.Stages {
		sum += r.progress[def.Name]
	}
	return sum / n
}

// processJob выполняет один job от начала до терминального статуса.
//
// Возвращает ошибку только при инфраструктурных сбоях (БД недоступна)
// или shutdown — в этих случаях job не переводится в терминальный
// статус. Ошибки генерации обрабатываются внутри: job помечается
// FAILED, processJob возвращает nil.
func (w *Worker) processJob(ctx context.Context, jobID uuid.UUID) error {
	logger := telemetry.WithJobID(w.logger, jobID.String())

	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			logger.Warn("job from queue not found in store, skipping")
			return nil
		}
		return fmt.Errorf("get job: %w", err)
	}

	if job.IsFinished() {
		// Дубликат в очереди или job уже доработан другим воркером
		logger.Debug("job already finished, skipping", "status", job.Status)
		return nil
	}

	pipeline, err := domain.BuildPipeline(job.Pipeline, job.Input)
	if err != nil {
		// Некорректный pipeline или вход — fatal без единой попытки
		serr := domain.AsStageError(err)
		logger.Warn("failed to build pipeline", "pipeline", job.Pipeline, "error", serr)
		return w.failJob(ctx, job, nil, "", serr)
	}

	job.MarkProcessing(w.id)
	if err := w.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}

	run := newJobRun(pipeline)

	// Восстановление после requeue: завершённые stages не выполняются
	// повторно, их артефакты подкладываются следующим stages
	existing, err := w.store.ListStages(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list stages: %w", err)
	}
	completed := make(map[string]*domain.Stage, len(existing))
	for i := range existing {
		if existing[i].Status == domain.StageStatusCompleted {
			completed[existing[i].Name] = &existing[i]
			run.set(existing[i].Name, 100)
		}
	}

	logger.Info("job started",
		"pipeline", pipeline.Name,
		"stages", len(pipeline.Stages),
		"resumed", len(completed),
	)
	w.publisher.StatusChanged(ctx, progress.Event{
		JobID:    job.ID,
		Progress: run.overall(),
		Status:   string(domain.JobStatusProcessing),
		WorkerID: w.id,
	})

	// Data аккумулирует вход job и артефакты по мере прохождения pipeline
	data := make(map[string]any, len(job.Input))
	for k, v := range job.Input {
		data[k] = v
	}

	for _, def := range pipeline.Stages {
		if prev, ok := completed[def.Name]; ok {
			for k, v := range prev.Data {
				data[k] = v
			}
			run.set(def.Name, 100)
			continue
		}

		out, err := w.runStage(ctx, logger, job, def, run, data)
		if err != nil {
			var serr *domain.StageError
			if errors.As(err, &serr) {
				return w.failJob(ctx, job, run, def.Name, serr)
			}
			return err
		}

		for k, v := range out {
			data[k] = v
		}
	}

	outputURL, _ := data["output_url"].(string)
	job.MarkCompleted(outputURL)
	if err := w.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}

	w.publisher.StatusChanged(ctx, progress.Event{
		JobID:    job.ID,
		Progress: 100,
		Status:   string(domain.JobStatusCompleted),
		WorkerID: w.id,
	})
	telemetry.JobsProcessed.WithLabelValues("completed").Inc()
	logger.Info("job completed", "output_url", outputURL)
	return nil
}

// runStage выполняет один stage с retry.
//
// Возвращает артефакты stage при успехе. *domain.StageError в ошибке
// означает окончательный провал stage (fatal или исчерпаны попытки);
// ErrShutdown — остановку воркера; прочие ошибки — сбой персистентности.
func (w *Worker) runStage(ctx context.Context, logger *slog.Logger, job *domain.Job, def domain.StageDef, run *jobRun, data map[string]any) (map[string]any, error) {
	executor, err := w.registry.Get(def.Type)
	if err != nil {
		return nil, domain.NewFatalError(domain.ErrKindUnsupported, "no executor for stage type %q", def.Type)
	}

	stage, err := w.store.GetStage(ctx, job.ID, def.Name)
	if errors.Is(err, repo.ErrNotFound) {
		stage = &domain.Stage{
			JobID:     job.ID,
			Name:      def.Name,
			Type:      def.Type,
			Status:    domain.StageStatusPending,
			CreatedAt: time.Now(),
		}
		if err := w.store.CreateStage(ctx, stage); err != nil {
			return nil, fmt.Errorf("create stage %s: %w", def.Name, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("get stage %s: %w", def.Name, err)
	}

	for {
		stage.MarkProcessing()
		if err := w.store.UpdateStage(ctx, stage); err != nil {
			return nil, fmt.Errorf("mark stage processing: %w", err)
		}
		run.set(def.Name, 0)

		// Heartbeat: продвигаем updated_at job, чтобы janitor видел живого воркера
		if err := w.store.UpdateJob(ctx, job); err != nil {
			logger.Warn("failed to heartbeat job", "error", err)
		}

		w.publishStage(ctx, job, def.Name, string(domain.StageStatusProcessing), run)
		logger.Info("stage started", "stage", def.Name, "type", def.Type, "attempt", stage.Attempt)
		start := time.Now()

		report := func(pct int) {
			stage.AdvanceProgress(pct)
			run.set(def.Name, stage.Progress)
			w.publishStage(ctx, job, def.Name, string(domain.StageStatusProcessing), run)
			// Персистим прогресс вместе с heartbeat; сбой не фатален
			if err := w.store.UpdateStage(ctx, stage); err != nil {
				logger.Debug("failed to persist stage progress", "stage", def.Name, "error", err)
			}
			if err := w.store.UpdateJob(ctx, job); err != nil {
				logger.Debug("failed to heartbeat job", "error", err)
			}
		}

		out, execErr := executor.Execute(ctx, &ExecutionInput{
			Job:    job,
			Stage:  stage,
			Data:   data,
			Report: report,
		})

		if execErr == nil {
			stage.MarkCompleted(out)
			if err := w.store.UpdateStage(ctx, stage); err != nil {
				return nil, fmt.Errorf("mark stage completed: %w", err)
			}
			run.set(def.Name, 100)
			w.publishStage(ctx, job, def.Name, string(domain.StageStatusCompleted), run)
			telemetry.StageDuration.WithLabelValues(def.Type).Observe(time.Since(start).Seconds())
			logger.Info("stage completed",
				"stage", def.Name,
				"attempt", stage.Attempt,
				"duration", time.Since(start),
			)
			return out, nil
		}

		if ctx.Err() != nil {
			// Остановка пришла во время выполнения; stage останется
			// PROCESSING и будет перезапущен после requeue
			return nil, ErrShutdown
		}

		serr := domain.AsStageError(execErr)
		logger.Warn("stage failed",
			"stage", def.Name,
			"attempt", stage.Attempt,
			"kind", serr.Kind,
			"retryable", serr.Retryable,
			"error", serr.Message,
		)

		if !serr.Retryable || !stage.CanRetry(w.maxAttempts) {
			if serr.Retryable {
				serr = &domain.StageError{
					Kind:      serr.Kind,
					Message:   fmt.Sprintf("%s (after %d attempts)", serr.Message, stage.Attempt),
					Retryable: true,
				}
			}
			stage.MarkFailed(serr)
			if err := w.store.UpdateStage(ctx, stage); err != nil {
				return nil, fmt.Errorf("mark stage failed: %w", err)
			}
			run.set(def.Name, stage.Progress)
			w.publishStage(ctx, job, def.Name, string(domain.StageStatusFailed), run)
			return nil, serr
		}

		delay := backoffDelay(stage.Attempt, w.backoffBase, w.backoffMax)
		telemetry.StageRetries.Inc()
		logger.Debug("retrying stage", "stage", def.Name, "attempt", stage.Attempt, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ErrShutdown
		}

		if w.state.ShutdownRequested() {
			return nil, ErrShutdown
		}
	}
}

// failJob переводит job в FAILED. Терминальный переход происходит
// ровно один раз: уже завершённый job не перезаписывается.
func (w *Worker) failJob(ctx context.Context, job *domain.Job, run *jobRun, stageName string, serr *domain.StageError) error {
	if job.IsFinished() {
		return nil
	}

	job.MarkFailed(serr.Kind, serr.Message)
	if err := w.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}

	pct := 0
	if run != nil {
		pct = run.overall()
	}
	w.publisher.StatusChanged(ctx, progress.Event{
		JobID:    job.ID,
		Stage:    stageName,
		Progress: pct,
		Status:   string(domain.JobStatusFailed),
		WorkerID: w.id,
	})
	telemetry.JobsProcessed.WithLabelValues("failed").Inc()
	w.logger.Warn("job failed",
		"job_id", job.ID,
		"stage", stageName,
		"kind", serr.Kind,
		"error", serr.Message,
	)
	return nil
}

// publishStage публикует гранулярное событие прогресса stage.
func (w *Worker) publishStage(ctx context.Context, job *domain.Job, stageName, status string, run *jobRun) {
	w.publisher.StageProgress(ctx, progress.Event{
		JobID:    job.ID,
		Stage:    stageName,
		Progress: run.overall(),
		Status:   status,
		WorkerID: w.id,
	})
}
