package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(store Store, q Queue, pub Publisher, registry *Registry) *Worker {
	return New(Config{
		WorkerID:    "worker-test",
		Store:       store,
		Queue:       q,
		Publisher:   pub,
		Registry:    registry,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffMax:  4 * time.Millisecond,
		Logger:      testLogger(),
	})
}

func newTemplateJob() *domain.Job {
	now := time.Now()
	return &domain.Job{
		ID:        uuid.New(),
		Pipeline:  domain.PipelineTemplate,
		Status:    domain.JobStatusPending,
		Input:     map[string]any{"prompt": "cat video"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// okRegistry — все stages успешны, каждый возвращает свой артефакт.
func okRegistry() *Registry {
	r := NewRegistry()
	for _, st := range []string{
		domain.StageTypeScript, domain.StageTypeVoice, domain.StageTypeVideo,
		domain.StageTypeScene, domain.StageTypeClip, domain.StageTypeLipsync,
	} {
		st := st
		r.Register(st, execFunc(func(ctx context.Context, in *ExecutionInput) (map[string]any, error) {
			return map[string]any{st + "_url": "https://gw/" + in.Stage.Name}, nil
		}))
	}
	for _, st := range []string{domain.StageTypeComposite, domain.StageTypeStitch} {
		r.Register(st, execFunc(func(ctx context.Context, in *ExecutionInput) (map[string]any, error) {
			return map[string]any{"output_url": "https://cdn/" + in.Job.ID.String() + ".mp4"}, nil
		}))
	}
	return r
}

func TestProcessJobCompletesTemplatePipeline(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	job := newTemplateJob()
	store.addJob(job)

	w := newTestWorker(store, &fakeQueue{}, pub, okRegistry())

	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob: %v", err)
	}

	got := store.job(job.ID)
	if got.Status != domain.JobStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", got.Status, got.ErrorMessage)
	}
	if got.OutputURL == "" {
		t.Error("completed job must carry output url")
	}
	if got.WorkerID != "" {
		t.Error("finished job must not be pinned to a worker")
	}

	for _, name := range []string{"script", "voice", "video", "composite"} {
		stage, ok := store.stage(job.ID, name)
		if !ok {
			t.Fatalf("stage %s was not persisted", name)
		}
		if stage.Status != domain.StageStatusCompleted || stage.Progress != 100 {
			t.Errorf("stage %s: status=%s progress=%d", name, stage.Status, stage.Progress)
		}
		if stage.Attempt != 1 {
			t.Errorf("stage %s: expected single attempt, got %d", name, stage.Attempt)
		}
	}

	// Общий прогресс в событиях монотонный и доходит до 100
	events := pub.all()
	if len(events) == 0 {
		t.Fatal("no progress events published")
	}
	last := -1
	for _, ev := range events {
		if ev.Progress < last {
			t.Fatalf("progress went backwards: %d after %d", ev.Progress, last)
		}
		last = ev.Progress
	}
	final := events[len(events)-1]
	if final.Status != string(domain.JobStatusCompleted) || final.Progress != 100 {
		t.Errorf("final event: %+v", final)
	}
}

func TestProcessJobScenesPipelineOrder(t *testing.T) {
	store := newFakeStore()
	job := newTemplateJob()
	job.Pipeline = domain.PipelineScenes
	job.Input = map[string]any{"scene_count": 2}
	store.addJob(job)

	var executed []string
	r := NewRegistry()
	record := func(ctx context.Context, in *ExecutionInput) (map[string]any, error) {
		executed = append(executed, in.Stage.Name)
		return map[string]any{"output_url": "https://cdn/out.mp4"}, nil
	}
	for _, st := range []string{
		domain.StageTypeScene, domain.StageTypeClip,
		domain.StageTypeLipsync, domain.StageTypeStitch,
	} {
		r.Register(st, execFunc(record))
	}

	w := newTestWorker(store, &fakeQueue{}, &fakePublisher{}, r)
	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob: %v", err)
	}

	want := []string{"scene", "clip-1", "clip-2", "lipsync", "stitch"}
	if len(executed) != len(want) {
		t.Fatalf("executed %v, want %v", executed, want)
	}
	for i := range want {
		if executed[i] != want[i] {
			t.Fatalf("executed %v, want %v", executed, want)
		}
	}
}

func TestProcessJobRetriesTransientError(t *testing.T) {
	store := newFakeStore()
	job := newTemplateJob()
	store.addJob(job)

	r := okRegistry()
	calls := 0
	r.Register(domain.StageTypeVoice, execFunc(func(ctx context.Context, in *ExecutionInput) (map[string]any, error) {
		calls++
		if calls < 3 {
			return nil, domain.NewRetryableError(domain.ErrKindUpstream, "gateway hiccup")
		}
		return map[string]any{"voice_url": "https://gw/voice"}, nil
	}))

	w := newTestWorker(store, &fakeQueue{}, &fakePublisher{}, r)
	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob: %v", err)
	}

	if got := store.job(job.ID); got.Status != domain.JobStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.Status)
	}
	stage, _ := store.stage(job.ID, "voice")
	if stage.Attempt != 3 {
		t.Errorf("expected 3 attempts, got %d", stage.Attempt)
	}
	if stage.ErrorKind != "" {
		t.Errorf("successful retry must clear the error, got %q", stage.ErrorKind)
	}
}

func TestProcessJobProgressNeverRegressesOnRetry(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	job := newTemplateJob()
	store.addJob(job)

	r := okRegistry()
	calls := 0
	r.Register(domain.StageTypeVoice, execFunc(func(ctx context.Context, in *ExecutionInput) (map[string]any, error) {
		calls++
		if calls == 1 {
			// Первая попытка успела отчитаться о прогрессе до провала
			in.Report(80)
			return nil, domain.NewRetryableError(domain.ErrKindUpstream, "gateway hiccup")
		}
		return map[string]any{"voice_url": "https://gw/voice"}, nil
	}))

	w := newTestWorker(store, &fakeQueue{}, pub, r)
	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob: %v", err)
	}

	// Retry сбрасывает попытку, но опубликованный общий прогресс
	// не откатывается ниже уже объявленных значений
	last := -1
	for i, ev := range pub.all() {
		if ev.Progress < last {
			t.Fatalf("event %d: published progress went backwards: %d after %d (status=%s stage=%s)",
				i, ev.Progress, last, ev.Status, ev.Stage)
		}
		last = ev.Progress
	}

	got := store.job(job.ID)
	if got.Status != domain.JobStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", got.Status, got.ErrorMessage)
	}
}

func TestProcessJobExhaustsRetries(t *testing.T) {
	store := newFakeStore()
	job := newTemplateJob()
	store.addJob(job)

	r := okRegistry()
	calls := 0
	r.Register(domain.StageTypeVoice, execFunc(func(ctx context.Context, in *ExecutionInput) (map[string]any, error) {
		calls++
		return nil, domain.NewRetryableError(domain.ErrKindTimeout, "gateway timed out")
	}))

	w := newTestWorker(store, &fakeQueue{}, &fakePublisher{}, r)
	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob: %v", err)
	}

	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}

	got := store.job(job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("expected FAILED, got %s", got.Status)
	}
	if got.ErrorKind != string(domain.ErrKindTimeout) {
		t.Errorf("expected TIMEOUT, got %q", got.ErrorKind)
	}

	stage, _ := store.stage(job.ID, "voice")
	if stage.Status != domain.StageStatusFailed || !stage.ErrorRetryable {
		t.Errorf("stage: status=%s retryable=%v", stage.Status, stage.ErrorRetryable)
	}

	// Провал voice останавливает pipeline — video не начинался
	if _, ok := store.stage(job.ID, "video"); ok {
		t.Error("later stage must not start after a failed one")
	}
}

func TestProcessJobFatalErrorShortCircuits(t *testing.T) {
	store := newFakeStore()
	job := newTemplateJob()
	store.addJob(job)

	r := okRegistry()
	calls := 0
	r.Register(domain.StageTypeScript, execFunc(func(ctx context.Context, in *ExecutionInput) (map[string]any, error) {
		calls++
		return nil, domain.NewFatalError(domain.ErrKindInvalidInput, "prompt is empty")
	}))

	w := newTestWorker(store, &fakeQueue{}, &fakePublisher{}, r)
	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob: %v", err)
	}

	if calls != 1 {
		t.Errorf("fatal error must not be retried, got %d calls", calls)
	}
	got := store.job(job.ID)
	if got.Status != domain.JobStatusFailed || got.ErrorKind != string(domain.ErrKindInvalidInput) {
		t.Errorf("job: status=%s kind=%q", got.Status, got.ErrorKind)
	}
}

func TestProcessJobInvalidPipelineFailsWithoutExecution(t *testing.T) {
	store := newFakeStore()
	job := newTemplateJob()
	job.Pipeline = "unknown"
	store.addJob(job)

	w := newTestWorker(store, &fakeQueue{}, &fakePublisher{}, okRegistry())
	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob: %v", err)
	}

	got := store.job(job.ID)
	if got.Status != domain.JobStatusFailed || got.ErrorKind != string(domain.ErrKindUnsupported) {
		t.Errorf("job: status=%s kind=%q", got.Status, got.ErrorKind)
	}
}

func TestProcessJobSkipsFinishedJob(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	job := newTemplateJob()
	job.Status = domain.JobStatusCompleted
	store.addJob(job)

	called := false
	r := NewRegistry()
	r.Register(domain.StageTypeScript, execFunc(func(ctx context.Context, in *ExecutionInput) (map[string]any, error) {
		called = true
		return nil, nil
	}))

	w := newTestWorker(store, &fakeQueue{}, pub, r)
	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob: %v", err)
	}

	if called {
		t.Error("finished job must not be executed again")
	}
	if len(pub.all()) != 0 {
		t.Error("finished job must not publish events")
	}
}

func TestProcessJobResumesCompletedStages(t *testing.T) {
	store := newFakeStore()
	job := newTemplateJob()
	store.addJob(job)

	// script уже завершён прошлым воркером до requeue
	now := time.Now()
	store.CreateStage(context.Background(), &domain.Stage{
		JobID:     job.ID,
		Name:      "script",
		Type:      domain.StageTypeScript,
		Status:    domain.StageStatusCompleted,
		Progress:  100,
		Attempt:   1,
		Data:      map[string]any{"script_url": "https://gw/script-old"},
		CreatedAt: now,
	})

	r := okRegistry()
	r.Register(domain.StageTypeScript, execFunc(func(ctx context.Context, in *ExecutionInput) (map[string]any, error) {
		t.Error("completed stage must not be re-executed")
		return nil, nil
	}))

	var voiceInput map[string]any
	r.Register(domain.StageTypeVoice, execFunc(func(ctx context.Context, in *ExecutionInput) (map[string]any, error) {
		voiceInput = in.Data
		return map[string]any{"voice_url": "https://gw/voice"}, nil
	}))

	w := newTestWorker(store, &fakeQueue{}, &fakePublisher{}, r)
	if err := w.processJob(context.Background(), job.ID); err != nil {
		t.Fatalf("processJob: %v", err)
	}

	if got := store.job(job.ID); got.Status != domain.JobStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.Status)
	}
	if voiceInput["script_url"] != "https://gw/script-old" {
		t.Errorf("voice must see resumed script artifact, got %v", voiceInput["script_url"])
	}
}

func TestWorkerRequeuesHeldJobOnShutdown(t *testing.T) {
	store := newFakeStore()
	q := &fakeQueue{}
	pub := &fakePublisher{}
	job := newTemplateJob()
	store.addJob(job)
	q.Push(context.Background(), &queue.Message{JobID: job.ID, Pipeline: job.Pipeline})

	started := make(chan struct{})
	r := NewRegistry()
	r.Register(domain.StageTypeScript, execFunc(func(ctx context.Context, in *ExecutionInput) (map[string]any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	w := newTestWorker(store, q, pub, r)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("stage did not start")
	}

	w.Stop()

	got := store.job(job.ID)
	if got.Status != domain.JobStatusPending {
		t.Fatalf("expected PENDING after requeue, got %s", got.Status)
	}
	if got.WorkerID != "" {
		t.Error("requeued job must not be pinned to a worker")
	}
	if q.len() != 1 {
		t.Errorf("expected 1 message back in queue, got %d", q.len())
	}

	// Прогресс script сохранён как PROCESSING — retry начнёт его заново
	stage, ok := store.stage(job.ID, "script")
	if !ok || stage.Status != domain.StageStatusProcessing {
		t.Errorf("stage script: ok=%v status=%s", ok, stage.Status)
	}
}

func TestWorkerHealth(t *testing.T) {
	store := newFakeStore()
	w := newTestWorker(store, &fakeQueue{}, &fakePublisher{}, NewRegistry())

	w.runHealthCheck(context.Background())

	h := w.Health()
	if !h.BrokerHealthy || !h.StoreHealthy {
		t.Errorf("health: %+v", h)
	}
	if h.Healthy {
		t.Error("worker not running yet, must not report healthy")
	}
	if h.WorkerID != "worker-test" {
		t.Errorf("worker id: %q", h.WorkerID)
	}
}
