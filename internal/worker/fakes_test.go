package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/progress"
	"github.com/clipforge/clipforge/internal/queue"
	"github.com/clipforge/clipforge/internal/repo"
)

// fakeStore — in-memory Store. Хранит копии, как это делала бы БД.
type fakeStore struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]domain.Job
	stages map[string]domain.Stage
	order  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:   make(map[uuid.UUID]domain.Job),
		stages: make(map[string]domain.Stage),
	}
}

func stageKey(jobID uuid.UUID, name string) string {
	return jobID.String() + "/" + name
}

func (s *fakeStore) addJob(job *domain.Job) {
	s.mu.Lock()
	s.jobs[job.ID] = *job
	s.mu.Unlock()
}

func (s *fakeStore) job(id uuid.UUID) domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *fakeStore) stage(jobID uuid.UUID, name string) (domain.Stage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stages[stageKey(jobID, name)]
	return st, ok
}

func (s *fakeStore) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &job, nil
}

func (s *fakeStore) UpdateJob(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return repo.ErrNotFound
	}
	job.UpdatedAt = time.Now()
	s.jobs[job.ID] = *job
	return nil
}

func (s *fakeStore) GetStage(ctx context.Context, jobID uuid.UUID, name string) (*domain.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stage, ok := s.stages[stageKey(jobID, name)]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &stage, nil
}

func (s *fakeStore) CreateStage(ctx context.Context, stage *domain.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stageKey(stage.JobID, stage.Name)
	if _, ok := s.stages[key]; ok {
		return repo.ErrAlreadyExists
	}
	s.stages[key] = *stage
	s.order = append(s.order, key)
	return nil
}

func (s *fakeStore) UpdateStage(ctx context.Context, stage *domain.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stageKey(stage.JobID, stage.Name)
	if _, ok := s.stages[key]; !ok {
		return repo.ErrNotFound
	}
	s.stages[key] = *stage
	return nil
}

func (s *fakeStore) ListStages(ctx context.Context, jobID uuid.UUID) ([]domain.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Stage
	for _, key := range s.order {
		stage := s.stages[key]
		if stage.JobID == jobID {
			out = append(out, stage)
		}
	}
	return out, nil
}

func (s *fakeStore) Ping(ctx context.Context) error { return nil }

// fakeQueue — in-memory Queue.
type fakeQueue struct {
	mu   sync.Mutex
	msgs []*queue.Message
}

func (q *fakeQueue) Push(ctx context.Context, msg *queue.Message) error {
	q.mu.Lock()
	q.msgs = append(q.msgs, msg)
	q.mu.Unlock()
	return nil
}

func (q *fakeQueue) Pop(ctx context.Context, timeout time.Duration) (*queue.Message, error) {
	q.mu.Lock()
	if len(q.msgs) > 0 {
		msg := q.msgs[0]
		q.msgs = q.msgs[1:]
		q.mu.Unlock()
		return msg, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

func (q *fakeQueue) Ping(ctx context.Context) error { return nil }

func (q *fakeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// fakePublisher записывает события для проверок.
type fakePublisher struct {
	mu     sync.Mutex
	events []progress.Event
}

func (p *fakePublisher) StatusChanged(ctx context.Context, ev progress.Event) {
	p.record(ev)
}

func (p *fakePublisher) StageProgress(ctx context.Context, ev progress.Event) {
	p.record(ev)
}

func (p *fakePublisher) record(ev progress.Event) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *fakePublisher) all() []progress.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]progress.Event, len(p.events))
	copy(out, p.events)
	return out
}

// execFunc — executor из функции.
type execFunc func(ctx context.Context, in *ExecutionInput) (map[string]any, error)

func (f execFunc) Execute(ctx context.Context, in *ExecutionInput) (map[string]any, error) {
	return f(ctx, in)
}
