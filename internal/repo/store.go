package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipforge/clipforge/internal/domain"
)

// Store объединяет JobRepo и StageRepo в единую точку персистентности
// для воркера и janitor'а.
type Store struct {
	pool   *pgxpool.Pool
	jobs   *JobRepo
	stages *StageRepo
}

// NewStore создаёт Store поверх пула соединений.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		jobs:   NewJobRepo(pool),
		stages: NewStageRepo(pool),
	}
}

// Jobs возвращает репозиторий jobs.
func (s *Store) Jobs() *JobRepo { return s.jobs }

// Stages возвращает репозиторий stages.
func (s *Store) Stages() *StageRepo { return s.stages }

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.jobs.GetByID(ctx, id)
}

func (s *Store) UpdateJob(ctx context.Context, job *domain.Job) error {
	return s.jobs.Update(ctx, job)
}

func (s *Store) GetStage(ctx context.Context, jobID uuid.UUID, name string) (*domain.Stage, error) {
	return s.stages.GetByJobAndName(ctx, jobID, name)
}

func (s *Store) CreateStage(ctx context.Context, stage *domain.Stage) error {
	return s.stages.Create(ctx, stage)
}

func (s *Store) UpdateStage(ctx context.Context, stage *domain.Stage) error {
	return s.stages.Update(ctx, stage)
}

func (s *Store) ListStages(ctx context.Context, jobID uuid.UUID) ([]domain.Stage, error) {
	return s.stages.ListByJobID(ctx, jobID)
}

// Ping проверяет связь с БД (для health check воркера).
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
