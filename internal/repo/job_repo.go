package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipforge/clipforge/internal/domain"
)

// JobRepo — репозиторий для работы с jobs.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, pipeline, status, input, output_url, error_kind,
       error_message, worker_id, created_at, updated_at`

// Create создаёт новый job.
func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	inputJSON, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}

	query := `
		INSERT INTO jobs (id, pipeline, status, input, worker_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.Pipeline,
		job.Status,
		inputJSON,
		nullString(job.WorkerID),
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID возвращает job по ID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(r.pool.QueryRow(ctx, query, id))
}

// Update обновляет job. updated_at выставляется в now() — это heartbeat,
// по которому janitor отличает живые jobs от зависших.
func (r *JobRepo) Update(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET status = $2, output_url = $3, error_kind = $4, error_message = $5,
		    worker_id = $6, updated_at = now()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		nullString(job.OutputURL),
		nullString(job.ErrorKind),
		nullString(job.ErrorMessage),
		nullString(job.WorkerID),
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// JobFilter — фильтр для списка jobs.
type JobFilter struct {
	Status domain.JobStatus
	Limit  int
	Offset int
}

// List возвращает jobs с фильтрацией, новые первыми.
func (r *JobRepo) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}

	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT %d OFFSET %d`, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ListStale возвращает jobs, застрявшие в PROCESSING: их heartbeat
// (updated_at) старше cutoff. Такие jobs оставлены воркером, умершим
// без graceful shutdown.
func (r *JobRepo) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = 'PROCESSING' AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// --- Helpers ---

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var inputJSON []byte
	var outputURL, errorKind, errorMessage, workerID *string

	err := row.Scan(
		&job.ID,
		&job.Pipeline,
		&job.Status,
		&inputJSON,
		&outputURL,
		&errorKind,
		&errorMessage,
		&workerID,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if inputJSON != nil {
		if err := json.Unmarshal(inputJSON, &job.Input); err != nil {
			return nil, fmt.Errorf("unmarshal input: %w", err)
		}
	}
	if outputURL != nil {
		job.OutputURL = *outputURL
	}
	if errorKind != nil {
		job.ErrorKind = *errorKind
	}
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	if workerID != nil {
		job.WorkerID = *workerID
	}

	return &job, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
