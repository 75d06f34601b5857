package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipforge/clipforge/internal/domain"
)

// StageRepo — репозиторий для работы со stages.
// Stage идентифицируется парой (job_id, name).
type StageRepo struct {
	pool *pgxpool.Pool
}

// NewStageRepo создаёт новый StageRepo.
func NewStageRepo(pool *pgxpool.Pool) *StageRepo {
	return &StageRepo{pool: pool}
}

const stageColumns = `job_id, name, type, status, progress, attempt, data,
       error_kind, error_message, error_retryable, started_at, finished_at, created_at`

// Create создаёт новый stage.
func (r *StageRepo) Create(ctx context.Context, stage *domain.Stage) error {
	dataJSON, err := json.Marshal(stage.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	query := `
		INSERT INTO stages (job_id, name, type, status, progress, attempt, data,
		                    started_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		stage.JobID,
		stage.Name,
		stage.Type,
		stage.Status,
		stage.Progress,
		stage.Attempt,
		dataJSON,
		stage.StartedAt,
		stage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stage: %w", err)
	}
	return nil
}

// GetByJobAndName возвращает stage по job_id и имени.
func (r *StageRepo) GetByJobAndName(ctx context.Context, jobID uuid.UUID, name string) (*domain.Stage, error) {
	query := `SELECT ` + stageColumns + ` FROM stages WHERE job_id = $1 AND name = $2`
	return scanStage(r.pool.QueryRow(ctx, query, jobID, name))
}

// Update обновляет stage.
func (r *StageRepo) Update(ctx context.Context, stage *domain.Stage) error {
	dataJSON, err := json.Marshal(stage.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	query := `
		UPDATE stages
		SET status = $3, progress = $4, attempt = $5, data = $6,
		    error_kind = $7, error_message = $8, error_retryable = $9,
		    started_at = $10, finished_at = $11
		WHERE job_id = $1 AND name = $2
	`
	result, err := r.pool.Exec(ctx, query,
		stage.JobID,
		stage.Name,
		stage.Status,
		stage.Progress,
		stage.Attempt,
		dataJSON,
		nullString(stage.ErrorKind),
		nullString(stage.ErrorMessage),
		stage.ErrorRetryable,
		stage.StartedAt,
		stage.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByJobID возвращает все stages job в порядке создания.
func (r *StageRepo) ListByJobID(ctx context.Context, jobID uuid.UUID) ([]domain.Stage, error) {
	query := `
		SELECT ` + stageColumns + `
		FROM stages
		WHERE job_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list stages by job_id: %w", err)
	}
	defer rows.Close()

	var stages []domain.Stage
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		stages = append(stages, *stage)
	}
	return stages, rows.Err()
}

// --- Helpers ---

func scanStage(row pgx.Row) (*domain.Stage, error) {
	var stage domain.Stage
	var dataJSON []byte
	var errorKind, errorMessage *string

	err := row.Scan(
		&stage.JobID,
		&stage.Name,
		&stage.Type,
		&stage.Status,
		&stage.Progress,
		&stage.Attempt,
		&dataJSON,
		&errorKind,
		&errorMessage,
		&stage.ErrorRetryable,
		&stage.StartedAt,
		&stage.FinishedAt,
		&stage.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan stage: %w", err)
	}

	if dataJSON != nil {
		if err := json.Unmarshal(dataJSON, &stage.Data); err != nil {
			return nil, fmt.Errorf("unmarshal data: %w", err)
		}
	}
	if errorKind != nil {
		stage.ErrorKind = *errorKind
	}
	if errorMessage != nil {
		stage.ErrorMessage = *errorMessage
	}

	return &stage, nil
}
