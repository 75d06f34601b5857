package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/domain"
)

// Job DTOs

// CreateJobRequest — запрос на создание job.
type CreateJobRequest struct {
	// Pipeline — имя pipeline: "template" или "scenes".
	Pipeline string `json:"pipeline"`

	// Input — параметры генерации, передаются stage-executor'ам как есть.
	Input map[string]any `json:"input,omitempty"`
}

// JobResponse — ответ с job.
type JobResponse struct {
	ID           uuid.UUID        `json:"id"`
	Pipeline     string           `json:"pipeline"`
	Status       domain.JobStatus `json:"status"`
	Input        map[string]any   `json:"input,omitempty"`
	OutputURL    string           `json:"output_url,omitempty"`
	ErrorKind    string           `json:"error_kind,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	WorkerID     string           `json:"worker_id,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// JobFromDomain конвертирует domain.Job в JobResponse.
func JobFromDomain(j domain.Job) JobResponse {
	return JobResponse{
		ID:           j.ID,
		Pipeline:     j.Pipeline,
		Status:       j.Status,
		Input:        j.Input,
		OutputURL:    j.OutputURL,
		ErrorKind:    j.ErrorKind,
		ErrorMessage: j.ErrorMessage,
		WorkerID:     j.WorkerID,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

// Stage DTOs

// StageResponse — ответ со stage.
type StageResponse struct {
	Name         string             `json:"name"`
	Type         string             `json:"type"`
	Status       domain.StageStatus `json:"status"`
	Progress     int                `json:"progress"`
	Attempt      int                `json:"attempt"`
	ErrorKind    string             `json:"error_kind,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	StartedAt    *time.Time         `json:"started_at,omitempty"`
	FinishedAt   *time.Time         `json:"finished_at,omitempty"`
}

// StageFromDomain конвертирует domain.Stage в StageResponse.
func StageFromDomain(s domain.Stage) StageResponse {
	return StageResponse{
		Name:         s.Name,
		Type:         s.Type,
		Status:       s.Status,
		Progress:     s.Progress,
		Attempt:      s.Attempt,
		ErrorKind:    s.ErrorKind,
		ErrorMessage: s.ErrorMessage,
		StartedAt:    s.StartedAt,
		FinishedAt:   s.FinishedAt,
	}
}

// JobDetailResponse — job вместе со stages.
type JobDetailResponse struct {
	JobResponse
	Stages []StageResponse `json:"stages"`
}

// StatusResponse — лёгкий статус job для поллинга.
type StatusResponse struct {
	JobID        uuid.UUID `json:"job_id"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	Stage        string    `json:"stage,omitempty"`
	OutputURL    string    `json:"output_url,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}
