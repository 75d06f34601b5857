package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/progress"
	"github.com/clipforge/clipforge/internal/queue"
	"github.com/clipforge/clipforge/internal/repo"
)

// CreateJob создаёт job и ставит его в очередь.
// POST /api/v1/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Pipeline == "" {
		BadRequest(w, "pipeline is required")
		return
	}

	// Валидация pipeline и входа до записи: некорректный job
	// бессмысленно прогонять через очередь
	if _, err := domain.BuildPipeline(req.Pipeline, req.Input); err != nil {
		BadRequest(w, err.Error())
		return
	}

	now := time.Now()
	job := &domain.Job{
		ID:        uuid.New(),
		Pipeline:  req.Pipeline,
		Status:    domain.JobStatusPending,
		Input:     req.Input,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.jobs.Create(r.Context(), job); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	if err := h.queue.Push(r.Context(), &queue.Message{JobID: job.ID, Pipeline: job.Pipeline}); err != nil {
		// Job уже в БД в статусе PENDING — его вернёт в очередь janitor
		// или повторный submit; клиенту при этом отвечаем ошибкой
		h.logger.Error("failed to enqueue job", "job_id", job.ID, "error", err)
		InternalError(w, h.logger, err)
		return
	}

	if h.publisher != nil {
		h.publisher.StatusChanged(r.Context(), progress.Event{
			JobID:  job.ID,
			Status: string(domain.JobStatusPending),
		})
	}

	h.logger.Info("job created", "job_id", job.ID, "pipeline", job.Pipeline)
	Created(w, JobFromDomain(*job))
}

// ListJobs возвращает список jobs с фильтрацией.
// GET /api/v1/jobs?status=...&limit=...&offset=...
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := repo.JobFilter{Limit: 50}

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = domain.JobStatus(status)
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		filter.Limit = parseIntDefault(limitStr, 50)
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		filter.Offset = parseIntDefault(offsetStr, 0)
	}

	jobs, err := h.jobs.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]JobResponse, len(jobs))
	for i, job := range jobs {
		result[i] = JobFromDomain(job)
	}

	List(w, result, len(result))
}

// GetJob возвращает job со stages.
// GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "job not found") {
		return
	}

	stages, err := h.stages.ListByJobID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	detail := JobDetailResponse{
		JobResponse: JobFromDomain(*job),
		Stages:      make([]StageResponse, len(stages)),
	}
	for i, stage := range stages {
		detail.Stages[i] = StageFromDomain(stage)
	}

	Success(w, detail)
}

// GetJobStatus возвращает лёгкий статус job для поллинга.
// GET /api/v1/jobs/{id}/status
//
// Сначала пробует Redis-кэш последнего события, при промахе собирает
// статус из БД. Кэш избавляет БД от нагрузки дашбордов, которые
// поллят статус раз в секунду.
func (h *Handler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	if h.publisher != nil {
		ev, err := h.publisher.Snapshot(r.Context(), id)
		if err != nil {
			h.logger.Warn("failed to read status cache", "job_id", id, "error", err)
		}
		if ev != nil {
			Success(w, StatusResponse{
				JobID:     ev.JobID,
				Status:    ev.Status,
				Progress:  ev.Progress,
				Stage:     ev.Stage,
				UpdatedAt: ev.Timestamp,
			})
			return
		}
	}

	// Fallback: собираем статус из персистентного состояния
	job, err := h.jobs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "job not found") {
		return
	}

	resp := StatusResponse{
		JobID:        job.ID,
		Status:       string(job.Status),
		OutputURL:    job.OutputURL,
		ErrorKind:    job.ErrorKind,
		ErrorMessage: job.ErrorMessage,
		UpdatedAt:    job.UpdatedAt,
	}

	if job.Status == domain.JobStatusCompleted {
		resp.Progress = 100
	} else if pipeline, perr := domain.BuildPipeline(job.Pipeline, job.Input); perr == nil {
		stages, serr := h.stages.ListByJobID(r.Context(), id)
		if serr == nil {
			resp.Progress = pipeline.OverallProgress(stages)
		}
	}

	Success(w, resp)
}

func parseIntDefault(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return def
	}
	return v
}
