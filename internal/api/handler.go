package api

import (
	"log/slog"

	"github.com/clipforge/clipforge/internal/progress"
	"github.com/clipforge/clipforge/internal/queue"
	"github.com/clipforge/clipforge/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	jobs      *repo.JobRepo
	stages    *repo.StageRepo
	queue     *queue.JobQueue
	publisher *progress.Publisher
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Jobs      *repo.JobRepo
	Stages    *repo.StageRepo
	Queue     *queue.JobQueue
	Publisher *progress.Publisher
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		jobs:      cfg.Jobs,
		stages:    cfg.Stages,
		queue:     cfg.Queue,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
	}
}
