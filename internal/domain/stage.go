package domain

import (
	"time"

	"github.com/google/uuid"
)

// Stage — один шаг pipeline, принадлежащий ровно одному Job.
//
// Идентифицируется парой (JobID, Name). Последовательность stages
// задаётся pipeline-дескриптором (см. Pipeline); stage никогда
// не переживает свой job.
type Stage struct {
	// JobID — ссылка на родительский job.
	JobID uuid.UUID `json:"job_id"`

	// Name — имя stage, уникальное внутри job (например "voice" или "clip-2").
	Name string `json:"name"`

	// Type — тип executor'а, который выполняет stage.
	Type string `json:"type"`

	// Status — текущий статус stage.
	Status StageStatus `json:"status"`

	// Progress — прогресс 0–100 внутри stage.
	// Монотонно не убывает в пределах одной попытки.
	Progress int `json:"progress"`

	// Attempt — номер попытки (начиная с 1). Увеличивается при retry.
	Attempt int `json:"attempt"`

	// Data — промежуточные артефакты stage (пути к файлам, ссылки).
	// Передаётся следующим stages.
	Data map[string]any `json:"data,omitempty"`

	// ErrorKind — классификация ошибки при FAILED.
	ErrorKind string `json:"error_kind,omitempty"`

	// ErrorMessage — текст ошибки при FAILED.
	ErrorMessage string `json:"error_message,omitempty"`

	// ErrorRetryable — была ли последняя ошибка retryable.
	ErrorRetryable bool `json:"error_retryable,omitempty"`

	// StartedAt — время начала текущей попытки.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время финального завершения.
	// Выставляется ровно один раз: при успехе или окончательном провале.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания stage.
	CreatedAt time.Time `json:"created_at"`
}

// IsFinished возвращает true, если stage завершён.
func (s *Stage) IsFinished() bool {
	return s.Status.IsTerminal()
}

// MarkProcessing переводит stage в PROCESSING и начинает новую попытку.
// Retry перезаписывает только transient-поля; FinishedAt не трогается
// до финального исхода.
func (s *Stage) MarkProcessing() {
	now := time.Now()
	s.Status = StageStatusProcessing
	s.Progress = 0
	s.Attempt++
	s.StartedAt = &now
	s.ErrorKind = ""
	s.ErrorMessage = ""
	s.ErrorRetryable = false
}

// MarkCompleted переводит stage в COMPLETED с артефактами.
func (s *Stage) MarkCompleted(data map[string]any) {
	now := time.Now()
	s.Status = StageStatusCompleted
	s.Progress = 100
	s.Data = data
	s.FinishedAt = &now
}

// MarkFailed переводит stage в FAILED со структурированной ошибкой.
func (s *Stage) MarkFailed(serr *StageError) {
	now := time.Now()
	s.Status = StageStatusFailed
	s.ErrorKind = string(serr.Kind)
	s.ErrorMessage = serr.Message
	s.ErrorRetryable = serr.Retryable
	s.FinishedAt = &now
}

// AdvanceProgress обновляет прогресс stage.
// Прогресс монотонный: меньшие значения игнорируются.
func (s *Stage) AdvanceProgress(pct int) {
	if pct > 100 {
		pct = 100
	}
	if pct > s.Progress {
		s.Progress = pct
	}
}

// CanRetry проверяет, остались ли попытки.
func (s *Stage) CanRetry(maxAttempts int) bool {
	return s.Attempt < maxAttempts
}

// Duration возвращает продолжительность выполнения.
func (s *Stage) Duration() time.Duration {
	if s.StartedAt == nil || s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(*s.StartedAt)
}
