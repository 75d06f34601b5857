package domain

import (
	"time"

	"github.com/google/uuid"
)

// Job — один запрос на генерацию, отправленный пользователем.
//
// Job создаётся API при enqueue в статусе PENDING и проходит через
// pipeline из нескольких stages (сценарий → озвучка → видео → монтаж).
// Содержимое Input воркер не интерпретирует — оно передаётся
// stage-executor'ам как есть.
type Job struct {
	// ID — уникальный идентификатор job.
	ID uuid.UUID `json:"id"`

	// Pipeline — имя pipeline, определяющее последовательность stages.
	// Например: "template" или "scenes".
	Pipeline string `json:"pipeline"`

	// Status — текущий статус job.
	Status JobStatus `json:"status"`

	// Input — параметры генерации (продукт, стиль, prompt и т.д.).
	// Opaque для воркера, передаётся executor'ам.
	Input map[string]any `json:"input,omitempty"`

	// OutputURL — ссылка на финальный артефакт после COMPLETED.
	OutputURL string `json:"output_url,omitempty"`

	// ErrorKind — классификация ошибки при FAILED (см. ErrorKind).
	ErrorKind string `json:"error_kind,omitempty"`

	// ErrorMessage — текст ошибки при FAILED.
	// Не содержит stack trace и credentials.
	ErrorMessage string `json:"error_message,omitempty"`

	// WorkerID — идентификатор воркера, который держит job.
	// Пустой, когда job не в PROCESSING.
	WorkerID string `json:"worker_id,omitempty"`

	// CreatedAt — время создания job.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	// Воркер обновляет его при каждой записи stage — это heartbeat,
	// по которому janitor находит зависшие jobs.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFinished возвращает true, если job завершён.
func (j *Job) IsFinished() bool {
	return j.Status.IsTerminal()
}

// MarkProcessing переводит job в статус PROCESSING и закрепляет за воркером.
func (j *Job) MarkProcessing(workerID string) {
	j.Status = JobStatusProcessing
	j.WorkerID = workerID
	j.ErrorKind = ""
	j.ErrorMessage = ""
}

// MarkCompleted переводит job в статус COMPLETED с ссылкой на результат.
func (j *Job) MarkCompleted(outputURL string) {
	j.Status = JobStatusCompleted
	j.OutputURL = outputURL
	j.WorkerID = ""
}

// MarkFailed переводит job в статус FAILED со структурированной ошибкой.
func (j *Job) MarkFailed(kind ErrorKind, message string) {
	j.Status = JobStatusFailed
	j.ErrorKind = string(kind)
	j.ErrorMessage = message
	j.WorkerID = ""
}

// MarkPending возвращает job в статус PENDING для повторной постановки
// в очередь (requeue при graceful shutdown или janitor'ом).
func (j *Job) MarkPending() {
	j.Status = JobStatusPending
	j.WorkerID = ""
}
