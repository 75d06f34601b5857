package domain

// JobStatus — статус выполнения job.
//
// Жизненный цикл:
//
//	PENDING → PROCESSING → COMPLETED
//	                     ↘ FAILED
//	PROCESSING → PENDING (requeue при graceful shutdown воркера)
type JobStatus string

const (
	// JobStatusPending — job в очереди, ожидает воркера.
	JobStatusPending JobStatus = "PENDING"

	// JobStatusProcessing — job захвачен воркером и выполняется.
	JobStatusProcessing JobStatus = "PROCESSING"

	// JobStatusCompleted — все stages успешно завершены.
	JobStatusCompleted JobStatus = "COMPLETED"

	// JobStatusFailed — job завершился с ошибкой (после всех retry).
	JobStatusFailed JobStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
// Терминальный статус выставляется ровно один раз.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// StageStatus — статус выполнения stage.
//
// Жизненный цикл:
//
//	PENDING → PROCESSING → COMPLETED
//	                     ↘ FAILED (retryable ошибка → обратно в PROCESSING)
type StageStatus string

const (
	// StageStatusPending — stage создан, но ещё не выполнялся.
	StageStatusPending StageStatus = "PENDING"

	// StageStatusProcessing — stage выполняется воркером.
	StageStatusProcessing StageStatus = "PROCESSING"

	// StageStatusCompleted — stage успешно завершён.
	StageStatusCompleted StageStatus = "COMPLETED"

	// StageStatusFailed — stage завершился с ошибкой.
	StageStatusFailed StageStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageStatusCompleted, StageStatusFailed:
		return true
	default:
		return false
	}
}
