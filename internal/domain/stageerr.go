package domain

import (
	"errors"
	"fmt"
)

// ErrorKind — классификация ошибки генерации.
type ErrorKind string

const (
	// ErrKindTimeout — таймаут внешнего сервиса генерации.
	ErrKindTimeout ErrorKind = "TIMEOUT"

	// ErrKindNetwork — сетевая ошибка.
	ErrKindNetwork ErrorKind = "NETWORK"

	// ErrKindRateLimited — внешний сервис ограничил частоту запросов.
	ErrKindRateLimited ErrorKind = "RATE_LIMITED"

	// ErrKindUpstream — ошибка на стороне внешнего сервиса (5xx).
	ErrKindUpstream ErrorKind = "UPSTREAM"

	// ErrKindInvalidInput — некорректные входные данные job.
	ErrKindInvalidInput ErrorKind = "INVALID_INPUT"

	// ErrKindUnsupported — неподдерживаемый формат или параметр.
	ErrKindUnsupported ErrorKind = "UNSUPPORTED"

	// ErrKindTooLarge — payload превышает лимит сервиса.
	ErrKindTooLarge ErrorKind = "TOO_LARGE"

	// ErrKindRejected — сервис окончательно отклонил запрос
	// (например, нарушение content policy).
	ErrKindRejected ErrorKind = "REJECTED"

	// ErrKindInternal — внутренняя ошибка воркера.
	ErrKindInternal ErrorKind = "INTERNAL"
)

// StageError — структурированная ошибка stage-executor'а.
//
// Retryable определяет поведение воркера: retryable ошибки повторяются
// с exponential backoff, fatal немедленно завершают job.
type StageError struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
}

// Error реализует интерфейс error.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewRetryableError создаёт retryable ошибку.
func NewRetryableError(kind ErrorKind, format string, args ...any) *StageError {
	return &StageError{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: true,
	}
}

// NewFatalError создаёт fatal (не-retryable) ошибку.
func NewFatalError(kind ErrorKind, format string, args ...any) *StageError {
	return &StageError{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: false,
	}
}

// AsStageError извлекает *StageError из цепочки ошибок.
// Для неклассифицированных ошибок возвращает retryable INTERNAL:
// неизвестная ошибка считается transient, чтобы не терять работу
// из-за временного сбоя.
func AsStageError(err error) *StageError {
	var serr *StageError
	if errors.As(err, &serr) {
		return serr
	}
	return &StageError{
		Kind:      ErrKindInternal,
		Message:   err.Error(),
		Retryable: true,
	}
}
