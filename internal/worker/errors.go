package worker

import "errors"

// Ошибки воркера.
var (
	// ErrShutdown — выполнение прервано остановкой воркера.
	// Job остаётся за воркером и возвращается в очередь при выходе из цикла.
	ErrShutdown = errors.New("worker is shutting down")

	// ErrUnknownStageType — в реестре нет executor'а для типа stage.
	ErrUnknownStageType = errors.New("unknown stage type")
)
