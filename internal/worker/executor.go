package worker

import (
	"context"
	"fmt"

	"github.com/clipforge/clipforge/internal/domain"
)

// Executor — интерфейс выполнения одного типа stage.
//
// Реализации живут в internal/stages: script, voice, video, composite,
// scene, clip, lipsync, stitch.
//
// Ошибки выполнения возвращаются как *domain.StageError — от их
// классификации (retryable/fatal) зависит, будет ли воркер повторять
// stage. Неклассифицированные ошибки считаются retryable INTERNAL.
type Executor interface {
	Execute(ctx context.Context, in *ExecutionInput) (map[string]any, error)
}

// ExecutionInput — вход executor'а.
type ExecutionInput struct {
	// Job — выполняемый job (read-only для executor'а).
	Job *domain.Job

	// Stage — текущий stage (read-only; прогресс идёт через Report).
	Stage *domain.Stage

	// Data — вход job плюс артефакты всех предыдущих stages.
	Data map[string]any

	// Report сообщает прогресс stage 0–100. Может вызываться часто;
	// воркер сам делает прогресс монотонным и публикует события.
	Report func(pct int)
}

// Registry — реестр executor'ов по типу stage.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry создаёт пустой реестр.
// Боевой набор executor'ов собирает stages.NewRegistry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register добавляет executor для типа stage.
func (r *Registry) Register(stageType string, executor Executor) {
	r.executors[stageType] = executor
}

// Get возвращает executor для типа stage.
func (r *Registry) Get(stageType string) (Executor, error) {
	executor, ok := r.executors[stageType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStageType, stageType)
	}
	return executor, nil
}
