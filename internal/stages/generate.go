package stages

import (
	"context"

	"github.com/clipforge/clipforge/internal/genclient"
	"github.com/clipforge/clipforge/internal/worker"
)

// GenerateExecutor выполняет синхронную генерацию через gateway.
//
// Подходит для быстрых capabilities (секунды): script, voice, scene.
// Прогресс внутри stage не гранулируется — stage вносит вклад
// в общий прогресс job только фактом завершения.
type GenerateExecutor struct {
	client     *genclient.Client
	capability string
}

// NewGenerateExecutor создаёт executor синхронной генерации.
func NewGenerateExecutor(client *genclient.Client, capability string) *GenerateExecutor {
	return &GenerateExecutor{client: client, capability: capability}
}

// Execute выполняет один синхронный вызов gateway.
func (e *GenerateExecutor) Execute(ctx context.Context, in *worker.ExecutionInput) (map[string]any, error) {
	out, err := e.client.Generate(ctx, genclient.Request{
		Capability: e.capability,
		Input:      requestInput(in),
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// requestInput собирает вход запроса к gateway: накопленные данные
// pipeline плюс имя stage (для per-scene stages вроде "clip-3" gateway
// извлекает индекс сцены из имени).
func requestInput(in *worker.ExecutionInput) map[string]any {
	input := make(map[string]any, len(in.Data)+1)
	for k, v := range in.Data {
		input[k] = v
	}
	input["stage"] = in.Stage.Name
	return input
}

var _ worker.Executor = (*GenerateExecutor)(nil)
