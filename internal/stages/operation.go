package stages

import (
	"context"
	"time"

	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/genclient"
	"github.com/clipforge/clipforge/internal/worker"
)

// defaultPollInterval — период опроса долгой операции.
const defaultPollInterval = 5 * time.Second

// OperationExecutor выполняет долгую (многоминутную) генерацию
// через пару StartOperation/PollOperation.
//
// Прогресс операции с gateway транслируется в Report — именно эти
// stages дают плавный рост общего прогресса job.
type OperationExecutor struct {
	client       *genclient.Client
	capability   string
	pollInterval time.Duration
}

// NewOperationExecutor создаёт executor долгой генерации.
func NewOperationExecutor(client *genclient.Client, capability string) *OperationExecutor {
	return &OperationExecutor{
		client:       client,
		capability:   capability,
		pollInterval: defaultPollInterval,
	}
}

// Execute запускает операцию и опрашивает её до завершения.
func (e *OperationExecutor) Execute(ctx context.Context, in *worker.ExecutionInput) (map[string]any, error) {
	opID, err := e.client.StartOperation(ctx, genclient.Request{
		Capability: e.capability,
		Input:      requestInput(in),
	})
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		status, err := e.client.PollOperation(ctx, opID)
		if err != nil {
			return nil, err
		}

		if in.Report != nil {
			in.Report(status.Progress)
		}

		if status.Done {
			if status.Output == nil {
				return nil, domain.NewRetryableError(domain.ErrKindUpstream,
					"operation %s finished without output", opID)
			}
			return status.Output, nil
		}
	}
}

var _ worker.Executor = (*OperationExecutor)(nil)
