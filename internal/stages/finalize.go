package stages

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/genclient"
	"github.com/clipforge/clipforge/internal/storage"
	"github.com/clipforge/clipforge/internal/worker"
)

// FinalizeExecutor — финальный stage pipeline (composite, stitch).
//
// Выполняет долгую операцию монтажа, затем переносит готовый артефакт
// из временного хранилища gateway в постоянное: результат job должен
// оставаться доступным после того, как gateway своё почистит.
// Возвращает output_url — он становится OutputURL job'а.
type FinalizeExecutor struct {
	op    *OperationExecutor
	store storage.ArtifactStore
}

// NewFinalizeExecutor создаёт финальный executor.
func NewFinalizeExecutor(client *genclient.Client, capability string, store storage.ArtifactStore) *FinalizeExecutor {
	return &FinalizeExecutor{
		op:    NewOperationExecutor(client, capability),
		store: store,
	}
}

// Execute выполняет монтаж и загружает артефакт в хранилище.
func (e *FinalizeExecutor) Execute(ctx context.Context, in *worker.ExecutionInput) (map[string]any, error) {
	out, err := e.op.Execute(ctx, in)
	if err != nil {
		return nil, err
	}

	artifactURL, _ := out["artifact_url"].(string)
	if artifactURL == "" {
		return nil, domain.NewRetryableError(domain.ErrKindUpstream,
			"finalize operation returned no artifact_url")
	}

	body, size, contentType, err := e.op.client.Fetch(ctx, artifactURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	key := artifactKey(in, artifactURL)
	publicURL, err := e.store.Put(ctx, key, body, size, contentType)
	if err != nil {
		// Хранилище недоступно — transient, весь stage можно повторить
		return nil, domain.NewRetryableError(domain.ErrKindInternal,
			"upload artifact: %v", err)
	}

	out["output_url"] = publicURL
	return out, nil
}

// artifactKey строит ключ артефакта в хранилище.
// Расширение берётся из URL gateway, по умолчанию .mp4.
func artifactKey(in *worker.ExecutionInput, artifactURL string) string {
	ext := path.Ext(strings.SplitN(artifactURL, "?", 2)[0])
	if ext == "" {
		ext = ".mp4"
	}
	return fmt.Sprintf("jobs/%s/%s%s", in.Job.ID, in.Stage.Name, ext)
}

var _ worker.Executor = (*FinalizeExecutor)(nil)
