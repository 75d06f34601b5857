package stages

import (
	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/genclient"
	"github.com/clipforge/clipforge/internal/storage"
	"github.com/clipforge/clipforge/internal/worker"
)

// NewRegistry собирает боевой реестр executor'ов.
//
// Быстрые capabilities идут синхронно, рендеринг — через операции
// с polling'ом, финальный монтаж дополнительно переносит артефакт
// в постоянное хранилище.
func NewRegistry(client *genclient.Client, store storage.ArtifactStore) *worker.Registry {
	r := worker.NewRegistry()

	r.Register(domain.StageTypeScript, NewGenerateExecutor(client, domain.StageTypeScript))
	r.Register(domain.StageTypeVoice, NewGenerateExecutor(client, domain.StageTypeVoice))
	r.Register(domain.StageTypeScene, NewGenerateExecutor(client, domain.StageTypeScene))

	r.Register(domain.StageTypeVideo, NewOperationExecutor(client, domain.StageTypeVideo))
	r.Register(domain.StageTypeClip, NewOperationExecutor(client, domain.StageTypeClip))
	r.Register(domain.StageTypeLipsync, NewOperationExecutor(client, domain.StageTypeLipsync))

	r.Register(domain.StageTypeComposite, NewFinalizeExecutor(client, domain.StageTypeComposite, store))
	r.Register(domain.StageTypeStitch, NewFinalizeExecutor(client, domain.StageTypeStitch, store))

	return r
}
