package training

import (
	"context"
	"time"

	"optibooking/internal/ml/pricing"
	"optibooking/internal/workers"
	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
)

// ModelReloader swaps in the persisted artifact
type ModelReloader interface {
	ReloadModel(ctx context.Context) (*pricing.Model, error)
}

// ModelSyncWorker polls the shared artifact store so replicas pick up models
// trained elsewhere when no event bus is configured.
type ModelSyncWorker struct {
	*workers.BaseWorker
	reloader ModelReloader
}

// NewModelSyncWorker creates a model sync worker
func NewModelSyncWorker(reloader ModelReloader, interval time.Duration, enabled bool, log *logger.Logger) *ModelSyncWorker {
	return &ModelSyncWorker{
		BaseWorker: workers.NewBaseWorker("model_sync", interval, enabled, log),
		reloader:   reloader,
	}
}

// Run reloads the artifact; a missing artifact is not an error
func (w *ModelSyncWorker) Run(ctx context.Context) error {
	m, err := w.reloader.ReloadModel(ctx)
	if errors.Is(err, errors.ErrModelUnavailable) {
		return nil
	}
	if err != nil {
		return err
	}
	w.Log().Debugw("Model in sync", "version", m.Version)
	return nil
}
