package training

import (
	"context"
	"time"

	"optibooking/internal/ml/pricing"
	"optibooking/internal/services/ingestion"
	"optibooking/internal/workers"
	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
)

// Queue is the part of the ingestion pipeline the worker submits to
type Queue interface {
	SubmitRetrain(ctx context.Context) (ingestion.Job, error)
	IsProcessing() bool
}

// StayCounter reports the size of the stay store
type StayCounter interface {
	Count(ctx context.Context) (int, error)
}

// ModelState exposes the served model, nil before the first one
type ModelState interface {
	CurrentModel() *pricing.Model
}

// RetrainWorker queues a retrain when the served model was trained on fewer
// stays than the store holds, or when no model is served. Retraining goes
// through the ingestion queue so it never overlaps an upload cycle.
type RetrainWorker struct {
	*workers.BaseWorker
	queue Queue
	stays StayCounter
	model ModelState

	// lastCount is the store size at the last submit; a queued retrain is not resubmitted
	lastCount int
}

// NewRetrainWorker creates a retrain worker
func NewRetrainWorker(queue Queue, stays StayCounter, model ModelState, interval time.Duration, enabled bool, log *logger.Logger) *RetrainWorker {
	return &RetrainWorker{
		BaseWorker: workers.NewBaseWorker("model_retrain", interval, enabled, log),
		queue:      queue,
		stays:      stays,
		model:      model,
		lastCount:  -1,
	}
}

// Run submits one retrain job when needed
func (w *RetrainWorker) Run(ctx context.Context) error {
	if w.queue.IsProcessing() {
		w.Log().Debug("Ingestion cycle running, skipping retrain")
		return nil
	}

	count, err := w.stays.Count(ctx)
	if err != nil {
		return errors.Wrap(err, "count stays")
	}
	if count == 0 {
		return nil
	}
	if m := w.model.CurrentModel(); m != nil && (m.Samples == count || count == w.lastCount) {
		return nil
	}

	job, err := w.queue.SubmitRetrain(ctx)
	if errors.Is(err, errors.ErrIngestionBusy) {
		w.Log().Debugw("Ingestion queue full, retrain deferred", "error", err)
		return nil
	}
	if err != nil {
		return err
	}

	w.lastCount = count
	w.Log().Infow("Retrain queued", "job_id", job.ID, "stays", count)
	return nil
}
