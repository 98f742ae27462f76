package bootstrap

import (
	"optibooking/internal/adapters/config"
	"optibooking/internal/workers"
	"optibooking/internal/workers/training"
	"optibooking/pkg/logger"
)

// provideWorkers initializes all background workers
func provideWorkers(cfg *config.Config, svc *Services, log *logger.Logger) *workers.Scheduler {
	scheduler := workers.NewScheduler(log.With("component", "workers"))

	// Retrain: refreshes the model when stays changed outside the upload path
	scheduler.RegisterWorker(training.NewRetrainWorker(
		svc.Pipeline,
		svc.Stays,
		svc.Forecast,
		cfg.Workers.RetrainInterval,
		cfg.Workers.RetrainEnabled,
		log,
	))

	// Model sync: polls the artifact store for replicas running without Kafka
	scheduler.RegisterWorker(training.NewModelSyncWorker(
		svc.Forecast,
		cfg.Workers.ModelSyncInterval,
		cfg.Workers.ModelSyncEnabled,
		log,
	))

	log.Infow("Workers initialized",
		"retrain_enabled", cfg.Workers.RetrainEnabled,
		"retrain_interval", cfg.Workers.RetrainInterval,
		"model_sync_enabled", cfg.Workers.ModelSyncEnabled,
	)
	return scheduler
}
