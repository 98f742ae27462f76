package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "optibooking/internal/adapters/clickhouse"
	"optibooking/internal/adapters/kafka"
	pgclient "optibooking/internal/adapters/postgres"
	redisclient "optibooking/internal/adapters/redis"
	"optibooking/internal/api"
	"optibooking/internal/api/stream"
	chrepo "optibooking/internal/repository/clickhouse"
	"optibooking/internal/services/ingestion"
	"optibooking/internal/workers"
	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
	"optibooking/pkg/tracing"
)

// Lifecycle manages graceful startup and shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		// a running training job is allowed to finish
		shutdownTimeout: 150 * time.Second,
	}
}

// Components lists what Shutdown tears down. Nil entries are skipped.
type Components struct {
	HTTPServer        *api.Server
	Stream            *stream.Hub
	WorkerScheduler   *workers.Scheduler
	Pipeline          *ingestion.Pipeline
	ModelEventsReader *kafka.Consumer
	KafkaProducer     *kafka.Producer
	ForecastLog       *chrepo.ForecastLogRepository
	Tracing           *tracing.Provider
	PG                *pgclient.Client
	CH                *chclient.Client
	Redis             *redisclient.Client
	ErrorTracker      errors.Tracker
}

// Shutdown performs coordinated cleanup of all components in the correct order:
// 1. No new requests accepted
// 2. Workers stop submitting jobs
// 3. The running ingestion job finishes and publishes its events
// 4. Kafka consumer unblocks before waiting for goroutines
// 5. Producer closes after the pipeline
// 6. Forecast log flushes its last batch
// 7. Traces, errors and logs flushed
// 8. Database connections last (other components may need them)
func (l *Lifecycle) Shutdown(wg *sync.WaitGroup, c Components, log *logger.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	log.Info("[1/9] Stopping HTTP server...")
	if c.Stream != nil {
		c.Stream.Close()
	}
	if c.HTTPServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := c.HTTPServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		}
		httpCancel()
	}

	log.Info("[2/9] Stopping background workers...")
	if c.WorkerScheduler != nil {
		wCtx, wCancel := context.WithTimeout(shutdownCtx, 30*time.Second)
		if err := c.WorkerScheduler.Stop(wCtx); err != nil {
			log.Errorw("Workers shutdown failed", "error", err)
		}
		wCancel()
	}

	log.Info("[3/9] Waiting for the ingestion pipeline...")
	if c.Pipeline != nil {
		if err := c.Pipeline.Stop(shutdownCtx); err != nil {
			log.Errorw("Ingestion pipeline shutdown failed", "error", err)
		}
	}

	// Closing the reader unblocks ReadMessage before the goroutine wait
	log.Info("[4/9] Closing Kafka consumer...")
	if c.ModelEventsReader != nil {
		if err := c.ModelEventsReader.Close(); err != nil {
			log.Errorw("Kafka consumer close failed", "error", err)
		}
	}
	l.waitForGoroutines(wg, 5*time.Second, log)

	log.Info("[5/9] Closing Kafka producer...")
	if c.KafkaProducer != nil {
		if err := c.KafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		}
	}

	log.Info("[6/9] Flushing forecast log...")
	if c.ForecastLog != nil {
		flCtx, flCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		if err := c.ForecastLog.Stop(flCtx); err != nil {
			log.Errorw("Forecast log flush failed", "error", err)
		}
		flCancel()
	}

	log.Info("[7/9] Flushing traces and errors...")
	if err := c.Tracing.Shutdown(shutdownCtx); err != nil {
		log.Warnw("Tracing shutdown failed", "error", err)
	}
	l.flushErrorTracker(shutdownCtx, c.ErrorTracker, log)

	log.Info("[8/9] Syncing logs...")
	_ = logger.Sync()

	log.Info("[9/9] Closing database connections...")
	l.closeDatabases(c.PG, c.CH, c.Redis, log)

	log.Info("Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warnw("Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	}
}

// closeDatabases closes all database connections
func (l *Lifecycle) closeDatabases(
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	log *logger.Logger,
) {
	var dbErrors []error

	if pgClient != nil {
		if err := pgClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "postgres"))
		}
	}

	if chClient != nil {
		if err := chClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "clickhouse"))
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "redis"))
		}
	}

	if len(dbErrors) > 0 {
		log.Errorw("Database close errors", "errors", errors.Join(dbErrors...))
	}
}
