package workers

import (
	"context"
	"sync"
	"time"

	"optibooking/internal/metrics"
	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
)

// Scheduler runs each registered worker on its own ticker
type Scheduler struct {
	workers []Worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	log     *logger.Logger
	started bool
}

// NewScheduler creates a new worker scheduler
func NewScheduler(log *logger.Logger) *Scheduler {
	return &Scheduler{
		log: log.With("component", "scheduler"),
	}
}

// RegisterWorker adds a worker to the scheduler
func (s *Scheduler) RegisterWorker(w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.log.Warnw("Cannot register worker after scheduler has started", "worker", w.Name())
		return
	}

	s.workers = append(s.workers, w)
	s.log.Infow("Worker registered", "worker", w.Name(), "interval", w.Interval(), "enabled", w.Enabled())
}

// Start begins running all enabled workers. The first run happens immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.Wrap(errors.ErrInternal, "scheduler already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)

	for _, worker := range s.workers {
		if !worker.Enabled() {
			s.log.Infow("Skipping disabled worker", "worker", worker.Name())
			continue
		}
		s.wg.Add(1)
		go s.runWorker(ctx, worker)
	}

	s.log.Infow("Worker scheduler started", "workers", len(s.workers))
	return nil
}

// Stop cancels all workers and waits for running iterations until ctx expires
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.Wrap(errors.ErrInternal, "scheduler not started")
	}
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		s.log.Info("All workers stopped gracefully")
	case <-ctx.Done():
		s.log.Warn("Worker shutdown timed out")
		err = errors.Wrap(errors.ErrTimeout, "worker shutdown")
	}

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	return err
}

func (s *Scheduler) runWorker(ctx context.Context, worker Worker) {
	defer s.wg.Done()

	ticker := time.NewTicker(worker.Interval())
	defer ticker.Stop()

	s.executeWorker(ctx, worker)

	for {
		select {
		case <-ctx.Done():
			s.log.Debugw("Worker stopping", "worker", worker.Name())
			return
		case <-ticker.C:
			s.executeWorker(ctx, worker)
		}
	}
}

// executeWorker runs one iteration; a panic is turned into an error
func (s *Scheduler) executeWorker(ctx context.Context, worker Worker) {
	start := time.Now()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Wrapf(errors.ErrInternal, "worker panicked: %v", r)
			}
		}()
		err = worker.Run(ctx)
	}()

	duration := time.Since(start)
	metrics.RecordWorkerExecution(worker.Name(), duration, err)
	if h, ok := worker.(healthRecorder); ok {
		h.recordRun(duration, err)
	}

	if err != nil && ctx.Err() == nil {
		s.log.Errorw("Worker execution failed", "worker", worker.Name(), "error", err, "duration", duration)
		return
	}
	s.log.Debugw("Worker execution completed", "worker", worker.Name(), "duration", duration)
}

// Health reports every worker that keeps health bookkeeping
func (s *Scheduler) Health() map[string]WorkerHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]WorkerHealth, len(s.workers))
	for _, w := range s.workers {
		if h, ok := w.(healthRecorder); ok {
			out[w.Name()] = h.Health()
		}
	}
	return out
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
