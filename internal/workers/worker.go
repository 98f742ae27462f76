package workers

import (
	"context"
	"sync"
	"time"

	"optibooking/pkg/logger"
)

// Worker defines the interface for background workers
type Worker interface {
	// Name returns the unique identifier for this worker
	Name() string

	// Run executes one iteration and returns; the scheduler calls it every Interval()
	Run(ctx context.Context) error

	// Interval returns how often this worker should run
	Interval() time.Duration

	// Enabled returns whether this worker is active
	Enabled() bool
}

// WorkerHealth contains health information for a worker
type WorkerHealth struct {
	LastRun     time.Time     `json:"last_run"`
	LastError   string        `json:"last_error,omitempty"`
	RunCount    int64         `json:"run_count"`
	ErrorCount  int64         `json:"error_count"`
	AvgDuration time.Duration `json:"avg_duration"`
	Enabled     bool          `json:"enabled"`
}

// healthRecorder is implemented by BaseWorker; the scheduler feeds it after every run
type healthRecorder interface {
	recordRun(duration time.Duration, err error)
	Health() WorkerHealth
}

// BaseWorker provides name, interval and health bookkeeping for workers
type BaseWorker struct {
	name     string
	interval time.Duration
	enabled  bool
	log      *logger.Logger

	healthMu      sync.RWMutex
	lastRun       time.Time
	lastError     error
	runCount      int64
	errorCount    int64
	totalDuration time.Duration
}

// NewBaseWorker creates a new base worker
func NewBaseWorker(name string, interval time.Duration, enabled bool, log *logger.Logger) *BaseWorker {
	return &BaseWorker{
		name:     name,
		interval: interval,
		enabled:  enabled && interval > 0,
		log:      log.With("worker", name),
	}
}

// Name returns the worker name
func (w *BaseWorker) Name() string {
	return w.name
}

// Interval returns the run interval
func (w *BaseWorker) Interval() time.Duration {
	return w.interval
}

// Enabled returns whether the worker is enabled
func (w *BaseWorker) Enabled() bool {
	return w.enabled
}

// Log returns the worker's logger
func (w *BaseWorker) Log() *logger.Logger {
	return w.log
}

// Health returns health information for the worker
func (w *BaseWorker) Health() WorkerHealth {
	w.healthMu.RLock()
	defer w.healthMu.RUnlock()

	h := WorkerHealth{
		LastRun:    w.lastRun,
		RunCount:   w.runCount,
		ErrorCount: w.errorCount,
		Enabled:    w.enabled,
	}
	if w.runCount > 0 {
		h.AvgDuration = time.Duration(int64(w.totalDuration) / w.runCount)
	}
	if w.lastError != nil {
		h.LastError = w.lastError.Error()
	}
	return h
}

func (w *BaseWorker) recordRun(duration time.Duration, err error) {
	w.healthMu.Lock()
	defer w.healthMu.Unlock()

	w.lastRun = time.Now()
	w.runCount++
	w.totalDuration += duration
	w.lastError = err
	if err != nil {
		w.errorCount++
	}
}
