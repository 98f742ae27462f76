package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"optibooking/internal/workers"
	"optibooking/pkg/logger"
)

// Checker is a backend that can be probed. Postgres, Redis and ClickHouse clients satisfy it.
type Checker interface {
	Health(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker
type CheckerFunc func(ctx context.Context) error

// Health calls f
func (f CheckerFunc) Health(ctx context.Context) error { return f(ctx) }

// ModelInfo reports the model being served
type ModelInfo interface {
	ModelTrainedAt() (time.Time, bool)
}

// WorkerReporter exposes background worker state
type WorkerReporter interface {
	Health() map[string]workers.WorkerHealth
}

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	checks      map[string]Checker
	model       ModelInfo
	workers     WorkerReporter
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a new health check handler. model and workers may be nil.
func New(log *logger.Logger, serviceName, version string, model ModelInfo, workers WorkerReporter) *Handler {
	return &Handler{
		log:         log,
		checks:      make(map[string]Checker),
		model:       model,
		workers:     workers,
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// Register adds a named dependency check; call before serving
func (h *Handler) Register(name string, c Checker) {
	h.checks[name] = c
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                          `json:"status"` // "healthy", "degraded", "unhealthy"
	Service   string                          `json:"service"`
	Version   string                          `json:"version"`
	Uptime    string                          `json:"uptime"`
	Timestamp string                          `json:"timestamp"`
	Checks    map[string]ComponentHealth      `json:"checks"`
	Model     *ModelStatus                    `json:"model,omitempty"`
	Workers   map[string]workers.WorkerHealth `json:"workers,omitempty"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time"`
	Error        string `json:"error,omitempty"`
}

// ModelStatus describes the serving model
type ModelStatus struct {
	Loaded    bool   `json:"loaded"`
	TrainedAt string `json:"trained_at,omitempty"`
	Age       string `json:"age,omitempty"`
}

// HandleLiveness answers as long as the process serves HTTP
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

// HandleReadiness returns 503 while any registered dependency is down
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := h.runChecks(ctx)
	for name, c := range checks {
		if c.Status != "healthy" {
			h.log.Warnw("Readiness check failed", "component", name, "error", c.Error)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "checks": checks})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
}

// HandleHealth reports every component plus model and worker state.
// A missing model degrades the service; a failed dependency makes it unhealthy.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    h.runChecks(ctx),
	}

	for _, c := range status.Checks {
		if c.Status != "healthy" {
			status.Status = "unhealthy"
		}
	}

	if h.model != nil {
		ms := &ModelStatus{}
		if trainedAt, ok := h.model.ModelTrainedAt(); ok {
			ms.Loaded = true
			ms.TrainedAt = trainedAt.UTC().Format(time.RFC3339)
			ms.Age = humanize.Time(trainedAt)
		} else if status.Status == "healthy" {
			status.Status = "degraded"
		}
		status.Model = ms
	}

	if h.workers != nil {
		status.Workers = h.workers.Health()
	}

	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// runChecks probes every dependency concurrently
func (h *Handler) runChecks(ctx context.Context) map[string]ComponentHealth {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]ComponentHealth, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			start := time.Now()
			err := c.Health(ctx)
			res := ComponentHealth{Status: "healthy", ResponseTime: time.Since(start).Round(time.Microsecond).String()}
			if err != nil {
				res.Status = "unhealthy"
				res.Error = err.Error()
			}
			results[i] = res
		}(i, h.checks[name])
	}
	wg.Wait()

	out := make(map[string]ComponentHealth, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
