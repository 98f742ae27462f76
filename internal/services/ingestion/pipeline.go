package ingestion

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"optibooking/internal/domain/stay"
	"optibooking/internal/metrics"
	"optibooking/internal/ml/pricing"
	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
	"optibooking/pkg/tracing"
)

// lockName is the distributed lock shared by all replicas
const lockName = "ingestion"

// Forecaster is the part of the forecast service a cycle drives
type Forecaster interface {
	Ingest(ctx context.Context, records []stay.Record) (int, error)
	Train(ctx context.Context) (*pricing.Model, error)
}

// Locker serialises cycles across processes
type Locker interface {
	Acquire(ctx context.Context, name string) (func(context.Context) error, error)
}

// Notifier receives every job transition, in order, on the pipeline's
// delivery goroutine. A slow notifier delays later notifications, never jobs.
type Notifier interface {
	Notify(ctx context.Context, job Job)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, job Job)

// Notify calls f
func (f NotifierFunc) Notify(ctx context.Context, job Job) { f(ctx, job) }

// Upload is a raw file handed to the pipeline
type Upload struct {
	Filename string
	Format   Format
	Data     []byte
}

// Config for the pipeline
type Config struct {
	QueueSize   int
	HistorySize int
	// Locker is optional; without it only in-process serialisation applies
	Locker    Locker
	Notifiers []Notifier
}

// Pipeline runs upload and retrain jobs one at a time on a single goroutine
type Pipeline struct {
	forecaster Forecaster
	locker     Locker
	notifiers  []Notifier
	log        *logger.Logger

	queue      chan *Job
	processing atomic.Bool

	recordMu sync.Mutex
	history  *lru.Cache[uuid.UUID, Job]
	last     atomic.Pointer[Job]
	outbox   []transition // guarded by recordMu
	wake     chan struct{}
	runDone  chan struct{}

	// uploads holds the payload of queued upload jobs
	uploadsMu sync.Mutex
	uploads   map[uuid.UUID]Upload

	wg     sync.WaitGroup
	stopCh chan struct{}
	once   sync.Once
}

// transition is a recorded job snapshot awaiting delivery
type transition struct {
	ctx context.Context
	job Job
}

// NewPipeline creates a pipeline; call Start to begin consuming jobs
func NewPipeline(forecaster Forecaster, cfg Config, log *logger.Logger) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 256
	}
	history, _ := lru.New[uuid.UUID, Job](cfg.HistorySize)

	return &Pipeline{
		forecaster: forecaster,
		locker:     cfg.Locker,
		notifiers:  cfg.Notifiers,
		log:        log,
		queue:      make(chan *Job, cfg.QueueSize),
		history:    history,
		uploads:    make(map[uuid.UUID]Upload),
		wake:       make(chan struct{}, 1),
		runDone:    make(chan struct{}),
		stopCh:     make(chan struct{}),
	}
}

// AddNotifier registers a notifier; call before Start
func (p *Pipeline) AddNotifier(n Notifier) {
	p.notifiers = append(p.notifiers, n)
}

// Start launches the worker and notification goroutines
func (p *Pipeline) Start(ctx context.Context) {
	p.wg.Add(2)
	go p.run(ctx)
	go p.deliver()
	p.log.Infow("Ingestion pipeline started", "queue_size", cap(p.queue))
}

// Stop waits for the running job to finish and its transitions to be
// delivered. Queued jobs are dropped.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.once.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("Ingestion pipeline stopped")
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "ingestion pipeline stop")
	}
}

// Submit queues an upload and returns at once
func (p *Pipeline) Submit(ctx context.Context, up Upload) (Job, error) {
	if len(up.Data) == 0 {
		return Job{}, errors.NewValidationError("file", "must not be empty", up.Filename)
	}
	job := newJob(KindUpload, up.Filename, int64(len(up.Data)))

	p.uploadsMu.Lock()
	p.uploads[job.ID] = up
	p.uploadsMu.Unlock()

	queued, err := p.enqueue(ctx, job)
	if err != nil {
		p.uploadsMu.Lock()
		delete(p.uploads, job.ID)
		p.uploadsMu.Unlock()
		return Job{}, err
	}
	return queued, nil
}

// SubmitRetrain queues a training-only job
func (p *Pipeline) SubmitRetrain(ctx context.Context) (Job, error) {
	return p.enqueue(ctx, newJob(KindRetrain, "", 0))
}

// enqueue holds recordMu across the send so the queued snapshot is recorded
// before the worker can record the job as running.
func (p *Pipeline) enqueue(ctx context.Context, job *Job) (Job, error) {
	snapshot := *job

	p.recordMu.Lock()
	select {
	case p.queue <- job:
	default:
		p.recordMu.Unlock()
		metrics.RecordIngestion("rejected", 0, 0)
		return Job{}, errors.Wrapf(errors.ErrIngestionBusy, "%d jobs already queued", cap(p.queue))
	}
	p.recordLocked(ctx, snapshot)
	p.recordMu.Unlock()
	p.signal()

	p.log.Infow("Job queued", "job_id", snapshot.ID, "kind", snapshot.Kind, "file", snapshot.Filename, "size", humanize.Bytes(uint64(snapshot.Bytes)))
	return snapshot, nil
}

// IsProcessing reports whether a job is running
func (p *Pipeline) IsProcessing() bool {
	return p.processing.Load()
}

// QueueDepth is the number of jobs waiting behind the running one
func (p *Pipeline) QueueDepth() int {
	return len(p.queue)
}

// Job looks a job up in the bounded history
func (p *Pipeline) Job(id uuid.UUID) (Job, error) {
	job, ok := p.history.Get(id)
	if !ok {
		return Job{}, errors.Wrapf(errors.ErrNotFound, "job %s", id)
	}
	return job, nil
}

// LastJob returns the most recently updated job
func (p *Pipeline) LastJob() (Job, bool) {
	j := p.last.Load()
	if j == nil {
		return Job{}, false
	}
	return *j, true
}

func (p *Pipeline) run(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.runDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case job := <-p.queue:
			p.process(ctx, job)
		}
	}
}

// process runs one cycle. The processing flag is set before any work and
// cleared on every exit path.
func (p *Pipeline) process(ctx context.Context, job *Job) {
	p.processing.Store(true)
	defer p.processing.Store(false)

	ctx = errors.WithJobID(ctx, job.ID.String())
	ctx, span := tracing.StartSpan(ctx, "ingestion.job", tracing.AttrJobID.String(job.ID.String()))
	defer span.End()

	log := p.log.With("job_id", job.ID, "kind", job.Kind)

	job.Status = StatusRunning
	job.StartedAt = time.Now().UTC()
	p.record(ctx, *job)

	err := p.cycle(ctx, job)

	job.FinishedAt = time.Now().UTC()
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		tracing.RecordError(span, err)
		log.ErrorWithContext(ctx, err, map[string]string{"stage": "ingestion"})
		metrics.RecordIngestion(string(StatusFailed), 0, job.FinishedAt.Sub(job.StartedAt))
	} else {
		job.Status = StatusCompleted
		log.Infow("Job completed",
			"rows", humanize.Comma(int64(job.Rows)),
			"model_version", job.ModelVersion,
			"oob_rmse", job.OOBRMSE,
			"duration", job.FinishedAt.Sub(job.StartedAt),
		)
		metrics.RecordIngestion(string(StatusCompleted), job.Rows, job.FinishedAt.Sub(job.StartedAt))
	}

	// observers of the terminal status must already see the flag cleared
	p.processing.Store(false)
	p.record(ctx, *job)
}

func (p *Pipeline) cycle(ctx context.Context, job *Job) error {
	if p.locker != nil {
		release, err := p.locker.Acquire(ctx, lockName)
		if err != nil {
			return err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				p.log.Warnw("Failed to release ingestion lock", "job_id", job.ID, "error", err)
			}
		}()
	}

	if job.Kind == KindUpload {
		p.uploadsMu.Lock()
		up := p.uploads[job.ID]
		delete(p.uploads, job.ID)
		p.uploadsMu.Unlock()

		records, err := Parse(up.Format, up.Data)
		if err != nil {
			return err
		}
		n, err := p.forecaster.Ingest(ctx, records)
		if err != nil {
			return errors.Wrap(err, "store stays")
		}
		job.Rows = n
	}

	m, err := p.forecaster.Train(ctx)
	if err != nil {
		return err
	}
	job.ModelVersion = m.Version.String()
	job.Samples = m.Samples
	job.OOBRMSE = m.OOBRMSE
	return nil
}

// record stores the job snapshot and queues it for the notifiers
func (p *Pipeline) record(ctx context.Context, job Job) {
	p.recordMu.Lock()
	p.recordLocked(ctx, job)
	p.recordMu.Unlock()
	p.signal()
}

// recordLocked appends to the outbox, so delivery order is record order.
// Notifications outlive the request that caused them.
func (p *Pipeline) recordLocked(ctx context.Context, job Job) {
	p.history.Add(job.ID, job)
	p.last.Store(&job)
	if len(p.notifiers) > 0 {
		p.outbox = append(p.outbox, transition{ctx: context.WithoutCancel(ctx), job: job})
	}
}

func (p *Pipeline) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// deliver fans transitions out until the worker has exited, then drains the rest
func (p *Pipeline) deliver() {
	defer p.wg.Done()
	for {
		select {
		case <-p.wake:
			p.flush()
		case <-p.runDone:
			p.flush()
			return
		}
	}
}

func (p *Pipeline) flush() {
	for {
		p.recordMu.Lock()
		pending := p.outbox
		p.outbox = nil
		p.recordMu.Unlock()
		if len(pending) == 0 {
			return
		}

		for _, t := range pending {
			for _, n := range p.notifiers {
				n.Notify(t.ctx, t.job)
			}
		}
	}
}
