package ingestion

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optibooking/internal/domain/stay"
	"optibooking/internal/ml/pricing"
	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
)

type fakeForecaster struct {
	mu       sync.Mutex
	ingested int
	trains   int

	active    atomic.Int32
	maxActive atomic.Int32

	gate     chan struct{}
	trainErr error
}

func (f *fakeForecaster) enter() func() {
	n := f.active.Add(1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	return func() { f.active.Add(-1) }
}

func (f *fakeForecaster) Ingest(_ context.Context, records []stay.Record) (int, error) {
	defer f.enter()()
	if f.gate != nil {
		<-f.gate
	}
	time.Sleep(2 * time.Millisecond)
	f.mu.Lock()
	f.ingested += len(records)
	f.mu.Unlock()
	return len(records), nil
}

func (f *fakeForecaster) Train(context.Context) (*pricing.Model, error) {
	defer f.enter()()
	f.mu.Lock()
	f.trains++
	samples := f.ingested
	f.mu.Unlock()
	if f.trainErr != nil {
		return nil, errors.Mark(errors.ErrTrainingFailure, f.trainErr)
	}
	return &pricing.Model{Version: uuid.New(), Samples: samples, OOBRMSE: 1.5}, nil
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	return nil, errors.ErrIngestionBusy
}

type recordingNotifier struct {
	mu   sync.Mutex
	seen map[uuid.UUID][]Status
}

func (r *recordingNotifier) Notify(_ context.Context, job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[uuid.UUID][]Status)
	}
	r.seen[job.ID] = append(r.seen[job.ID], job.Status)
}

func (r *recordingNotifier) statuses(id uuid.UUID) []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.seen[id]...)
}

func startPipeline(t *testing.T, f Forecaster, cfg Config) *Pipeline {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPipeline(f, cfg, logger.Nop())
	p.Start(ctx)
	t.Cleanup(func() {
		_ = p.Stop(context.Background())
		cancel()
	})
	return p
}

func waitDone(t *testing.T, p *Pipeline, id uuid.UUID) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		j, err := p.Job(id)
		if err != nil {
			return false
		}
		job = j
		return j.Done()
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

func csvUpload() Upload {
	return Upload{Filename: "stays.csv", Format: FormatCSV, Data: []byte(validCSV)}
}

func TestPipeline_UploadCompletes(t *testing.T) {
	f := &fakeForecaster{}
	n := &recordingNotifier{}
	p := startPipeline(t, f, Config{QueueSize: 2, Notifiers: []Notifier{n}})

	queued, err := p.Submit(context.Background(), csvUpload())
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, queued.Status)
	assert.Equal(t, KindUpload, queued.Kind)

	job := waitDone(t, p, queued.ID)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, 2, job.Rows)
	assert.NotEmpty(t, job.ModelVersion)
	assert.Empty(t, job.Error)
	assert.False(t, job.StartedAt.IsZero())

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]Status{StatusQueued, StatusRunning, StatusCompleted}, n.statuses(queued.ID))
	}, time.Second, time.Millisecond)

	last, ok := p.LastJob()
	require.True(t, ok)
	assert.Equal(t, queued.ID, last.ID)
	assert.Eventually(t, func() bool { return !p.IsProcessing() }, time.Second, time.Millisecond)
}

func TestPipeline_SlowNotifierDoesNotBlockSubmit(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	slow := NotifierFunc(func(context.Context, Job) {
		calls.Add(1)
		<-release
	})
	n := &recordingNotifier{}
	p := startPipeline(t, &fakeForecaster{}, Config{QueueSize: 4, Notifiers: []Notifier{slow, n}})
	ctx := context.Background()

	first, err := p.Submit(ctx, csvUpload())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, time.Millisecond)

	start := time.Now()
	second, err := p.Submit(ctx, csvUpload())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// jobs run to completion while their notifications wait
	waitDone(t, p, first.ID)
	waitDone(t, p, second.ID)

	close(release)
	want := []Status{StatusQueued, StatusRunning, StatusCompleted}
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, n.statuses(second.ID))
	}, time.Second, time.Millisecond)
	assert.Equal(t, want, n.statuses(first.ID))
}

func TestPipeline_ParseErrorLeavesStoreUntouched(t *testing.T) {
	f := &fakeForecaster{}
	p := startPipeline(t, f, Config{QueueSize: 1})

	queued, err := p.Submit(context.Background(), Upload{
		Filename: "bad.csv",
		Format:   FormatCSV,
		Data:     []byte("h\n1,2024-01-01,2024-01-02,2,Standard,100\n2,nope,2024-01-02,2,Standard,100\n"),
	})
	require.NoError(t, err)

	job := waitDone(t, p, queued.ID)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Contains(t, job.Error, "row 3")
	assert.Contains(t, job.Error, "begin_of_stay")

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Zero(t, f.ingested)
	assert.Zero(t, f.trains)
}

func TestPipeline_TrainingFailureMarksJobFailed(t *testing.T) {
	f := &fakeForecaster{trainErr: errors.New("boom")}
	p := startPipeline(t, f, Config{QueueSize: 1})

	queued, err := p.SubmitRetrain(context.Background())
	require.NoError(t, err)

	job := waitDone(t, p, queued.ID)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Contains(t, job.Error, "boom")
	assert.False(t, p.IsProcessing())
}

func TestPipeline_RejectsWhenQueueFull(t *testing.T) {
	f := &fakeForecaster{gate: make(chan struct{})}
	p := startPipeline(t, f, Config{QueueSize: 1})
	ctx := context.Background()

	first, err := p.Submit(ctx, csvUpload())
	require.NoError(t, err)
	require.Eventually(t, p.IsProcessing, time.Second, time.Millisecond)

	second, err := p.Submit(ctx, csvUpload())
	require.NoError(t, err)

	_, err = p.Submit(ctx, csvUpload())
	assert.ErrorIs(t, err, errors.ErrIngestionBusy)

	close(f.gate)
	assert.Equal(t, StatusCompleted, waitDone(t, p, first.ID).Status)
	assert.Equal(t, StatusCompleted, waitDone(t, p, second.ID).Status)
}

func TestPipeline_NeverRunsJobsConcurrently(t *testing.T) {
	f := &fakeForecaster{}
	p := startPipeline(t, f, Config{QueueSize: 32})
	ctx := context.Background()

	var ids []uuid.UUID
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := p.Submit(ctx, csvUpload())
			if assert.NoError(t, err) {
				mu.Lock()
				ids = append(ids, job.ID)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		waitDone(t, p, id)
	}

	assert.Equal(t, int32(1), f.maxActive.Load())
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 16, f.ingested)
	assert.Equal(t, 8, f.trains)
}

func TestPipeline_LockHeldElsewhere(t *testing.T) {
	f := &fakeForecaster{}
	p := startPipeline(t, f, Config{QueueSize: 1, Locker: busyLocker{}})

	queued, err := p.Submit(context.Background(), csvUpload())
	require.NoError(t, err)

	job := waitDone(t, p, queued.ID)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Contains(t, job.Error, errors.ErrIngestionBusy.Error())
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Zero(t, f.ingested)
}

func TestPipeline_SubmitEmptyFile(t *testing.T) {
	p := NewPipeline(&fakeForecaster{}, Config{}, logger.Nop())
	_, err := p.Submit(context.Background(), Upload{Filename: "empty.csv", Format: FormatCSV})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestPipeline_UnknownJob(t *testing.T) {
	p := NewPipeline(&fakeForecaster{}, Config{}, logger.Nop())
	_, err := p.Job(uuid.New())
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, ok := p.LastJob()
	assert.False(t, ok)
}
