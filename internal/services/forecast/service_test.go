package forecast

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optibooking/internal/domain/forecastlog"
	"optibooking/internal/domain/stay"
	"optibooking/internal/ml/forest"
	"optibooking/internal/ml/pricing"
	"optibooking/internal/repository/memory"
	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
)

type memArtifacts struct {
	mu       sync.Mutex
	data     []byte
	failSave bool
}

func (m *memArtifacts) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("disk full")
	}
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *memArtifacts) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, errors.ErrNotFound
	}
	return m.data, nil
}

type countingStore struct {
	StayStore
	snapshots atomic.Int32
}

func (c *countingStore) Snapshot(ctx context.Context) ([]stay.Record, error) {
	c.snapshots.Add(1)
	return c.StayStore.Snapshot(ctx)
}

// gatedStore parks the next armed Snapshot call after it has read the records
type gatedStore struct {
	StayStore
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		StayStore: stay.NewService(memory.NewStayRepository()),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (g *gatedStore) Snapshot(ctx context.Context) ([]stay.Record, error) {
	records, err := g.StayStore.Snapshot(ctx)
	if g.armed.CompareAndSwap(true, false) {
		g.entered <- struct{}{}
		<-g.release
	}
	return records, err
}

type memRecorder struct {
	mu      sync.Mutex
	entries []*forecastlog.Entry
}

func (r *memRecorder) Store(_ context.Context, e *forecastlog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func testOptions() Options {
	return Options{
		Forest:    forest.Config{Trees: 10, MaxDepth: 6, MinLeafSize: 1, Seed: 1, Workers: 2},
		CacheSize: 16,
		CacheTTL:  time.Minute,
	}
}

func newTestService(t *testing.T, artifacts *memArtifacts) (*Service, *stay.Service) {
	t.Helper()
	stays := stay.NewService(memory.NewStayRepository())
	return NewService(stays, artifacts, nil, testOptions(), logger.Nop()), stays
}

func history(price float64) []stay.Record {
	var out []stay.Record
	for i := 0; i < 30; i++ {
		b := day(2023, 1, 1).AddDate(0, 0, i*7)
		out = append(out, rec("Standard", 2, b, b.AddDate(0, 0, 2), price))
		out = append(out, rec("Deluxe", 3, b, b.AddDate(0, 0, 1), price*2))
	}
	return out
}

func occ(v float64) *float64 { return &v }

func TestPredict_BeforeAnyModel(t *testing.T) {
	ctx := context.Background()
	svc, stays := newTestService(t, &memArtifacts{})
	_, err := svc.Ingest(ctx, history(100))
	require.NoError(t, err)
	require.NoError(t, svc.SetRoomInventory(map[string]int{"Standard": 10}))

	_, err = svc.Predict(ctx, Request{
		Start: day(2024, 5, 1), End: day(2024, 5, 3), RoomType: "Standard", Persons: 2, ExpectedOccupancy: occ(0.5),
	})
	assert.ErrorIs(t, err, errors.ErrModelUnavailable)

	n, err := stays.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60, n)
	assert.Equal(t, RoomInventory{"Standard": 10}, svc.RoomInventory())
	assert.False(t, svc.IsPredicting())
}

func TestPredict_InvalidRangeDoesNoWork(t *testing.T) {
	store := &countingStore{StayStore: stay.NewService(memory.NewStayRepository())}
	svc := NewService(store, &memArtifacts{}, nil, testOptions(), logger.Nop())

	_, err := svc.Predict(context.Background(), Request{
		Start: day(2024, 5, 3), End: day(2024, 5, 1), RoomType: "Standard", Persons: 2,
	})
	assert.ErrorIs(t, err, errors.ErrInvalidRange)
	assert.Equal(t, int32(0), store.snapshots.Load())
}

func TestPredict_RangeCapDoesNoWork(t *testing.T) {
	store := &countingStore{StayStore: stay.NewService(memory.NewStayRepository())}
	opts := testOptions()
	opts.MaxDays = 7
	svc := NewService(store, &memArtifacts{}, nil, opts, logger.Nop())
	ctx := context.Background()

	_, err := svc.Predict(ctx, Request{Start: day(2024, 5, 1), End: day(2024, 5, 8), RoomType: "Standard", Persons: 2})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Equal(t, int32(0), store.snapshots.Load())

	// seven dates pass validation and fail later for lack of a model
	_, err = svc.Predict(ctx, Request{Start: day(2024, 5, 1), End: day(2024, 5, 7), RoomType: "Standard", Persons: 2})
	assert.ErrorIs(t, err, errors.ErrModelUnavailable)
}

func TestPredict_InvalidInput(t *testing.T) {
	svc, _ := newTestService(t, &memArtifacts{})
	base := Request{Start: day(2024, 5, 1), End: day(2024, 5, 1), RoomType: "Standard", Persons: 2}

	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{name: "no room type", mutate: func(r *Request) { r.RoomType = "  " }},
		{name: "zero persons", mutate: func(r *Request) { r.Persons = 0 }},
		{name: "occupancy above 100", mutate: func(r *Request) { r.ExpectedOccupancy = occ(150) }},
		{name: "negative occupancy", mutate: func(r *Request) { r.ExpectedOccupancy = occ(-0.1) }},
		{name: "range above default cap", mutate: func(r *Request) { r.End = r.Start.AddDate(0, 0, defaultMaxDays) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			_, err := svc.Predict(context.Background(), req)
			assert.ErrorIs(t, err, errors.ErrInvalidInput)
		})
	}
}

func TestTrainThenPredict_CountAndOrder(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &memArtifacts{})
	_, err := svc.Ingest(ctx, history(100))
	require.NoError(t, err)

	m, err := svc.Train(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60, m.Samples)
	assert.Same(t, m, svc.CurrentModel())

	out, err := svc.Predict(ctx, Request{
		Start: day(2024, 2, 27), End: day(2024, 3, 2), RoomType: "Standard", Persons: 2, ExpectedOccupancy: occ(0.5),
	})
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i, f := range out {
		assert.True(t, f.Date.Equal(day(2024, 2, 27).AddDate(0, 0, i)), "index %d has %s", i, f.Date)
		assert.False(t, math.IsNaN(f.Price))
		assert.InDelta(t, 0.5, f.ExpectedOccupancy, 1e-9)
	}
	assert.Len(t, Prices(out), 5)
	assert.False(t, svc.IsPredicting())
}

func TestTrainThenPredict_UsesFreshModel(t *testing.T) {
	ctx := context.Background()
	artifacts := &memArtifacts{}
	svc, _ := newTestService(t, artifacts)
	req := Request{Start: day(2024, 6, 1), End: day(2024, 6, 1), RoomType: "Standard", Persons: 2, ExpectedOccupancy: occ(0.5)}

	_, err := svc.Ingest(ctx, history(100))
	require.NoError(t, err)
	first, err := svc.Train(ctx)
	require.NoError(t, err)
	before, err := svc.Predict(ctx, req)
	require.NoError(t, err)

	_, err = svc.Ingest(ctx, history(5000))
	require.NoError(t, err)
	second, err := svc.Train(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first.Version, second.Version)

	after, err := svc.Predict(ctx, req)
	require.NoError(t, err)
	assert.Greater(t, after[0].Price, before[0].Price)
	assert.Equal(t, second.Version, svc.CurrentModel().Version)
	assert.Equal(t, first.Version.String(), before[0].ModelVersion)
	assert.Equal(t, second.Version.String(), after[0].ModelVersion)
}

func TestPredict_InFlightDuringRetrainIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := newGatedStore()
	svc := NewService(store, &memArtifacts{}, nil, testOptions(), logger.Nop())
	req := Request{Start: day(2024, 6, 1), End: day(2024, 6, 1), RoomType: "Standard", Persons: 2, ExpectedOccupancy: occ(0.5)}

	_, err := svc.Ingest(ctx, history(100))
	require.NoError(t, err)
	first, err := svc.Train(ctx)
	require.NoError(t, err)

	type result struct {
		out []DailyForecast
		err error
	}
	done := make(chan result, 1)
	store.armed.Store(true)
	go func() {
		out, err := svc.Predict(ctx, req)
		done <- result{out, err}
	}()
	<-store.entered

	// the parked prediction already holds the old model and the old stays
	_, err = svc.Ingest(ctx, history(5000))
	require.NoError(t, err)
	second, err := svc.Train(ctx)
	require.NoError(t, err)
	close(store.release)

	stale := <-done
	require.NoError(t, stale.err)
	assert.Equal(t, first.Version.String(), stale.out[0].ModelVersion)

	fresh, err := svc.Predict(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, second.Version.String(), fresh[0].ModelVersion)
	assert.Greater(t, fresh[0].Price, stale.out[0].Price)
}

func TestPredict_PriceFollowsExpectedOccupancy(t *testing.T) {
	ctx := context.Background()
	stays := stay.NewService(memory.NewStayRepository())
	opts := testOptions()
	opts.Forest.MaxFeatures = len(pricing.Schema)
	svc := NewService(stays, &memArtifacts{}, nil, opts, logger.Nop())
	require.NoError(t, svc.SetRoomInventory(map[string]int{"Standard": 10}))

	// one stay a night, prices on a 20-day saw tooth between 50 and 250
	var records []stay.Record
	for i := 0; i < 200; i++ {
		b := day(2023, 1, 1).AddDate(0, 0, i)
		price := 50 + 20*math.Abs(float64(i%20-10))
		records = append(records, rec("Standard", 2, b, b.AddDate(0, 0, 1), price))
	}
	_, err := svc.Ingest(ctx, records)
	require.NoError(t, err)
	_, err = svc.Train(ctx)
	require.NoError(t, err)

	predict := func(rate float64) DailyForecast {
		out, err := svc.Predict(ctx, Request{
			Start: day(2024, 1, 8), End: day(2024, 1, 8), RoomType: "Standard", Persons: 2, ExpectedOccupancy: occ(rate),
		})
		require.NoError(t, err)
		require.Len(t, out, 1)
		return out[0]
	}

	quiet := predict(0.01)
	busy := predict(1.0)
	assert.Greater(t, busy.Baseline, quiet.Baseline)
	assert.Greater(t, busy.Price, quiet.Price)
}

func TestPredict_LazyLoadsPersistedModel(t *testing.T) {
	ctx := context.Background()
	artifacts := &memArtifacts{}
	trainer, _ := newTestService(t, artifacts)
	_, err := trainer.Ingest(ctx, history(100))
	require.NoError(t, err)
	trained, err := trainer.Train(ctx)
	require.NoError(t, err)

	reader, _ := newTestService(t, artifacts)
	assert.Nil(t, reader.CurrentModel())

	_, err = reader.Predict(ctx, Request{Start: day(2024, 1, 1), End: day(2024, 1, 2), RoomType: "Standard", Persons: 2, ExpectedOccupancy: occ(0.3)})
	require.NoError(t, err)
	require.NotNil(t, reader.CurrentModel())
	assert.Equal(t, trained.Version, reader.CurrentModel().Version)
}

func TestTrain_FailureKeepsCurrentModel(t *testing.T) {
	ctx := context.Background()
	artifacts := &memArtifacts{}
	svc, _ := newTestService(t, artifacts)
	_, err := svc.Ingest(ctx, history(100))
	require.NoError(t, err)
	good, err := svc.Train(ctx)
	require.NoError(t, err)

	artifacts.failSave = true
	_, err = svc.Train(ctx)
	assert.ErrorIs(t, err, errors.ErrTrainingFailure)
	assert.Same(t, good, svc.CurrentModel())
}

func TestTrain_EmptyStore(t *testing.T) {
	svc, _ := newTestService(t, &memArtifacts{})
	_, err := svc.Train(context.Background())
	assert.ErrorIs(t, err, errors.ErrTrainingFailure)
	assert.Nil(t, svc.CurrentModel())
}

func TestIngest_Concurrent(t *testing.T) {
	ctx := context.Background()
	svc, stays := newTestService(t, &memArtifacts{})

	var wg sync.WaitGroup
	want := 0
	for i := 1; i <= 12; i++ {
		want += i
		batch := make([]stay.Record, i)
		for j := range batch {
			batch[j] = rec("Room", 1, day(2024, 1, j+1), day(2024, 1, j+2), 80)
		}
		if i%3 == 0 {
			batch[0].RoomType = "Suite"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Ingest(ctx, batch)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := stays.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, n)
	assert.Equal(t, []string{"Room", "Suite"}, svc.ListRoomTypes())
}

func TestIngest_InvalidBatchRejected(t *testing.T) {
	ctx := context.Background()
	svc, stays := newTestService(t, &memArtifacts{})

	bad := []stay.Record{rec("A", 2, day(2024, 1, 1), day(2024, 1, 2), 10), rec("B", 0, day(2024, 1, 1), day(2024, 1, 2), 10)}
	_, err := svc.Ingest(ctx, bad)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	n, err := stays.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, svc.ListRoomTypes())
}

func TestPredict_ZeroInventory(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &memArtifacts{})
	_, err := svc.Ingest(ctx, history(100))
	require.NoError(t, err)
	_, err = svc.Train(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.SetRoomInventory(map[string]int{"Standard": 0}))

	out, err := svc.Predict(ctx, Request{Start: day(2023, 3, 1), End: day(2023, 3, 10), RoomType: "Standard", Persons: 2, ExpectedOccupancy: occ(0.9)})
	require.NoError(t, err)
	require.Len(t, out, 10)
	for _, f := range out {
		assert.False(t, math.IsNaN(f.Baseline) || math.IsInf(f.Baseline, 0))
		assert.False(t, math.IsNaN(f.HistoricalOccupancy) || math.IsInf(f.HistoricalOccupancy, 0))
	}
}

func TestSetRoomInventory_RejectsNegative(t *testing.T) {
	svc, _ := newTestService(t, &memArtifacts{})
	require.NoError(t, svc.SetRoomInventory(map[string]int{"A": 3}))

	err := svc.SetRoomInventory(map[string]int{"A": 5, "B": -1})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Equal(t, RoomInventory{"A": 3}, svc.RoomInventory())
}

func TestRoomInventory_ReturnsCopy(t *testing.T) {
	svc, _ := newTestService(t, &memArtifacts{})
	require.NoError(t, svc.SetRoomInventory(map[string]int{"A": 3}))

	inv := svc.RoomInventory()
	inv["A"] = 99

	assert.Equal(t, 3, svc.RoomInventory()["A"])
}

func TestPredict_PercentageOccupancyAndAudit(t *testing.T) {
	ctx := context.Background()
	artifacts := &memArtifacts{}
	stays := stay.NewService(memory.NewStayRepository())
	recorder := &memRecorder{}
	svc := NewService(stays, artifacts, recorder, testOptions(), logger.Nop())

	_, err := svc.Ingest(ctx, history(100))
	require.NoError(t, err)
	m, err := svc.Train(ctx)
	require.NoError(t, err)

	out, err := svc.Predict(ctx, Request{Start: day(2024, 4, 1), End: day(2024, 4, 3), RoomType: "Deluxe", Persons: 3, ExpectedOccupancy: occ(75)})
	require.NoError(t, err)
	for _, f := range out {
		assert.InDelta(t, 0.75, f.ExpectedOccupancy, 1e-9)
	}

	require.Len(t, recorder.entries, 3)
	assert.Equal(t, m.Version.String(), recorder.entries[0].ModelVersion)
	assert.Equal(t, recorder.entries[0].RequestID, recorder.entries[2].RequestID)
	assert.Equal(t, "Deluxe", recorder.entries[1].RoomType)
}

func TestPredict_CachedUntilIngest(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{StayStore: stay.NewService(memory.NewStayRepository())}
	svc := NewService(store, &memArtifacts{}, nil, testOptions(), logger.Nop())
	_, err := svc.Ingest(ctx, history(100))
	require.NoError(t, err)
	_, err = svc.Train(ctx)
	require.NoError(t, err)

	req := Request{Start: day(2024, 4, 1), End: day(2024, 4, 2), RoomType: "Standard", Persons: 2, ExpectedOccupancy: occ(0.4)}
	first, err := svc.Predict(ctx, req)
	require.NoError(t, err)
	before := store.snapshots.Load()

	second, err := svc.Predict(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, before, store.snapshots.Load())

	_, err = svc.Ingest(ctx, history(100)[:1])
	require.NoError(t, err)
	_, err = svc.Predict(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, before+1, store.snapshots.Load())
}

func TestPredict_EstimatesOccupancyWhenOmitted(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &memArtifacts{})
	require.NoError(t, svc.SetRoomInventory(map[string]int{"Standard": 4}))

	var records []stay.Record
	for i := 0; i < 120; i++ {
		b := day(2023, 1, 1).AddDate(0, 0, i*3)
		records = append(records, rec("Standard", 1+i%3, b, b.AddDate(0, 0, 1+i%4), 80+float64(i%9)*15))
	}
	_, err := svc.Ingest(ctx, records)
	require.NoError(t, err)
	_, err = svc.Train(ctx)
	require.NoError(t, err)

	out, err := svc.Predict(ctx, Request{Start: day(2024, 7, 1), End: day(2024, 7, 7), RoomType: "Standard", Persons: 2})
	require.NoError(t, err)
	require.Len(t, out, 7)
	for _, f := range out {
		assert.GreaterOrEqual(t, f.ExpectedOccupancy, 0.0)
		assert.LessOrEqual(t, f.ExpectedOccupancy, 1.0)
	}
}

func TestReloadModel(t *testing.T) {
	ctx := context.Background()
	artifacts := &memArtifacts{}
	a, _ := newTestService(t, artifacts)
	b, _ := newTestService(t, artifacts)

	_, err := b.ReloadModel(ctx)
	assert.ErrorIs(t, err, errors.ErrModelUnavailable)

	_, err = a.Ingest(ctx, history(100))
	require.NoError(t, err)
	m, err := a.Train(ctx)
	require.NoError(t, err)

	got, err := b.ReloadModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, m.Version, got.Version)

	again, err := b.ReloadModel(ctx)
	require.NoError(t, err)
	assert.Same(t, got, again)
}

func TestNormalizeOccupancy(t *testing.T) {
	tests := []struct {
		in      float64
		want    float64
		wantErr bool
	}{
		{in: 0, want: 0},
		{in: 0.42, want: 0.42},
		{in: 1, want: 1},
		{in: 75, want: 0.75},
		{in: 100, want: 1},
		{in: 100.5, wantErr: true},
		{in: -0.01, wantErr: true},
		{in: math.NaN(), wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeOccupancy(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, errors.ErrInvalidInput, "input %v", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-12)
	}
}
