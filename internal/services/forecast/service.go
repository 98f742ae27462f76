package forecast

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"optibooking/internal/domain/forecastlog"
	"optibooking/internal/domain/stay"
	"optibooking/internal/metrics"
	"optibooking/internal/ml/forest"
	"optibooking/internal/ml/occupancy"
	"optibooking/internal/ml/pricing"
	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
	"optibooking/pkg/tracing"
)

// StayStore is the part of the stay service the forecaster needs
type StayStore interface {
	Insert(ctx context.Context, records []stay.Record) error
	Snapshot(ctx context.Context) ([]stay.Record, error)
	RoomTypes(ctx context.Context) ([]string, error)
}

// Options tunes training, request limits and the request cache
type Options struct {
	Forest    forest.Config
	CacheSize int
	CacheTTL  time.Duration
	// MaxDays caps the number of dates one request may cover; 0 means defaultMaxDays
	MaxDays int
}

const defaultMaxDays = 366

// Service owns the current model, the room inventory and the observed room
// types, and runs the train and predict lifecycle.
type Service struct {
	stays     StayStore
	artifacts pricing.ArtifactStore
	recorder  forecastlog.Repository
	forest    forest.Config
	log       *logger.Logger

	model   atomic.Pointer[pricing.Model]
	loadMu  sync.Mutex
	trainMu sync.Mutex

	inventory atomic.Pointer[RoomInventory]

	typesMu   sync.RWMutex
	roomTypes map[string]struct{}

	predicting atomic.Int32
	maxDays    int

	// generation moves whenever the model, the stays or the inventory change.
	// Cache keys carry it so results computed from older state are never served.
	generation atomic.Uint64
	cache      *expirable.LRU[string, []DailyForecast]
}

// NewService creates a forecast service. recorder may be nil.
func NewService(stays StayStore, artifacts pricing.ArtifactStore, recorder forecastlog.Repository, opts Options, log *logger.Logger) *Service {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = defaultMaxDays
	}
	s := &Service{
		stays:     stays,
		artifacts: artifacts,
		recorder:  recorder,
		forest:    opts.Forest,
		log:       log,
		roomTypes: make(map[string]struct{}),
		maxDays:   opts.MaxDays,
		cache:     expirable.NewLRU[string, []DailyForecast](opts.CacheSize, nil, opts.CacheTTL),
	}
	empty := RoomInventory{}
	s.inventory.Store(&empty)
	return s
}

// Warmup seeds the room-type set from the store and tries to load a persisted model
func (s *Service) Warmup(ctx context.Context) error {
	types, err := s.stays.RoomTypes(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load room types")
	}
	s.addRoomTypes(types...)

	if _, err := s.currentModel(ctx); err != nil && !errors.Is(err, errors.ErrModelUnavailable) {
		s.log.Warnw("Persisted model could not be loaded", "error", err)
	}
	return nil
}

// SetRoomInventory replaces the inventory wholesale. In-flight calls keep the map they already read.
func (s *Service) SetRoomInventory(inv map[string]int) error {
	next := make(RoomInventory, len(inv))
	for roomType, n := range inv {
		if n < 0 {
			return errors.NewValidationError("total_rooms", "must not be negative", roomType)
		}
		next[roomType] = n
	}
	s.inventory.Store(&next)
	s.invalidate()

	s.log.Infow("Room inventory updated", "room_types", len(next))
	return nil
}

// RoomInventory returns a copy of the current inventory
func (s *Service) RoomInventory() RoomInventory {
	return maps.Clone(*s.inventory.Load())
}

// Ingest stores a parsed batch and records its room types
func (s *Service) Ingest(ctx context.Context, records []stay.Record) (int, error) {
	if err := s.stays.Insert(ctx, records); err != nil {
		return 0, err
	}

	types := make([]string, 0, len(records))
	for _, r := range records {
		types = append(types, r.RoomType)
	}
	s.addRoomTypes(types...)
	s.invalidate()

	return len(records), nil
}

// ListRoomTypes returns the observed room types, sorted
func (s *Service) ListRoomTypes() []string {
	s.typesMu.RLock()
	defer s.typesMu.RUnlock()
	return slices.Sorted(maps.Keys(s.roomTypes))
}

func (s *Service) addRoomTypes(types ...string) {
	s.typesMu.Lock()
	defer s.typesMu.Unlock()
	for _, t := range types {
		s.roomTypes[t] = struct{}{}
	}
}

// Train builds a model from a full snapshot, persists it and installs it.
// On failure the current model keeps serving.
func (s *Service) Train(ctx context.Context) (*pricing.Model, error) {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "forecast.train")
	defer span.End()

	start := time.Now()
	m, err := s.train(ctx)
	if err != nil {
		err = errors.Mark(errors.ErrTrainingFailure, err)
		tracing.RecordError(span, err)
		metrics.RecordTraining(time.Since(start), 0, 0, err)
		return nil, err
	}
	metrics.RecordTraining(time.Since(start), m.Samples, m.OOBRMSE, nil)
	span.SetAttributes(tracing.AttrModelVersion.String(m.Version.String()), tracing.AttrSamples.Int(m.Samples))

	s.install(m)

	s.log.Infow("Model trained",
		"version", m.Version,
		"samples", m.Samples,
		"trees", m.Trees(),
		"oob_rmse", m.OOBRMSE,
		"duration", time.Since(start),
	)
	return m, nil
}

func (s *Service) train(ctx context.Context) (*pricing.Model, error) {
	records, err := s.stays.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "no stays to train on")
	}

	snap := NewSnapshot(records)
	samples := trainingSamples(records, snap, *s.inventory.Load())

	m, _, err := pricing.Train(ctx, samples, s.forest)
	if err != nil {
		return nil, err
	}
	if _, err := pricing.Persist(ctx, s.artifacts, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ReloadModel replaces the current model with the persisted artifact
func (s *Service) ReloadModel(ctx context.Context) (*pricing.Model, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	m, err := pricing.Load(ctx, s.artifacts)
	if err != nil {
		return nil, err
	}
	if cur := s.model.Load(); cur != nil && cur.Version == m.Version {
		return cur, nil
	}
	s.install(m)
	s.log.Infow("Model reloaded from artifact", "version", m.Version, "samples", m.Samples)
	return m, nil
}

// CurrentModel returns the installed model without loading, or nil
func (s *Service) CurrentModel() *pricing.Model {
	return s.model.Load()
}

// ModelTrainedAt reports when the serving model was trained
func (s *Service) ModelTrainedAt() (time.Time, bool) {
	m := s.model.Load()
	if m == nil {
		return time.Time{}, false
	}
	return m.TrainedAt, true
}

func (s *Service) install(m *pricing.Model) {
	s.model.Store(m)
	s.invalidate()
}

// invalidate runs after the state change it covers
func (s *Service) invalidate() {
	s.generation.Add(1)
	s.cache.Purge()
}

// currentModel returns the installed model, loading the artifact on first use.
// A model installed by Train while the load runs wins.
func (s *Service) currentModel(ctx context.Context) (*pricing.Model, error) {
	if m := s.model.Load(); m != nil {
		return m, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if m := s.model.Load(); m != nil {
		return m, nil
	}
	m, err := pricing.Load(ctx, s.artifacts)
	if err != nil {
		return nil, err
	}
	if !s.model.CompareAndSwap(nil, m) {
		return s.model.Load(), nil
	}
	s.log.Infow("Model loaded from artifact", "version", m.Version, "samples", m.Samples)
	return m, nil
}

// IsPredicting reports whether any prediction is in flight
func (s *Service) IsPredicting() bool {
	return s.predicting.Load() > 0
}

// Predict returns one forecast per date in [req.Start, req.End], ascending.
// The call reads one snapshot, one inventory and one model throughout.
func (s *Service) Predict(ctx context.Context, req Request) (out []DailyForecast, err error) {
	req, err = req.normalize(s.maxDays)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	cached := false
	defer func() {
		metrics.RecordPrediction(time.Since(start), len(out), cached, err)
	}()

	gen := s.generation.Load()
	key := req.cacheKey(gen)
	if hit, ok := s.cache.Get(key); ok {
		cached = true
		return slices.Clone(hit), nil
	}

	s.predicting.Add(1)
	metrics.PredictionsInFlight.Inc()
	defer func() {
		s.predicting.Add(-1)
		metrics.PredictionsInFlight.Dec()
	}()

	ctx, span := tracing.StartSpan(ctx, "forecast.predict",
		tracing.AttrRoomType.String(req.RoomType),
		tracing.AttrPersons.Int(req.Persons),
		tracing.AttrDays.Int(req.Days()),
	)
	defer span.End()

	out, err = s.predict(ctx, req)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	if s.generation.Load() == gen {
		s.cache.Add(key, slices.Clone(out))
	}
	return out, nil
}

func (s *Service) predict(ctx context.Context, req Request) ([]DailyForecast, error) {
	model, err := s.currentModel(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.stays.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read stays")
	}
	snap := NewSnapshot(records)
	inv := *s.inventory.Load()
	totalRooms := inv[req.RoomType]

	var estimator *occupancy.Estimator
	if req.ExpectedOccupancy == nil {
		estimator, err = occupancy.Fit(occupancyObservations(records, snap, inv, req.RoomType))
		if err != nil {
			s.log.Debugw("Occupancy estimator unavailable, using historical occupancy", "room_type", req.RoomType, "error", err)
		}
	}

	requestID := uuid.NewString()
	out := make([]DailyForecast, 0, req.Days())
	for d := req.Start; !d.After(req.End); d = d.AddDate(0, 0, 1) {
		sig := snap.SeasonalSignals(d, req.RoomType, req.Persons, totalRooms)

		expected := sig.HistoricalOccupancy
		switch {
		case req.ExpectedOccupancy != nil:
			expected = *req.ExpectedOccupancy
		case estimator != nil:
			expected = estimator.Predict(sig.WeightedPrice, req.Persons, d)
		}

		base := Adjust(sig, expected, d.Year(), snap.EarliestYear(d.Year()))

		price, err := model.Predict(pricing.Instance{
			Begin:         d,
			End:           d.AddDate(0, 0, 1),
			Persons:       req.Persons,
			OccupiedRooms: sig.OccupiedRooms,
			TotalRooms:    totalRooms,
			BaselinePrice: base.Price,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "predict %s", d.Format(stay.DateLayout))
		}

		f := DailyForecast{
			Date:                d,
			Price:               price,
			Baseline:            base.Price,
			HistoricalOccupancy: sig.HistoricalOccupancy,
			ExpectedOccupancy:   expected,
			ModelVersion:        model.Version.String(),
		}
		out = append(out, f)
		s.audit(ctx, requestID, model, req, totalRooms, f)
	}

	return out, nil
}

func (s *Service) audit(ctx context.Context, requestID string, m *pricing.Model, req Request, totalRooms int, f DailyForecast) {
	if s.recorder == nil {
		return
	}
	entry := &forecastlog.Entry{
		Timestamp:           time.Now().UTC(),
		RequestID:           requestID,
		ModelVersion:        m.Version.String(),
		RoomType:            req.RoomType,
		Persons:             uint16(req.Persons),
		Date:                f.Date,
		Price:               f.Price,
		Baseline:            f.Baseline,
		ExpectedOccupancy:   f.ExpectedOccupancy,
		HistoricalOccupancy: f.HistoricalOccupancy,
		TotalRooms:          uint32(totalRooms),
	}
	if err := s.recorder.Store(ctx, entry); err != nil {
		s.log.Warnw("Failed to record forecast", "request_id", requestID, "error", err)
	}
}
