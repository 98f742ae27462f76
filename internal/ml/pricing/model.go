package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"optibooking/internal/domain/stay"
	"optibooking/internal/ml/forest"
	"optibooking/pkg/errors"
)

// Schema is the ordered feature layout shared by training and inference.
// Changing it invalidates persisted artifacts.
var Schema = []string{
	"begin_epoch_day",
	"end_epoch_day",
	"persons",
	"occupied_rooms",
	"total_rooms",
	"day_of_week",
	"month",
	"baseline_price",
}

// Instance is one stay described in model terms. BaselinePrice is the
// heuristic estimate for the whole stay, seeding the regression.
type Instance struct {
	Begin         time.Time
	End           time.Time
	Persons       int
	OccupiedRooms int
	TotalRooms    int
	BaselinePrice float64
}

// Vector encodes the instance in Schema order
func (i Instance) Vector() []float64 {
	return []float64{
		float64(stay.EpochDay(i.Begin)),
		float64(stay.EpochDay(i.End)),
		float64(i.Persons),
		float64(i.OccupiedRooms),
		float64(i.TotalRooms),
		float64(i.Begin.Weekday()),
		float64(i.Begin.Month()),
		i.BaselinePrice,
	}
}

// Sample is a training instance with its observed total price
type Sample struct {
	Instance
	Price float64
}

// Model is the trained price regressor plus its metadata
type Model struct {
	Version   uuid.UUID
	Schema    []string
	TrainedAt time.Time
	Samples   int
	OOBRMSE   float64

	forest *forest.Forest
}

// Train fits a new model on samples
func Train(ctx context.Context, samples []Sample, cfg forest.Config) (*Model, forest.Stats, error) {
	if len(samples) == 0 {
		return nil, forest.Stats{}, errors.Wrap(errors.ErrInvalidInput, "no stays to train on")
	}

	x := make([][]float64, len(samples))
	y := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = s.Vector()
		y[i] = s.Price
	}

	f, stats, err := forest.Train(ctx, x, y, cfg)
	if err != nil {
		return nil, stats, err
	}

	return &Model{
		Version:   uuid.New(),
		Schema:    append([]string(nil), Schema...),
		TrainedAt: time.Now().UTC(),
		Samples:   stats.Samples,
		OOBRMSE:   stats.OOBRMSE,
		forest:    f,
	}, stats, nil
}

// Predict returns the model price for one instance
func (m *Model) Predict(inst Instance) (float64, error) {
	if m == nil || m.forest == nil {
		return 0, errors.ErrModelUnavailable
	}
	return m.forest.Predict(inst.Vector())
}

// Trees returns the ensemble size
func (m *Model) Trees() int {
	if m == nil || m.forest == nil {
		return 0
	}
	return len(m.forest.Trees)
}
