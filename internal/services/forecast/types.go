package forecast

import (
	"fmt"
	"math"
	"strings"
	"time"

	"optibooking/internal/domain/stay"
	"optibooking/pkg/errors"
)

// RoomInventory maps a room type to its physical room count. Absent keys read as 0.
type RoomInventory map[string]int

// Request asks for one price per date in [Start, End]
type Request struct {
	Start    time.Time
	End      time.Time
	RoomType string
	Persons  int
	// ExpectedOccupancy is a fraction or a percentage; nil lets the service estimate it
	ExpectedOccupancy *float64
}

// DailyForecast is the result for one date
type DailyForecast struct {
	Date                time.Time `json:"date"`
	Price               float64   `json:"price"`
	Baseline            float64   `json:"baseline"`
	HistoricalOccupancy float64   `json:"historical_occupancy"`
	ExpectedOccupancy   float64   `json:"expected_occupancy"`
	// ModelVersion identifies the model that produced Price
	ModelVersion string `json:"model_version"`
}

// Prices extracts the model prices in date order
func Prices(forecasts []DailyForecast) []float64 {
	out := make([]float64, len(forecasts))
	for i, f := range forecasts {
		out[i] = f.Price
	}
	return out
}

// NormalizeOccupancy converts an occupancy rate to a fraction in [0,1].
// Values in (1, 100] are percentages.
func NormalizeOccupancy(v float64) (float64, error) {
	switch {
	case math.IsNaN(v) || v < 0 || v > 100:
		return 0, errors.NewValidationError("occupancy_rate", "must be a fraction in [0,1] or a percentage in [0,100]", v)
	case v > 1:
		return v / 100, nil
	}
	return v, nil
}

// normalize truncates dates and validates the request. The range checks run first.
func (r Request) normalize(maxDays int) (Request, error) {
	r.Start = stay.Date(r.Start)
	r.End = stay.Date(r.End)
	if r.Start.IsZero() || r.End.IsZero() || r.End.Before(r.Start) {
		return r, errors.Wrapf(errors.ErrInvalidRange, "%s to %s", r.Start.Format(stay.DateLayout), r.End.Format(stay.DateLayout))
	}
	if maxDays > 0 && r.Days() > maxDays {
		return r, errors.NewValidationError("end_date", fmt.Sprintf("range must not exceed %d days", maxDays), r.Days())
	}
	r.RoomType = strings.TrimSpace(r.RoomType)
	if r.RoomType == "" {
		return r, errors.NewValidationError("room_type", "must not be empty", r.RoomType)
	}
	if r.Persons <= 0 {
		return r, errors.NewValidationError("persons", "must be positive", r.Persons)
	}
	if r.ExpectedOccupancy != nil {
		v, err := NormalizeOccupancy(*r.ExpectedOccupancy)
		if err != nil {
			return r, err
		}
		r.ExpectedOccupancy = &v
	}
	return r, nil
}

// Days is the number of dates covered
func (r Request) Days() int {
	return stay.DaysBetween(r.Start, r.End) + 1
}

// cacheKey identifies the request within one state generation
func (r Request) cacheKey(generation uint64) string {
	occ := "auto"
	if r.ExpectedOccupancy != nil {
		occ = fmt.Sprintf("%.6f", *r.ExpectedOccupancy)
	}
	return fmt.Sprintf("%d|%s|%s|%s|%d|%s",
		generation, r.Start.Format(stay.DateLayout), r.End.Format(stay.DateLayout), r.RoomType, r.Persons, occ)
}
