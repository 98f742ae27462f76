package forecastlog

import (
	"context"
	"time"
)

// Entry is one forecast day as served to a caller
type Entry struct {
	Timestamp    time.Time `ch:"timestamp"`
	RequestID    string    `ch:"request_id"`
	ModelVersion string    `ch:"model_version"`

	RoomType string    `ch:"room_type"`
	Persons  uint16    `ch:"persons"`
	Date     time.Time `ch:"date"`

	Price               float64 `ch:"price"`
	Baseline            float64 `ch:"baseline"`
	ExpectedOccupancy   float64 `ch:"expected_occupancy"`
	HistoricalOccupancy float64 `ch:"historical_occupancy"`
	TotalRooms          uint32  `ch:"total_rooms"`
}

// Repository stores forecast entries; implementations may buffer
type Repository interface {
	Store(ctx context.Context, entry *Entry) error
}
