package stay

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"optibooking/pkg/errors"
)

// DateLayout is the ISO-8601 calendar date format used by uploads and the API
const DateLayout = "2006-01-02"

// Record is one historical reservation. Records are never mutated after insert.
type Record struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	BeginOfStay time.Time       `db:"begin_of_stay" json:"begin_of_stay"`
	EndOfStay   time.Time       `db:"end_of_stay" json:"end_of_stay"`
	Persons     int             `db:"persons" json:"persons"`
	RoomType    string          `db:"room_type" json:"room_type"`
	TotalPrice  decimal.Decimal `db:"total_price" json:"total_price"`

	// Optional context supplied by some exports; occupancy is always derived
	// from overlapping stays, these are kept for reference only.
	OccupiedRooms *int `db:"occupied_rooms" json:"occupied_rooms,omitempty"`
	TotalRooms    *int `db:"total_rooms" json:"total_rooms,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Nights is the number of whole days between check-in and check-out, at least 1
func (r Record) Nights() int {
	n := DaysBetween(r.BeginOfStay, r.EndOfStay)
	if n < 1 {
		return 1
	}
	return n
}

// PerNightPrice spreads the stay price evenly over its nights
func (r Record) PerNightPrice() decimal.Decimal {
	return r.TotalPrice.Div(decimal.NewFromInt(int64(r.Nights())))
}

// Covers reports whether d falls inside [BeginOfStay, EndOfStay], both inclusive
func (r Record) Covers(d time.Time) bool {
	d = Date(d)
	return !d.Before(Date(r.BeginOfStay)) && !d.After(Date(r.EndOfStay))
}

// Validate checks the record invariants
func (r Record) Validate() error {
	if strings.TrimSpace(r.RoomType) == "" {
		return errors.NewValidationError("room_type", "must not be empty", r.RoomType)
	}
	if r.Persons <= 0 {
		return errors.NewValidationError("persons", "must be positive", r.Persons)
	}
	if r.TotalPrice.IsNegative() {
		return errors.NewValidationError("total_price", "must not be negative", r.TotalPrice.String())
	}
	if r.BeginOfStay.IsZero() || r.EndOfStay.IsZero() {
		return errors.NewValidationError("begin_of_stay", "dates are required", r.BeginOfStay)
	}
	if Date(r.EndOfStay).Before(Date(r.BeginOfStay)) {
		return errors.NewValidationError("end_of_stay", "must not precede begin_of_stay", r.EndOfStay.Format(DateLayout))
	}
	return nil
}

// Date truncates t to midnight UTC of its calendar day
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO calendar date into midnight UTC
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// EpochDay is the number of days since 1970-01-01
func EpochDay(t time.Time) int64 {
	return Date(t).Unix() / 86400
}

// DaysBetween returns the calendar-day distance from a to b
func DaysBetween(a, b time.Time) int {
	return int(EpochDay(b) - EpochDay(a))
}
