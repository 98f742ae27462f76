// Package seeds generates synthetic stay history for demos and load tests.
package seeds

import (
	"encoding/binary"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"optibooking/internal/domain/stay"
)

// PriceRange is a nightly base price band in the first generated year
type PriceRange struct {
	Min, Max float64
}

// Config controls the generated history
type Config struct {
	From  time.Time
	To    time.Time
	Stays int
	Seed  uint64

	// BasePrices maps room type to party size to nightly base price band
	BasePrices map[string]map[int]PriceRange
	// Inflation is the yearly price growth, compounded from From's year
	Inflation float64
	// Events multiply the price of every stay covering the date
	Events map[time.Time]float64
	// MaxNights bounds stay length; stays last 1..MaxNights nights
	MaxNights int
}

// DefaultConfig is a three room type hotel with eight years of history
func DefaultConfig() Config {
	return Config{
		From:  time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC),
		To:    time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		Stays: 100_000,
		Seed:  42,
		BasePrices: map[string]map[int]PriceRange{
			"Single": {1: {100, 200}},
			"Double": {1: {200, 250}, 2: {200, 300}},
			"Family": {3: {350, 400}, 4: {400, 420}},
		},
		Inflation: 0.03,
		Events: map[time.Time]float64{
			time.Date(2022, 12, 25, 0, 0, 0, 0, time.UTC): 2.0,
			time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC):  1.5,
			time.Date(2023, 9, 20, 0, 0, 0, 0, time.UTC):  1.8,
		},
		MaxNights: 14,
	}
}

// seasonBand returns the seasonal multiplier band for a month
func seasonBand(m time.Month) PriceRange {
	switch m {
	case time.December, time.January, time.February:
		return PriceRange{0.5, 0.8}
	case time.June, time.July, time.August:
		return PriceRange{1.2, 1.5}
	default:
		return PriceRange{0.8, 1.2}
	}
}

type offer struct {
	roomType string
	persons  int
	band     PriceRange
}

// Generate builds cfg.Stays records. The same seed yields the same history.
func Generate(cfg Config) []stay.Record {
	if cfg.MaxNights < 1 {
		cfg.MaxNights = 1
	}
	span := stay.DaysBetween(cfg.From, cfg.To)
	if span < 0 || cfg.Stays <= 0 {
		return nil
	}

	offers := flatten(cfg.BasePrices)
	if len(offers) == 0 {
		return nil
	}

	var seed [32]byte
	binary.LittleEndian.PutUint64(seed[:], cfg.Seed)
	src := rand.NewChaCha8(seed)
	rng := rand.New(src)

	events := sortedEvents(cfg.Events)
	from := stay.Date(cfg.From)
	created := time.Now().UTC()

	records := make([]stay.Record, 0, cfg.Stays)
	for i := 0; i < cfg.Stays; i++ {
		o := offers[rng.IntN(len(offers))]
		begin := from.AddDate(0, 0, rng.IntN(span+1))
		nights := 1 + rng.IntN(cfg.MaxNights)
		end := begin.AddDate(0, 0, nights)

		price := uniform(rng, o.band) * float64(nights)
		for y := from.Year(); y < begin.Year(); y++ {
			price *= 1 + cfg.Inflation
		}
		price *= uniform(rng, seasonBand(begin.Month()))
		for _, ev := range events {
			if !ev.day.Before(begin) && !ev.day.After(end) {
				price *= ev.mult
			}
		}
		price *= uniform(rng, PriceRange{0.8, 1.2})

		id, err := uuid.NewRandomFromReader(src)
		if err != nil {
			id = uuid.New()
		}
		records = append(records, stay.Record{
			ID:          id,
			BeginOfStay: begin,
			EndOfStay:   end,
			Persons:     o.persons,
			RoomType:    o.roomType,
			TotalPrice:  decimal.NewFromFloat(price).Round(2),
			CreatedAt:   created,
		})
	}
	return records
}

// flatten orders offers so generation does not depend on map iteration
func flatten(prices map[string]map[int]PriceRange) []offer {
	var out []offer
	for roomType, byPersons := range prices {
		for persons, band := range byPersons {
			out = append(out, offer{roomType: roomType, persons: persons, band: band})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].roomType != out[j].roomType {
			return out[i].roomType < out[j].roomType
		}
		return out[i].persons < out[j].persons
	})
	return out
}

type event struct {
	day  time.Time
	mult float64
}

func sortedEvents(events map[time.Time]float64) []event {
	out := make([]event, 0, len(events))
	for day, mult := range events {
		out = append(out, event{day: stay.Date(day), mult: mult})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].day.Before(out[j].day) })
	return out
}

func uniform(rng *rand.Rand, r PriceRange) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}
