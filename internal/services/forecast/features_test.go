package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optibooking/internal/domain/stay"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func rec(roomType string, persons int, begin, end time.Time, price float64) stay.Record {
	return stay.Record{
		BeginOfStay: begin,
		EndOfStay:   end,
		Persons:     persons,
		RoomType:    roomType,
		TotalPrice:  decimal.NewFromFloat(price),
	}
}

func TestWeightedAveragePrice_ExactDayOnly(t *testing.T) {
	target := day(2024, 3, 10)
	snap := NewSnapshot([]stay.Record{
		rec("Standard", 2, target, target, 100),
		rec("Standard", 2, target, target, 120),
	})

	got := snap.WeightedAveragePrice(target, "Standard", 2)
	assert.InDelta(t, 77.0, got, 1e-9)

	assert.Equal(t, 2, snap.OccupiedRooms(target, "Standard"))
	assert.InDelta(t, 0.2, float64(snap.OccupiedRooms(target, "Standard"))/10, 1e-9)
	assert.InDelta(t, 0.2/9, snap.AverageOccupancy(target, "Standard", 10), 1e-9)
}

func TestWeightedAveragePrice_Blend(t *testing.T) {
	target := day(2024, 3, 10)
	snap := NewSnapshot([]stay.Record{
		// 3 nights at 300 => 100 per night, covers offsets 0..3
		rec("Standard", 2, target, target.AddDate(0, 0, 3), 300),
		// 1 night at 50 two days before, covers offsets -2..-1
		rec("Standard", 2, target.AddDate(0, 0, -2), target.AddDate(0, 0, -1), 50),
		// other party size and room type are ignored
		rec("Standard", 3, target, target, 999),
		rec("Deluxe", 2, target, target, 999),
	})

	// exact: [100]; surrounding: 100 x3 (offsets 1..3) + 50 x2 (offsets -2,-1)
	want := 0.7*100 + 0.3*(300.0+100.0)/5
	assert.InDelta(t, want, snap.WeightedAveragePrice(target, "Standard", 2), 1e-9)
}

func TestWeightedAveragePrice_EmptyIsZero(t *testing.T) {
	snap := NewSnapshot(nil)
	got := snap.WeightedAveragePrice(day(2024, 1, 1), "Standard", 2)
	assert.Equal(t, 0.0, got)
	assert.False(t, math.IsNaN(got))

	assert.Equal(t, 0.0, snap.AverageOccupancy(day(2024, 1, 1), "Standard", 10))
	assert.Equal(t, 0.0, snap.AnnualTrend(2024, "Standard", 2))
}

func TestOccupiedRooms_InclusiveBounds(t *testing.T) {
	snap := NewSnapshot([]stay.Record{
		rec("Standard", 1, day(2024, 5, 1), day(2024, 5, 3), 300),
	})

	assert.Equal(t, 0, snap.OccupiedRooms(day(2024, 4, 30), "Standard"))
	assert.Equal(t, 1, snap.OccupiedRooms(day(2024, 5, 1), "Standard"))
	assert.Equal(t, 1, snap.OccupiedRooms(day(2024, 5, 3), "Standard"))
	assert.Equal(t, 0, snap.OccupiedRooms(day(2024, 5, 4), "Standard"))
	assert.Equal(t, 0, snap.OccupiedRooms(day(2024, 5, 2), "Deluxe"))
}

func TestAverageOccupancy_ZeroInventoryUsesDivisorOne(t *testing.T) {
	target := day(2024, 3, 10)
	snap := NewSnapshot([]stay.Record{
		rec("Standard", 2, target, target, 100),
	})

	got := snap.AverageOccupancy(target, "Standard", 0)
	assert.InDelta(t, 1.0/9, got, 1e-9)
	assert.False(t, math.IsInf(got, 0))
}

func TestAnnualTrend(t *testing.T) {
	tests := []struct {
		name    string
		records []stay.Record
		want    float64
	}{
		{
			name: "steady ten percent growth",
			records: []stay.Record{
				rec("Standard", 2, day(2021, 6, 1), day(2021, 6, 2), 100),
				rec("Standard", 2, day(2022, 6, 1), day(2022, 6, 2), 110),
				rec("Standard", 2, day(2023, 6, 1), day(2023, 6, 2), 121),
			},
			want: 0.1,
		},
		{
			name: "gap year breaks the pair",
			records: []stay.Record{
				rec("Standard", 2, day(2019, 6, 1), day(2019, 6, 2), 100),
				rec("Standard", 2, day(2021, 6, 1), day(2021, 6, 2), 200),
				rec("Standard", 2, day(2022, 6, 1), day(2022, 6, 2), 300),
			},
			want: 0.5,
		},
		{
			name: "zero priced year is skipped",
			records: []stay.Record{
				rec("Standard", 2, day(2021, 6, 1), day(2021, 6, 2), 0),
				rec("Standard", 2, day(2022, 6, 1), day(2022, 6, 2), 100),
			},
			want: 0,
		},
		{
			name: "target year and older history ignored",
			records: []stay.Record{
				rec("Standard", 2, day(2010, 6, 1), day(2010, 6, 2), 10),
				rec("Standard", 2, day(2023, 6, 1), day(2023, 6, 2), 100),
				rec("Standard", 2, day(2024, 6, 1), day(2024, 6, 2), 1000),
			},
			want: 0,
		},
		{
			name: "yearly mean of several stays",
			records: []stay.Record{
				rec("Standard", 2, day(2022, 1, 1), day(2022, 1, 2), 80),
				rec("Standard", 2, day(2022, 9, 1), day(2022, 9, 2), 120),
				rec("Standard", 2, day(2023, 3, 1), day(2023, 3, 2), 150),
			},
			want: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := NewSnapshot(tt.records)
			got := snap.AnnualTrend(2024, "Standard", 2)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.False(t, math.IsNaN(got))
		})
	}
}

func TestSeasonalSignals_ProjectsEarlierYears(t *testing.T) {
	snap := NewSnapshot([]stay.Record{
		rec("Standard", 2, day(2022, 7, 15), day(2022, 7, 15), 100),
		rec("Standard", 2, day(2023, 7, 15), day(2023, 7, 15), 200),
	})

	sig := snap.SeasonalSignals(day(2025, 7, 15), "Standard", 2, 10)

	// each year contributes 0.7 * price
	assert.InDelta(t, (70.0+140.0)/2, sig.WeightedPrice, 1e-9)
	assert.InDelta(t, 0.1/9, sig.HistoricalOccupancy, 1e-9)
	assert.Equal(t, 2, sig.SampleYears)
	assert.InDelta(t, 1.0, sig.AnnualTrend, 1e-9)
	assert.Equal(t, 0, sig.OccupiedRooms)
	assert.Equal(t, 2022, snap.EarliestYear(2025))
}

func TestSeasonalSignals_SameYearMatchesWindow(t *testing.T) {
	target := day(2024, 3, 10)
	snap := NewSnapshot([]stay.Record{
		rec("Standard", 2, target, target, 100),
		rec("Standard", 2, target, target, 120),
	})

	sig := snap.SeasonalSignals(target, "Standard", 2, 10)
	assert.InDelta(t, snap.WeightedAveragePrice(target, "Standard", 2), sig.WeightedPrice, 1e-9)
	assert.InDelta(t, snap.AverageOccupancy(target, "Standard", 10), sig.HistoricalOccupancy, 1e-9)
	assert.Equal(t, 2, sig.OccupiedRooms)
}

func TestSeasonalSignals_LeapDay(t *testing.T) {
	snap := NewSnapshot([]stay.Record{
		rec("Standard", 2, day(2023, 2, 28), day(2023, 2, 28), 100),
	})

	sig := snap.SeasonalSignals(day(2024, 2, 29), "Standard", 2, 1)
	require.Equal(t, 1, sig.SampleYears)
	assert.InDelta(t, 70.0, sig.WeightedPrice, 1e-9)
}

func TestExtractor_Deterministic(t *testing.T) {
	records := []stay.Record{
		rec("Standard", 2, day(2022, 7, 10), day(2022, 7, 14), 480),
		rec("Standard", 2, day(2023, 7, 12), day(2023, 7, 13), 150),
		rec("Standard", 2, day(2023, 7, 16), day(2023, 7, 20), 700),
	}

	first := NewSnapshot(records).SeasonalSignals(day(2024, 7, 14), "Standard", 2, 5)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, NewSnapshot(records).SeasonalSignals(day(2024, 7, 14), "Standard", 2, 5))
	}
}

func TestSnapshot_DayIndexMatchesScan(t *testing.T) {
	var records []stay.Record
	for i := 0; i < 120; i++ {
		b := day(2022, 11, 1).AddDate(0, 0, i*3)
		records = append(records,
			rec("Standard", 1+i%3, b, b.AddDate(0, 0, 1+i%4), float64(80+i%17*5)),
			rec("Suite", 2, b, b.AddDate(0, 0, 2), 400),
		)
	}
	// inverted interval, never occupies a day
	records = append(records, rec("Standard", 2, day(2023, 3, 5), day(2023, 3, 1), 90))

	indexed := NewSnapshot(records)
	require.NotNil(t, indexed.days["Standard"])
	scanned := NewSnapshot(records)
	scanned.days = map[string]*dayIndex{}

	for d := day(2022, 10, 20); d.Before(day(2024, 1, 10)); d = d.AddDate(0, 0, 5) {
		for _, roomType := range []string{"Standard", "Suite", "Missing"} {
			assert.Equal(t, scanned.OccupiedRooms(d, roomType), indexed.OccupiedRooms(d, roomType), "%s %s", roomType, d)
			for persons := 1; persons <= 3; persons++ {
				assert.InDelta(t, scanned.WeightedAveragePrice(d, roomType, persons), indexed.WeightedAveragePrice(d, roomType, persons), 1e-9)
			}
			assert.InDelta(t, scanned.AverageOccupancy(d, roomType, 6), indexed.AverageOccupancy(d, roomType, 6), 1e-12)
		}
	}
}
