package forecast

import (
	"math"
)

// minOccupancyFactor keeps the occupancy correction from zeroing or negating a price
const minOccupancyFactor = 0.1

// Baseline is the heuristic price estimate for one date
type Baseline struct {
	InflationAdjusted float64
	OccupancyFactor   float64
	Price             float64
}

// Adjust combines extractor signals into a baseline price:
// the window price is projected forward by the annual trend from the earliest
// history year to the target year, then scaled by the expected-versus-historical
// occupancy ratio.
func Adjust(sig Signals, expectedOccupancy float64, targetYear, earliestYear int) Baseline {
	years := float64(targetYear - earliestYear)
	inflated := finite(sig.WeightedPrice * math.Pow(1+sig.AnnualTrend, years))
	factor := OccupancyFactor(expectedOccupancy, sig.HistoricalOccupancy)

	return Baseline{
		InflationAdjusted: inflated,
		OccupancyFactor:   factor,
		Price:             finite(inflated * factor),
	}
}

// OccupancyFactor is 1 without history, otherwise 1 + relative occupancy gap,
// never below 0.1.
func OccupancyFactor(expected, historical float64) float64 {
	if historical == 0 {
		return 1
	}
	f := 1 + (expected-historical)/historical
	if math.IsNaN(f) || f < minOccupancyFactor {
		return minOccupancyFactor
	}
	if math.IsInf(f, 1) {
		return 1
	}
	return f
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
