package forecast

import (
	"math"
	"time"

	"optibooking/internal/domain/stay"
)

const (
	// windowRadius is the number of days on each side of the target date
	windowRadius = 4

	exactDayWeight    = 0.7
	surroundingWeight = 0.3

	// trendYears is how many complete years before the target year feed the trend
	trendYears = 5
)

// stayPoint is a record reduced to what the extractor needs
type stayPoint struct {
	begin     int64 // epoch day
	end       int64 // epoch day
	beginYear int
	persons   int
	total     float64
	perNight  float64
}

func (p stayPoint) covers(day int64) bool {
	return day >= p.begin && day <= p.end
}

// maxIndexedDays bounds the per-day index of one room type. A room type whose
// stays span more days than this is scanned instead.
const maxIndexedDays = 100 * 366

// segment is the room type and party size the price functions filter on
type segment struct {
	roomType string
	persons  int
}

// dayIndex holds per-day aggregates for one room type, starting at first
type dayIndex struct {
	first    int64
	occupied []int32
	prices   map[int]*dayPrices // by persons
}

type dayPrices struct {
	sum   []float64
	count []int32
}

type yearTotal struct {
	sum   float64
	count int
}

// Snapshot is an immutable, indexed view of the stay history taken once per
// training or prediction call. All extractor functions are pure functions of it.
type Snapshot struct {
	byRoom       map[string][]stayPoint
	days         map[string]*dayIndex
	yearly       map[segment]map[int]yearTotal
	size         int
	earliestYear int
}

// NewSnapshot indexes records by room type, by day and by check-in year
func NewSnapshot(records []stay.Record) *Snapshot {
	s := &Snapshot{
		byRoom: make(map[string][]stayPoint),
		days:   make(map[string]*dayIndex),
		yearly: make(map[segment]map[int]yearTotal),
	}
	for _, r := range records {
		p := stayPoint{
			begin:     stay.EpochDay(r.BeginOfStay),
			end:       stay.EpochDay(r.EndOfStay),
			beginYear: r.BeginOfStay.Year(),
			persons:   r.Persons,
			total:     r.TotalPrice.InexactFloat64(),
			perNight:  r.PerNightPrice().InexactFloat64(),
		}
		s.byRoom[r.RoomType] = append(s.byRoom[r.RoomType], p)

		seg := segment{roomType: r.RoomType, persons: r.Persons}
		years := s.yearly[seg]
		if years == nil {
			years = make(map[int]yearTotal)
			s.yearly[seg] = years
		}
		yt := years[p.beginYear]
		yt.sum += p.total
		yt.count++
		years[p.beginYear] = yt

		if s.earliestYear == 0 || p.beginYear < s.earliestYear {
			s.earliestYear = p.beginYear
		}
		s.size++
	}
	for roomType, points := range s.byRoom {
		if idx := buildDayIndex(points); idx != nil {
			s.days[roomType] = idx
		}
	}
	return s
}

func buildDayIndex(points []stayPoint) *dayIndex {
	first, last := int64(0), int64(-1)
	for _, p := range points {
		if p.end < p.begin {
			continue
		}
		if last < first {
			first, last = p.begin, p.end
			continue
		}
		first = min(first, p.begin)
		last = max(last, p.end)
	}
	span := last - first + 1
	if span <= 0 || span > maxIndexedDays {
		return nil
	}

	idx := &dayIndex{first: first, prices: make(map[int]*dayPrices)}
	delta := make([]int32, span+1)
	for _, p := range points {
		if p.end < p.begin {
			continue
		}
		delta[p.begin-first]++
		delta[p.end-first+1]--

		dp := idx.prices[p.persons]
		if dp == nil {
			dp = &dayPrices{sum: make([]float64, span), count: make([]int32, span)}
			idx.prices[p.persons] = dp
		}
		for d := p.begin; d <= p.end; d++ {
			dp.sum[d-first] += p.perNight
			dp.count[d-first]++
		}
	}

	idx.occupied = make([]int32, span)
	var running int32
	for i := range idx.occupied {
		running += delta[i]
		idx.occupied[i] = running
	}
	return idx
}

// slot maps an epoch day onto the index, false when outside it
func (x *dayIndex) slot(day int64) (int, bool) {
	i := day - x.first
	if i < 0 || i >= int64(len(x.occupied)) {
		return 0, false
	}
	return int(i), true
}

// Len returns the number of records in the snapshot
func (s *Snapshot) Len() int {
	return s.size
}

// EarliestYear is the smallest check-in year, or fallback for an empty snapshot
func (s *Snapshot) EarliestYear(fallback int) int {
	if s.earliestYear == 0 {
		return fallback
	}
	return s.earliestYear
}

// OccupiedRooms counts stays of roomType whose interval covers d (inclusive).
func (s *Snapshot) OccupiedRooms(d time.Time, roomType string) int {
	return s.occupiedOn(stay.EpochDay(d), roomType)
}

func (s *Snapshot) occupiedOn(day int64, roomType string) int {
	if idx := s.days[roomType]; idx != nil {
		i, ok := idx.slot(day)
		if !ok {
			return 0
		}
		return int(idx.occupied[i])
	}

	n := 0
	for _, p := range s.byRoom[roomType] {
		if p.covers(day) {
			n++
		}
	}
	return n
}

// WeightedAveragePrice blends the mean per-night price of matching stays on d
// (weight 0.7) with the mean over the eight surrounding days (weight 0.3).
// Empty buckets contribute 0.
func (s *Snapshot) WeightedAveragePrice(d time.Time, roomType string, persons int) float64 {
	v, _ := s.windowPrice(stay.EpochDay(d), roomType, persons)
	return v
}

// windowPrice also returns the number of collected samples across both buckets
func (s *Snapshot) windowPrice(day int64, roomType string, persons int) (float64, int) {
	var exactSum, aroundSum float64
	var exactN, aroundN int

	if idx := s.days[roomType]; idx != nil {
		dp := idx.prices[persons]
		if dp == nil {
			return 0, 0
		}
		for off := int64(-windowRadius); off <= windowRadius; off++ {
			i, ok := idx.slot(day + off)
			if !ok || dp.count[i] == 0 {
				continue
			}
			if off == 0 {
				exactSum, exactN = dp.sum[i], int(dp.count[i])
			} else {
				aroundSum += dp.sum[i]
				aroundN += int(dp.count[i])
			}
		}
	} else {
		for _, p := range s.byRoom[roomType] {
			if p.persons != persons {
				continue
			}
			if p.end < day-windowRadius || p.begin > day+windowRadius {
				continue
			}
			for off := int64(-windowRadius); off <= windowRadius; off++ {
				if !p.covers(day + off) {
					continue
				}
				if off == 0 {
					exactSum += p.perNight
					exactN++
				} else {
					aroundSum += p.perNight
					aroundN++
				}
			}
		}
	}

	return exactDayWeight*mean(exactSum, exactN) + surroundingWeight*mean(aroundSum, aroundN), exactN + aroundN
}

// AverageOccupancy is the mean occupancy rate over the 9-day window around d.
// A non-positive totalRooms is treated as 1.
func (s *Snapshot) AverageOccupancy(d time.Time, roomType string, totalRooms int) float64 {
	v, _ := s.windowOccupancy(stay.EpochDay(d), roomType, totalRooms)
	return v
}

func (s *Snapshot) windowOccupancy(day int64, roomType string, totalRooms int) (float64, bool) {
	divisor := float64(totalRooms)
	if totalRooms <= 0 {
		divisor = 1
	}

	var sum float64
	occupied := false
	for off := int64(-windowRadius); off <= windowRadius; off++ {
		n := s.occupiedOn(day+off, roomType)
		if n > 0 {
			occupied = true
		}
		sum += float64(n) / divisor
	}
	return sum / float64(2*windowRadius+1), occupied
}

// AnnualTrend estimates the yearly relative price change from the five
// complete years before targetYear. Year pairs where either mean is not
// positive are skipped; no qualifying pair yields 0.
func (s *Snapshot) AnnualTrend(targetYear int, roomType string, persons int) float64 {
	years := s.yearly[segment{roomType: roomType, persons: persons}]
	first := targetYear - trendYears

	var changes float64
	var pairs int
	for y := first + 1; y < targetYear; y++ {
		prev := mean(years[y-1].sum, years[y-1].count)
		curr := mean(years[y].sum, years[y].count)
		if prev <= 0 || curr <= 0 {
			continue
		}
		changes += (curr - prev) / prev
		pairs++
	}

	return mean(changes, pairs)
}

// Signals are the extractor outputs for one target date
type Signals struct {
	WeightedPrice       float64
	HistoricalOccupancy float64
	AnnualTrend         float64
	OccupiedRooms       int
	// SampleYears is the number of calendar years whose window held matching stays
	SampleYears int
}

// SeasonalSignals evaluates the window on d and on the same calendar day of
// every earlier year in the snapshot, averaging over the years that have
// data. With history only in d's own year this equals the plain window values.
func (s *Snapshot) SeasonalSignals(d time.Time, roomType string, persons int, totalRooms int) Signals {
	d = stay.Date(d)
	sig := Signals{
		AnnualTrend:   s.AnnualTrend(d.Year(), roomType, persons),
		OccupiedRooms: s.OccupiedRooms(d, roomType),
	}
	if s.earliestYear == 0 {
		return sig
	}

	var priceSum, occSum float64
	var priceYears, occYears int
	for y := s.earliestYear; y <= d.Year(); y++ {
		day := stay.EpochDay(sameDayInYear(d, y))

		if v, n := s.windowPrice(day, roomType, persons); n > 0 {
			priceSum += v
			priceYears++
		}
		if v, ok := s.windowOccupancy(day, roomType, totalRooms); ok {
			occSum += v
			occYears++
		}
	}

	sig.WeightedPrice = mean(priceSum, priceYears)
	sig.HistoricalOccupancy = mean(occSum, occYears)
	sig.SampleYears = priceYears
	return sig
}

// sameDayInYear moves d to year y; Feb 29 becomes Feb 28 in non-leap years
func sameDayInYear(d time.Time, y int) time.Time {
	if d.Month() == time.February && d.Day() == 29 && !isLeap(y) {
		return time.Date(y, time.February, 28, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(y, d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	v := sum / float64(n)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
