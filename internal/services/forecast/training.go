package forecast

import (
	"optibooking/internal/domain/stay"
	"optibooking/internal/ml/occupancy"
	"optibooking/internal/ml/pricing"
)

// trainingSamples turns stored stays into model rows. Occupied rooms are the
// overlap count at check-in; total rooms come from the inventory, then from
// the record, then 0. The baseline is the heuristic price for the stay at its
// realized occupancy.
func trainingSamples(records []stay.Record, snap *Snapshot, inv RoomInventory) []pricing.Sample {
	samples := make([]pricing.Sample, 0, len(records))
	for _, r := range records {
		occupied := snap.OccupiedRooms(r.BeginOfStay, r.RoomType)
		total := roomsFor(r, inv)
		samples = append(samples, pricing.Sample{
			Instance: pricing.Instance{
				Begin:         r.BeginOfStay,
				End:           r.EndOfStay,
				Persons:       r.Persons,
				OccupiedRooms: occupied,
				TotalRooms:    total,
				BaselinePrice: stayBaseline(r, snap, occupied, total),
			},
			Price: r.TotalPrice.InexactFloat64(),
		})
	}
	return samples
}

// stayBaseline prices a whole stay with the heuristic, using the check-in
// window and the occupancy the stay actually saw
func stayBaseline(r stay.Record, snap *Snapshot, occupied, total int) float64 {
	sig := snap.SeasonalSignals(r.BeginOfStay, r.RoomType, r.Persons, total)
	year := r.BeginOfStay.Year()
	base := Adjust(sig, occupancyRate(occupied, total), year, snap.EarliestYear(year))
	return base.Price * float64(r.Nights())
}

func occupancyRate(occupied, total int) float64 {
	if total <= 0 {
		return float64(occupied)
	}
	return float64(occupied) / float64(total)
}

// occupancyObservations keeps stays of roomType with a known room count
func occupancyObservations(records []stay.Record, snap *Snapshot, inv RoomInventory, roomType string) []occupancy.Observation {
	var obs []occupancy.Observation
	for _, r := range records {
		if r.RoomType != roomType {
			continue
		}
		total := roomsFor(r, inv)
		if total <= 0 {
			continue
		}
		rate := float64(snap.OccupiedRooms(r.BeginOfStay, r.RoomType)) / float64(total)
		obs = append(obs, occupancy.Observation{
			Price:    r.PerNightPrice().InexactFloat64(),
			Persons:  r.Persons,
			Date:     r.BeginOfStay,
			Occupied: min(rate, 1),
		})
	}
	return obs
}

func roomsFor(r stay.Record, inv RoomInventory) int {
	if n, ok := inv[r.RoomType]; ok {
		return n
	}
	if r.TotalRooms != nil && *r.TotalRooms > 0 {
		return *r.TotalRooms
	}
	return 0
}
