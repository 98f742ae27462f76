package memory

import (
	"context"
	"sort"
	"sync"

	"optibooking/internal/domain/stay"
)

var _ stay.Repository = (*StayRepository)(nil)

// StayRepository keeps stays in process memory. Used when Postgres is
// disabled and as the store in service tests.
type StayRepository struct {
	mu      sync.RWMutex
	records []stay.Record
}

func NewStayRepository() *StayRepository {
	return &StayRepository{}
}

// InsertBatch appends the whole batch under one lock so concurrent batches never interleave
func (r *StayRepository) InsertBatch(ctx context.Context, records []stay.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.records = append(r.records, records...)
	r.mu.Unlock()
	return nil
}

func (r *StayRepository) ListAll(ctx context.Context) ([]stay.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]stay.Record, len(r.records))
	copy(out, r.records)
	return out, nil
}

func (r *StayRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), nil
}

func (r *StayRepository) RoomTypes(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	seen := make(map[string]struct{})
	for _, rec := range r.records {
		seen[rec.RoomType] = struct{}{}
	}
	r.mu.RUnlock()

	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, nil
}
