package stay

import (
	"context"
	"time"

	"github.com/google/uuid"

	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
)

// Service validates records before they reach the store.
type Service struct {
	repo Repository
	log  *logger.Logger
}

// NewService constructs a stay service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, log: logger.Get().With("component", "stay_service")}
}

// Insert validates every record first, then assigns ids and writes the batch.
// A single invalid record rejects the whole batch.
func (s *Service) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	batch := make([]Record, len(records))
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return errors.Wrapf(err, "record %d", i)
		}
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.BeginOfStay = Date(r.BeginOfStay)
		r.EndOfStay = Date(r.EndOfStay)
		batch[i] = r
	}

	if err := s.repo.InsertBatch(ctx, batch); err != nil {
		return errors.Wrap(err, "insert stay batch")
	}
	return nil
}

// Snapshot reads the full record set.
func (s *Service) Snapshot(ctx context.Context) ([]Record, error) {
	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list stays")
	}
	return records, nil
}

// Count returns the number of stored records.
func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "count stays")
	}
	return n, nil
}

// RoomTypes returns the distinct room types in the store.
func (s *Service) RoomTypes(ctx context.Context) ([]string, error) {
	types, err := s.repo.RoomTypes(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list room types")
	}
	return types, nil
}
