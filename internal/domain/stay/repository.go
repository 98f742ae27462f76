package stay

import (
	"context"
)

// Repository is the durable stay store. It is append-only: the forecasting
// core inserts batches and reads full snapshots, never single rows.
type Repository interface {
	// InsertBatch stores all records or none of them
	InsertBatch(ctx context.Context, records []Record) error
	ListAll(ctx context.Context) ([]Record, error)
	Count(ctx context.Context) (int, error)
	RoomTypes(ctx context.Context) ([]string, error)
}
