package postgres

import (
	"context"

	"optibooking/internal/domain/stay"
	"optibooking/pkg/errors"
)

// Compile-time check
var _ stay.Repository = (*StayRepository)(nil)

// insertChunkSize keeps a multi-row insert under the 65535 bind parameter limit
const insertChunkSize = 1000

// StaySchema creates the stay table; applied by EnsureSchema on startup
const StaySchema = `
CREATE TABLE IF NOT EXISTS stay_records (
	id             UUID PRIMARY KEY,
	begin_of_stay  DATE NOT NULL,
	end_of_stay    DATE NOT NULL,
	persons        INTEGER NOT NULL CHECK (persons > 0),
	room_type      TEXT NOT NULL CHECK (room_type <> ''),
	total_price    NUMERIC(14, 2) NOT NULL CHECK (total_price >= 0),
	occupied_rooms INTEGER,
	total_rooms    INTEGER,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (begin_of_stay <= end_of_stay)
);
CREATE INDEX IF NOT EXISTS idx_stay_records_room_type ON stay_records (room_type, begin_of_stay);
`

// StayRepository implements stay.Repository using sqlx
type StayRepository struct {
	db DBTX
}

// NewStayRepository creates a new stay repository
func NewStayRepository(db DBTX) *StayRepository {
	return &StayRepository{db: db}
}

// EnsureSchema creates the table and index if missing
func (r *StayRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, StaySchema)
	return errors.Wrap(err, "ensure stay schema")
}

// InsertBatch inserts all records in one transaction
func (r *StayRepository) InsertBatch(ctx context.Context, records []stay.Record) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO stay_records (
			id, begin_of_stay, end_of_stay, persons, room_type,
			total_price, occupied_rooms, total_rooms, created_at
		) VALUES (
			:id, :begin_of_stay, :end_of_stay, :persons, :room_type,
			:total_price, :occupied_rooms, :total_rooms, :created_at
		)`

	return withTx(ctx, r.db, func(db DBTX) error {
		for start := 0; start < len(records); start += insertChunkSize {
			end := start + insertChunkSize
			if end > len(records) {
				end = len(records)
			}
			if _, err := db.NamedExecContext(ctx, query, records[start:end]); err != nil {
				return errors.Wrapf(err, "insert stays %d..%d", start, end)
			}
		}
		return nil
	})
}

// ListAll returns every stay ordered by check-in
func (r *StayRepository) ListAll(ctx context.Context) ([]stay.Record, error) {
	var records []stay.Record
	query := `
		SELECT id, begin_of_stay, end_of_stay, persons, room_type,
		       total_price, occupied_rooms, total_rooms, created_at
		FROM stay_records
		ORDER BY begin_of_stay, id`

	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, err
	}
	for i := range records {
		records[i].BeginOfStay = stay.Date(records[i].BeginOfStay)
		records[i].EndOfStay = stay.Date(records[i].EndOfStay)
	}
	return records, nil
}

// Count returns the number of stored stays
func (r *StayRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM stay_records`)
	return n, err
}

// RoomTypes returns distinct room types in alphabetical order
func (r *StayRepository) RoomTypes(ctx context.Context) ([]string, error) {
	var types []string
	err := r.db.SelectContext(ctx, &types, `SELECT DISTINCT room_type FROM stay_records ORDER BY room_type`)
	return types, err
}
