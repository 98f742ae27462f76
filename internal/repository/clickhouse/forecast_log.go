package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"optibooking/internal/domain/forecastlog"
	"optibooking/internal/metrics"
	"optibooking/pkg/clickhouse"
	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
)

// Compile-time check
var _ forecastlog.Repository = (*ForecastLogRepository)(nil)

// ForecastLogSchema creates the audit table; applied by EnsureSchema on startup
const ForecastLogSchema = `
CREATE TABLE IF NOT EXISTS forecast_log (
	timestamp            DateTime64(3, 'UTC'),
	request_id           String,
	model_version        LowCardinality(String),
	room_type            LowCardinality(String),
	persons              UInt16,
	date                 Date,
	price                Float64,
	baseline             Float64,
	expected_occupancy   Float64,
	historical_occupancy Float64,
	total_rooms          UInt32
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(timestamp)
ORDER BY (room_type, date, timestamp)
TTL toDateTime(timestamp) + INTERVAL 180 DAY
`

// ForecastLogRepository writes served forecasts to ClickHouse through a batch writer
type ForecastLogRepository struct {
	conn        driver.Conn
	batchWriter *clickhouse.BatchWriter[*forecastlog.Entry]
	log         *logger.Logger
}

// NewForecastLogRepository creates the repository; call Start to enable periodic flushes
func NewForecastLogRepository(conn driver.Conn, log *logger.Logger) *ForecastLogRepository {
	repo := &ForecastLogRepository{
		conn: conn,
		log:  log.With("component", "forecast_log"),
	}

	repo.batchWriter = clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig[*forecastlog.Entry]{
		FlushFunc:    repo.flushBatch,
		TableName:    "forecast_log",
		MaxBatchSize: 1000,
		MaxAge:       5 * time.Second,
		Logger:       log,
	})

	return repo
}

// EnsureSchema creates the table if missing
func (r *ForecastLogRepository) EnsureSchema(ctx context.Context) error {
	return errors.Wrap(r.conn.Exec(ctx, ForecastLogSchema), "ensure forecast_log schema")
}

// Start begins the background flush loop
func (r *ForecastLogRepository) Start(ctx context.Context) {
	r.batchWriter.Start(ctx)
}

// Stop flushes what is buffered
func (r *ForecastLogRepository) Stop(ctx context.Context) error {
	return r.batchWriter.Stop(ctx)
}

// Store buffers an entry; it is written on the next flush
func (r *ForecastLogRepository) Store(ctx context.Context, entry *forecastlog.Entry) error {
	return r.batchWriter.Add(ctx, entry)
}

// Stats exposes the batch writer state for health reporting
func (r *ForecastLogRepository) Stats() clickhouse.BatchWriterStats {
	return r.batchWriter.Stats()
}

// flushBatch sends one native batch INSERT for all rows
func (r *ForecastLogRepository) flushBatch(ctx context.Context, batch []*forecastlog.Entry) error {
	start := time.Now()

	stmt, err := r.conn.PrepareBatch(ctx, "INSERT INTO forecast_log")
	if err != nil {
		metrics.RecordDBQuery("clickhouse", "insert_forecast_log", time.Since(start), err)
		return errors.Wrap(err, "failed to prepare batch")
	}
	defer stmt.Close()

	for _, entry := range batch {
		if err := stmt.AppendStruct(entry); err != nil {
			return errors.Wrap(err, "failed to append to batch")
		}
	}

	err = stmt.Send()
	metrics.RecordDBQuery("clickhouse", "insert_forecast_log", time.Since(start), err)
	if err != nil {
		return errors.Wrap(err, "failed to send batch")
	}

	r.log.Debugw("Batch inserted forecast log entries", "rows", len(batch), "took", time.Since(start))
	return nil
}
