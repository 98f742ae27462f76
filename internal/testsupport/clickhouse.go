package testsupport

import (
	"context"
	"testing"

	"optibooking/internal/adapters/clickhouse"
)

// NewClickHouseClient connects with synchronous inserts so rows written by a
// test are visible as soon as the batch writer flushes.
func NewClickHouseClient(t *testing.T) *clickhouse.Client {
	t.Helper()

	cfg := ClickHouseConfigFromEnv(t)
	cfg.AsyncInsert = false

	client, err := clickhouse.NewClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to connect to clickhouse at %s: %v", cfg.Addr(), err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// TruncateTable empties table now and once more when the test ends
func TruncateTable(t *testing.T, client *clickhouse.Client, table string) {
	t.Helper()

	truncate := func() error {
		return client.Exec(context.Background(), "TRUNCATE TABLE IF EXISTS "+table)
	}
	if err := truncate(); err != nil {
		t.Fatalf("failed to truncate %s: %v", table, err)
	}
	t.Cleanup(func() { _ = truncate() })
}
