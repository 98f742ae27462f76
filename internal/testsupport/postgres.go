package testsupport

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"

	"optibooking/internal/adapters/postgres"
)

// PostgresTestHelper manages a transactional connection for integration tests
type PostgresTestHelper struct {
	client     *postgres.Client
	tx         *sqlx.Tx
	rolledBack bool
}

const testStatementTimeout = "SET LOCAL statement_timeout = '30s'"

// NewTestPostgres opens a connection from the environment and begins a
// transaction that is always rolled back.
func NewTestPostgres(t *testing.T) *PostgresTestHelper {
	t.Helper()

	client, err := postgres.NewClient(context.Background(), PostgresConfigFromEnv(t))
	if err != nil {
		t.Fatalf("failed to create postgres client: %v", err)
	}

	tx, err := client.DB().BeginTxx(context.Background(), nil)
	if err != nil {
		_ = client.Close()
		t.Fatalf("failed to start transaction: %v", err)
	}

	if _, err := tx.ExecContext(context.Background(), testStatementTimeout); err != nil {
		_ = tx.Rollback()
		_ = client.Close()
		t.Fatalf("failed to set statement timeout: %v", err)
	}

	helper := &PostgresTestHelper{client: client, tx: tx}
	t.Cleanup(func() { _ = client.Close() })
	t.Cleanup(helper.Rollback)

	return helper
}

// Tx returns the active transaction for the test
func (h *PostgresTestHelper) Tx() *sqlx.Tx {
	return h.tx
}

// Rollback rolls back the transaction once
func (h *PostgresTestHelper) Rollback() {
	if h.rolledBack {
		return
	}
	_ = h.tx.Rollback()
	h.rolledBack = true
}

// Close is an alias for Rollback
func (h *PostgresTestHelper) Close() {
	h.Rollback()
}
