package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// DBTX is the subset of *sqlx.DB and *sqlx.Tx the repositories use, so tests
// can run a repository inside a transaction that is rolled back afterwards.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

// txBeginner is implemented by *sqlx.DB but not by *sqlx.Tx
type txBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// withTx runs fn in a new transaction when db can start one, otherwise
// directly on db (which is then already a transaction).
func withTx(ctx context.Context, db DBTX, fn func(DBTX) error) error {
	b, ok := db.(txBeginner)
	if !ok {
		return fn(db)
	}

	tx, err := b.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
