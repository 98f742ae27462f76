package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"optibooking/internal/adapters/config"
	"optibooking/internal/metrics"
	"optibooking/pkg/errors"
)

// Client is the connection pool behind the stay store
type Client struct {
	db   *sqlx.DB
	addr string
}

// NewClient opens the pool and pings it once. A failed ping is marked
// unavailable so bootstrap can retry it.
func NewClient(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	configurePool(db, cfg)

	c := &Client{db: db, addr: cfg.Addr()}
	if err := c.Health(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Mark(errors.ErrUnavailable, errors.Wrapf(err, "ping postgres at %s", c.addr))
	}
	return c, nil
}

// Stay imports are one long transaction; the pool only needs a handful of
// idle connections for reads between them.
func configurePool(db *sqlx.DB, cfg config.PostgresConfig) {
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(max(maxConns/4, 2))
	db.SetConnMaxLifetime(lifetime)
	db.SetConnMaxIdleTime(lifetime / 2)
}

// DB returns the underlying pool
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Addr is the server address, for logs
func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) Close() error {
	return c.db.Close()
}

// Health pings the server and records the probe like any other query
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	err := c.db.PingContext(ctx)
	metrics.RecordDBQuery("postgres", "ping", time.Since(start), err)
	return err
}
