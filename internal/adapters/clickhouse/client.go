package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"optibooking/internal/adapters/config"
	"optibooking/internal/metrics"
	"optibooking/pkg/errors"
)

// Client holds the connection the forecast audit log writes through
type Client struct {
	conn driver.Conn
	addr string
}

// NewClient opens the connection and pings it. A failed ping is marked
// unavailable so bootstrap can retry it.
func NewClient(ctx context.Context, cfg config.ClickHouseConfig) (*Client, error) {
	conn, err := clickhouse.Open(options(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "open clickhouse")
	}

	c := &Client{conn: conn, addr: cfg.Addr()}
	if err := c.Health(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Mark(errors.ErrUnavailable, errors.Wrapf(err, "ping clickhouse at %s", c.addr))
	}
	return c, nil
}

func options(cfg config.ClickHouseConfig) *clickhouse.Options {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	opts := &clickhouse.Options{
		Addr: []string{cfg.Addr()},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Compression:  &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout:  dialTimeout,
		MaxOpenConns: max(cfg.MaxOpenConns, 1),
	}
	if cfg.AsyncInsert {
		opts.Settings = clickhouse.Settings{
			"async_insert":          1,
			"wait_for_async_insert": 0,
		}
	}
	return opts
}

// Conn returns the underlying driver connection
func (c *Client) Conn() driver.Conn {
	return c.conn
}

func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Health pings the server and records the probe
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	err := c.conn.Ping(ctx)
	metrics.RecordDBQuery("clickhouse", "ping", time.Since(start), err)
	return err
}

// Exec runs a statement that returns no rows
func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}
