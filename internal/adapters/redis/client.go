package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"optibooking/internal/adapters/config"
	"optibooking/internal/metrics"
	"optibooking/pkg/errors"
)

// Client owns the Redis pool shared by the model artifact store and the
// ingestion lock.
type Client struct {
	rdb  *redis.Client
	addr string
}

// Options maps the service config onto go-redis options. Zero durations
// fall back to the library defaults.
func Options(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// NewClient creates the pool and pings it. A failed ping is marked
// unavailable so bootstrap can retry it.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	c := &Client{rdb: redis.NewClient(Options(cfg)), addr: cfg.Addr()}

	if err := c.Health(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, errors.Mark(errors.ErrUnavailable, errors.Wrapf(err, "ping redis at %s", c.addr))
	}
	return c, nil
}

// Client returns the underlying go-redis client
func (c *Client) Client() *redis.Client {
	return c.rdb
}

func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings Redis and records the probe
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	metrics.RecordDBQuery("redis", "ping", time.Since(start), err)
	return err
}
