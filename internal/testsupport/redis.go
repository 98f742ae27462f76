package testsupport

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"optibooking/internal/adapters/config"
	"optibooking/internal/adapters/redis"
)

// NewRedisClient connects through the service adapter and empties the
// selected database before and after the test.
func NewRedisClient(t *testing.T, cfg config.RedisConfig) *goredis.Client {
	t.Helper()

	client, err := redis.NewClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}

	flush := func() error { return client.Client().FlushDB(context.Background()).Err() }
	if err := flush(); err != nil {
		_ = client.Close()
		t.Fatalf("failed to flush redis before test: %v", err)
	}

	t.Cleanup(func() {
		_ = flush()
		_ = client.Close()
	})
	return client.Client()
}
