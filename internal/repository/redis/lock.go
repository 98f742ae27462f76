package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"optibooking/pkg/errors"
)

// releaseScript deletes the lock only if it is still held by the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a SETNX-based mutual exclusion lock shared across replicas
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker creates a locker whose locks expire after ttl if never released
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// Acquire takes lock:<name>. It returns errors.ErrIngestionBusy when another
// holder owns it, otherwise a release function.
func (l *Locker) Acquire(ctx context.Context, name string) (func(context.Context) error, error) {
	key := "lock:" + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to acquire lock: key=%s", key)
	}
	if !ok {
		return nil, errors.Wrapf(errors.ErrIngestionBusy, "lock held: key=%s", key)
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return errors.Wrapf(err, "failed to release lock: key=%s", key)
		}
		return nil
	}
	return release, nil
}
