package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"optibooking/pkg/errors"
)

// ModelArtifactStore keeps the encoded model under a single key shared by all replicas
type ModelArtifactStore struct {
	client *redis.Client
	key    string
}

// NewModelArtifactStore creates a new model artifact store
func NewModelArtifactStore(client *redis.Client, key string) *ModelArtifactStore {
	return &ModelArtifactStore{
		client: client,
		key:    key,
	}
}

// Load retrieves the artifact bytes
func (r *ModelArtifactStore) Load(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "model artifact not found: key=%s", r.key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get model artifact from redis: key=%s", r.key)
	}
	return data, nil
}

// Save overwrites the artifact without expiry
func (r *ModelArtifactStore) Save(ctx context.Context, data []byte) error {
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return errors.Wrapf(err, "failed to save model artifact to redis: key=%s", r.key)
	}
	return nil
}
