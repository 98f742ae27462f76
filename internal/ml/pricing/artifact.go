package pricing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"

	"optibooking/internal/ml/forest"
	"optibooking/pkg/errors"
)

// ArtifactStore holds the single persisted model slot.
// Load returns errors.ErrNotFound when nothing was saved yet.
type ArtifactStore interface {
	Save(ctx context.Context, data []byte) error
	Load(ctx context.Context) ([]byte, error)
}

// artifact is the on-disk envelope. Checksum covers the raw forest payload.
type artifact struct {
	Version   uuid.UUID       `json:"version"`
	Schema    []string        `json:"schema"`
	TrainedAt time.Time       `json:"trained_at"`
	Samples   int             `json:"samples"`
	OOBRMSE   float64         `json:"oob_rmse"`
	Forest    json.RawMessage `json:"forest"`
	Checksum  string          `json:"checksum"`
}

// Encode serialises the model and its schema
func Encode(m *Model) ([]byte, error) {
	if m == nil || m.forest == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "encode empty model")
	}
	payload, err := json.Marshal(m.forest)
	if err != nil {
		return nil, errors.Wrap(err, "marshal forest")
	}
	sum := sha256.Sum256(payload)

	return json.Marshal(artifact{
		Version:   m.Version,
		Schema:    m.Schema,
		TrainedAt: m.TrainedAt,
		Samples:   m.Samples,
		OOBRMSE:   m.OOBRMSE,
		Forest:    payload,
		Checksum:  hex.EncodeToString(sum[:]),
	})
}

// Decode restores a model, rejecting corrupt payloads and foreign schemas
func Decode(data []byte) (*Model, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, errors.Wrap(err, "unmarshal model artifact")
	}

	sum := sha256.Sum256(a.Forest)
	if hex.EncodeToString(sum[:]) != a.Checksum {
		return nil, errors.Wrap(errors.ErrInvalidInput, "model artifact checksum mismatch")
	}
	if !slices.Equal(a.Schema, Schema) {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "model artifact schema %v does not match %v", a.Schema, Schema)
	}

	var f forest.Forest
	if err := json.Unmarshal(a.Forest, &f); err != nil {
		return nil, errors.Wrap(err, "unmarshal forest")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.Features != len(Schema) {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "forest expects %d features, schema has %d", f.Features, len(Schema))
	}

	return &Model{
		Version:   a.Version,
		Schema:    a.Schema,
		TrainedAt: a.TrainedAt,
		Samples:   a.Samples,
		OOBRMSE:   a.OOBRMSE,
		forest:    &f,
	}, nil
}

// Persist encodes m and overwrites the store's slot
func Persist(ctx context.Context, store ArtifactStore, m *Model) (int, error) {
	data, err := Encode(m)
	if err != nil {
		return 0, err
	}
	if err := store.Save(ctx, data); err != nil {
		return 0, errors.Wrap(err, "save model artifact")
	}
	return len(data), nil
}

// Load reads and decodes the persisted model; ErrModelUnavailable when the slot is empty
func Load(ctx context.Context, store ArtifactStore) (*Model, error) {
	data, err := store.Load(ctx)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.ErrModelUnavailable
	}
	if err != nil {
		return nil, errors.Wrap(err, "load model artifact")
	}
	m, err := Decode(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode model artifact")
	}
	return m, nil
}
