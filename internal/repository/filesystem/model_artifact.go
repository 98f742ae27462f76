package filesystem

import (
	"context"
	"os"
	"path/filepath"

	"optibooking/pkg/errors"
)

// ModelArtifactStore keeps the model in a single file that every save overwrites
type ModelArtifactStore struct {
	path string
}

// NewModelArtifactStore creates a store writing to path
func NewModelArtifactStore(path string) *ModelArtifactStore {
	return &ModelArtifactStore{path: path}
}

// Path returns the artifact location
func (s *ModelArtifactStore) Path() string {
	return s.path
}

// Save writes to a temp file in the same directory and renames it over the
// target, so readers see either the old or the new artifact.
func (s *ModelArtifactStore) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create artifact dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp artifact")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write temp artifact")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to sync temp artifact")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp artifact")
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrapf(err, "failed to replace artifact %s", s.path)
	}
	return nil
}

// Load reads the artifact; errors.ErrNotFound when it was never written
func (s *ModelArtifactStore) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(errors.ErrNotFound, "model artifact %s", s.path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read artifact %s", s.path)
	}
	return data, nil
}
