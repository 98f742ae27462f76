package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optibooking/pkg/errors"
)

func TestModelArtifactStore_LoadMissing(t *testing.T) {
	store := NewModelArtifactStore(filepath.Join(t.TempDir(), "model.json"))

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestModelArtifactStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewModelArtifactStore(filepath.Join(dir, "nested", "model.json"))

	require.NoError(t, store.Save(ctx, []byte(`{"v":1}`)))
	require.NoError(t, store.Save(ctx, []byte(`{"v":2}`)))

	data, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestModelArtifactStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewModelArtifactStore(filepath.Join(t.TempDir(), "model.json"))
	assert.ErrorIs(t, store.Save(ctx, []byte("x")), context.Canceled)
}
