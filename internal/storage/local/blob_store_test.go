package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/subharvest/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("ExistingDir", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "data", "out")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("WritesAndReplaces", func(t *testing.T) {
		for _, body := range []string{"first", "second"} {
			uri, err := store.PutObject(ctx, "subscribe.txt", "text/plain", bytes.NewReader([]byte(body)))
			require.NoError(t, err)
			assert.Equal(t, "file://"+filepath.Join(dir, "subscribe.txt"), uri)
		}
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(dir, "subscribe.txt"))
		require.NoError(t, err)
		assert.Equal(t, "second", string(got))
	})

	t.Run("Nested", func(t *testing.T) {
		_, err := store.PutObject(ctx, "a/b/report.txt", "text/plain", bytes.NewReader([]byte("nested")))
		require.NoError(t, err)
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(dir, "a", "b", "report.txt"))
		require.NoError(t, err)
		assert.Equal(t, "nested", string(got))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(ctx, " ", "text/plain", bytes.NewReader(nil))
		assert.Error(t, err)
	})

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.PutObject(ctx, "../escape.txt", "text/plain", bytes.NewReader(nil))
		assert.ErrorContains(t, err, "escapes base directory")
	})
}
