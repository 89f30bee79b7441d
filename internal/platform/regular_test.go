package platform

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRegular(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("hello"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))

	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Close() })

	t.Run("regular file", func(t *testing.T) {
		t.Parallel()
		f, err := OpenRegular(root, "file.txt")
		require.NoError(t, err)
		defer f.Close()

		buf := make([]byte, 5)
		_, err = f.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(buf))
	})

	t.Run("directory", func(t *testing.T) {
		t.Parallel()
		_, err := OpenRegular(root, "sub")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotRegular))
	})

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		_, err := OpenRegular(root, "missing.txt")
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("escape", func(t *testing.T) {
		t.Parallel()
		_, err := OpenRegular(root, "../outside.txt")
		require.Error(t, err)
	})
}

func TestOpenRegularSymlink(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target.txt"), []byte("x"), 0o600))
	if err := os.Symlink("target.txt", filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Close() })

	_, err = OpenRegular(root, "link.txt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSymlink))
}
