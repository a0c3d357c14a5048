package safe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFile(t *testing.T) {
	t.Run("reads regular file", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "profile_data.json")
		content := []byte(`{"metadata":{}}`)
		require.NoError(t, os.WriteFile(src, content, 0o644))

		got, err := ReadFile(src, nil)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("rejects symlink by default", func(t *testing.T) {
		tmpDir := t.TempDir()
		src := filepath.Join(tmpDir, "source.json")
		link := filepath.Join(tmpDir, "link.json")
		require.NoError(t, os.WriteFile(src, []byte("{}"), 0o644))
		require.NoError(t, os.Symlink(src, link))

		_, err := ReadFile(link, nil)
		assert.ErrorContains(t, err, "symlink")

		got, err := ReadFile(link, &ReadOptions{AllowSymlinks: true})
		require.NoError(t, err)
		assert.Equal(t, "{}", string(got))
	})

	t.Run("rejects directories", func(t *testing.T) {
		_, err := ReadFile(t.TempDir(), nil)
		assert.ErrorContains(t, err, "not a regular file")
	})

	t.Run("rejects file exceeding max size", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "big.json")
		require.NoError(t, os.WriteFile(src, make([]byte, 1024), 0o644))

		_, err := ReadFile(src, &ReadOptions{MaxSize: 512})
		assert.ErrorContains(t, err, "maximum allowed size")
	})
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile_data.json")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0o600, zerolog.Nop()))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0o600, zerolog.Nop()))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteFileAtomic_MissingDir(t *testing.T) {
	err := WriteFileAtomic(filepath.Join(t.TempDir(), "missing", "x.json"), []byte("x"), 0o600, zerolog.Nop())
	assert.Error(t, err)
}
