package local

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "movie-cache.json")

	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":"1"}`), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte(`{}`), 0o600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{}`, string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteFileAtomicTargetIsDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "taken")
	require.NoError(t, os.Mkdir(target, 0o750))

	err := WriteFileAtomic(target, []byte("x"), 0o600)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
