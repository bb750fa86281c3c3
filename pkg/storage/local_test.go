package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_SaveOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "final_video.mp4")
	ls := NewLocalStorage()
	ctx := context.Background()

	require.NoError(t, ls.Save(ctx, "file://"+path, strings.NewReader("frames"), ""))
	assert.FileExists(t, path)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file is renamed away")

	rc, err := ls.Open(ctx, "file://"+path)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "frames", string(data))
}

func TestLocalStorage_OpenMissing(t *testing.T) {
	_, err := NewLocalStorage().Open(context.Background(), "file://"+filepath.Join(t.TempDir(), "missing.mp4"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_Exists(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.png")
	require.NoError(t, os.WriteFile(existing, []byte("png"), 0o644))

	ls := NewLocalStorage()
	ctx := context.Background()

	ok, err := ls.Exists(ctx, "file://"+existing)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ls.Exists(ctx, "file://"+filepath.Join(dir, "nope.png"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ls.Exists(ctx, "file://"+dir)
	require.NoError(t, err)
	assert.False(t, ok, "directories are not objects")
}

func TestLocalStorage_Remove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	ls := NewLocalStorage()
	ctx := context.Background()

	require.NoError(t, ls.Remove(ctx, "file://"+path))
	assert.NoFileExists(t, path)

	assert.NoError(t, ls.Remove(ctx, "file://"+path), "removing twice is fine")
}

func TestLocalStorage_WrongScheme(t *testing.T) {
	_, err := NewLocalStorage().Open(context.Background(), "https://example.com/a.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme https://")
}
