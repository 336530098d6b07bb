package storagesvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
)

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewLocalStorage(root, "http://localhost:8000/media/")
	require.NoError(t, err)

	stored, err := store.Save(ctx, "applications/APP-20240101-0A1B2C3D/transcript.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "applications/APP-20240101-0A1B2C3D/transcript.pdf", stored.Path)
	assert.EqualValues(t, 4, stored.Size)
	assert.FileExists(t, filepath.Join(root, "applications", "APP-20240101-0A1B2C3D", "transcript.pdf"))

	rc, err := store.Open(ctx, stored.Path)
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF", string(content))

	assert.Equal(t, "http://localhost:8000/media/"+stored.Path, store.URL(stored.Path))

	files, err := store.List(ctx, "applications/APP-20240101-0A1B2C3D")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, stored.Path, files[0].Path)

	require.NoError(t, store.Delete(ctx, stored.Path))
	require.NoError(t, store.Delete(ctx, stored.Path))
	_, err = store.Open(ctx, stored.Path)
	assert.True(t, core.IsNotFound(err))
}

func TestLocalStorage_StaysUnderRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewLocalStorage(filepath.Join(root, "media"), "")
	require.NoError(t, err)

	stored, err := store.Save(ctx, "../../etc/avatar.png", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "etc/avatar.png", stored.Path)
	assert.FileExists(t, filepath.Join(root, "media", "etc", "avatar.png"))

	_, err = store.Save(ctx, "/", strings.NewReader("x"))
	assert.Equal(t, ErrInvalidPath, err)
}

func TestLocalStorage_ListSortsOldestFirst(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewLocalStorage(root, "")
	require.NoError(t, err)

	_, err = store.Save(ctx, "exports/new.csv", strings.NewReader("b"))
	require.NoError(t, err)
	_, err = store.Save(ctx, "exports/old.csv", strings.NewReader("a"))
	require.NoError(t, err)
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, "exports", "old.csv"), old, old))

	files, err := store.List(ctx, "exports")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "exports/old.csv", files[0].Path)

	missing, err := store.List(ctx, "lessons")
	require.NoError(t, err)
	assert.Empty(t, missing)
}
