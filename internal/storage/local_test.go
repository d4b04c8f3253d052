package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDeletePhotosRemovesHolderDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "openid-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("x"), 0o644))
	other := filepath.Join(root, "openid-2")
	require.NoError(t, os.MkdirAll(other, 0o755))

	store := NewPhotoStore(root, zap.NewNop())
	require.NoError(t, store.DeletePhotos(context.Background(), "openid-1"))

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(other)
	assert.NoError(t, err)

	// nothing stored is fine
	assert.NoError(t, store.DeletePhotos(context.Background(), "openid-3"))
}

func TestDeletePhotosRejectsTraversal(t *testing.T) {
	store := NewPhotoStore(t.TempDir(), zap.NewNop())
	for _, key := range []string{"", "..", "../etc", "a/b", `a\b`} {
		assert.ErrorIs(t, store.DeletePhotos(context.Background(), key), ErrInvalidKey, key)
	}
}

func TestPostStoreSave(t *testing.T) {
	root := t.TempDir()
	store := NewPostStore(root, "/uploads/posts/", zap.NewNop())

	url, err := store.Save(context.Background(), "007", []byte("hello"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/posts/007/"))
	assert.True(t, strings.HasSuffix(url, ".md"))

	name := filepath.Base(url)
	data, err := os.ReadFile(filepath.Join(root, "007", name))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = store.Save(context.Background(), "../x", []byte("nope"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}
