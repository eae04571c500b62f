package images

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	storage, err := NewStorage(t.TempDir(), "icons")
	require.NoError(t, err)
	return storage
}

func TestNewStorage(t *testing.T) {
	t.Run("creates subdirectory", func(t *testing.T) {
		tmpDir := t.TempDir()

		_, err := NewStorage(tmpDir, "icons")
		require.NoError(t, err)

		info, err := os.Stat(filepath.Join(tmpDir, "icons"))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("creates nested base path", func(t *testing.T) {
		nestedPath := filepath.Join(t.TempDir(), "a", "b")

		_, err := NewStorage(nestedPath, "photos")
		require.NoError(t, err)

		info, err := os.Stat(filepath.Join(nestedPath, "photos"))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("rejects empty base path", func(t *testing.T) {
		_, err := NewStorage("", "icons")
		assert.Error(t, err)
	})

	t.Run("rejects empty subdirectory", func(t *testing.T) {
		_, err := NewStorage(t.TempDir(), "")
		assert.Error(t, err)
	})
}

func TestStorage_SaveAndGet(t *testing.T) {
	storage := newTestStorage(t)
	testData := []byte("fake image bytes")

	t.Run("round trips image data", func(t *testing.T) {
		err := storage.Save("icon-123", testData)
		require.NoError(t, err)

		data, err := storage.Get("icon-123")
		require.NoError(t, err)
		assert.Equal(t, testData, data)
	})

	t.Run("overwrites existing image", func(t *testing.T) {
		require.NoError(t, storage.Save("icon-dup", []byte("initial")))

		newData := []byte("replacement")
		require.NoError(t, storage.Save("icon-dup", newData))

		data, err := storage.Get("icon-dup")
		require.NoError(t, err)
		assert.Equal(t, newData, data)
	})

	t.Run("rejects empty ID", func(t *testing.T) {
		err := storage.Save("", testData)
		assert.Error(t, err)
	})

	t.Run("rejects empty data", func(t *testing.T) {
		err := storage.Save("icon-123", []byte{})
		assert.Error(t, err)
	})

	t.Run("errors for missing image", func(t *testing.T) {
		_, err := storage.Get("icon-missing")
		assert.Error(t, err)
	})
}

func TestStorage_Exists(t *testing.T) {
	storage := newTestStorage(t)

	assert.False(t, storage.Exists("icon-1"))
	require.NoError(t, storage.Save("icon-1", []byte("data")))
	assert.True(t, storage.Exists("icon-1"))
	assert.False(t, storage.Exists(""))
}

func TestStorage_Delete(t *testing.T) {
	storage := newTestStorage(t)

	require.NoError(t, storage.Save("icon-1", []byte("data")))
	require.NoError(t, storage.Delete("icon-1"))
	assert.False(t, storage.Exists("icon-1"))

	// Deleting again is not an error.
	assert.NoError(t, storage.Delete("icon-1"))
}

func TestStorage_Hash(t *testing.T) {
	storage := newTestStorage(t)

	require.NoError(t, storage.Save("icon-1", []byte("data")))

	hash1, err := storage.Hash("icon-1")
	require.NoError(t, err)
	assert.Len(t, hash1, 64) // hex-encoded SHA256

	// Same content, same hash.
	require.NoError(t, storage.Save("icon-2", []byte("data")))
	hash2, err := storage.Hash("icon-2")
	require.NoError(t, err)
	assert.Equal(t, hash1, hash2)

	// Different content, different hash.
	require.NoError(t, storage.Save("icon-3", []byte("other")))
	hash3, err := storage.Hash("icon-3")
	require.NoError(t, err)
	assert.NotEqual(t, hash1, hash3)
}
