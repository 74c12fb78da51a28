package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalBackend_UploadDownloadRoundtrip(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	key := "enigma/chunks/ab/cd/abcd1234"

	require.NoError(t, b.UploadChunk(ctx, key, []byte("hello")))

	got, err := b.DownloadChunk(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestLocalBackend_ChunkExists(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	exists, err := b.ChunkExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, b.UploadChunk(ctx, "present", []byte("x")))
	exists, err = b.ChunkExists(ctx, "present")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalBackend_DeleteMissingKeyIsIdempotent(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	assert.NoError(t, b.DeleteChunk(context.Background(), "never-existed"))
}

func TestLocalBackend_ManifestRoundtrip(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.UploadManifest(ctx, []byte(`{"version":1}`)))

	got, err := b.DownloadManifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(got))
}

func TestLocalBackend_DownloadMissingChunkIsNotFound(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	_, err = b.DownloadChunk(context.Background(), "nope")
	assert.Error(t, err)
}
