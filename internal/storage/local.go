package storage

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// LocalBackend stores chunks and the manifest under a base directory on the
// local filesystem.
type LocalBackend struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalBackend builds a Backend rooted at basePath, creating it if
// necessary.
func NewLocalBackend(basePath string, logger *zap.Logger) (*LocalBackend, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, apperrors.Wrap("storage.NewLocalBackend", apperrors.Storage, "create base dir: %w", err)
	}
	return &LocalBackend{basePath: basePath, logger: logger}, nil
}

func (b *LocalBackend) path(key string) string {
	return filepath.Join(b.basePath, filepath.FromSlash(key))
}

func (b *LocalBackend) UploadChunk(ctx context.Context, key string, data []byte) error {
	return b.writeFile(b.path(key), data)
}

func (b *LocalBackend) writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Wrap("storage.LocalBackend", apperrors.Storage, "mkdir %s: %w", filepath.Dir(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return apperrors.Wrap("storage.LocalBackend", apperrors.Storage, "create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.Wrap("storage.LocalBackend", apperrors.Storage, "write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Wrap("storage.LocalBackend", apperrors.Storage, "close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return apperrors.Wrap("storage.LocalBackend", apperrors.Storage, "rename into place: %w", err)
	}
	return nil
}

func (b *LocalBackend) DownloadChunk(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap("storage.LocalBackend.DownloadChunk", apperrors.NotFound, "chunk %s: %w", key, err)
		}
		return nil, apperrors.Wrap("storage.LocalBackend.DownloadChunk", apperrors.Storage, "read %s: %w", key, err)
	}
	return data, nil
}

func (b *LocalBackend) DeleteChunk(ctx context.Context, key string) error {
	if err := os.Remove(b.path(key)); err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap("storage.LocalBackend.DeleteChunk", apperrors.Storage, "remove %s: %w", key, err)
	}
	return nil
}

func (b *LocalBackend) ChunkExists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(b.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, apperrors.Wrap("storage.LocalBackend.ChunkExists", apperrors.Storage, "stat %s: %w", key, err)
}

func (b *LocalBackend) UploadManifest(ctx context.Context, data []byte) error {
	return b.writeFile(b.path(manifestKey), data)
}

func (b *LocalBackend) DownloadManifest(ctx context.Context) ([]byte, error) {
	return b.DownloadChunk(ctx, manifestKey)
}

func (b *LocalBackend) TestConnection(ctx context.Context) error {
	_, err := os.Stat(b.basePath)
	if err != nil {
		return apperrors.Wrap("storage.LocalBackend.TestConnection", apperrors.Storage, "stat base dir: %w", err)
	}
	return nil
}

func (b *LocalBackend) Name() string { return "local" }
