package storage

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// GCSBackend implements Backend over Google Cloud Storage, authenticating
// via application-default credentials.
type GCSBackend struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// NewGCSBackend builds a GCSBackend for the given bucket.
func NewGCSBackend(ctx context.Context, bucket string, logger *zap.Logger, opts ...option.ClientOption) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, apperrors.Wrap("storage.NewGCSBackend", apperrors.Config, "new client: %w", err)
	}
	return &GCSBackend{client: client, bucket: bucket, logger: logger}, nil
}

func (b *GCSBackend) object(key string) *storage.ObjectHandle {
	return b.client.Bucket(b.bucket).Object(key)
}

func (b *GCSBackend) UploadChunk(ctx context.Context, key string, data []byte) error {
	w := b.object(key).Retryer(storage.WithPolicy(storage.RetryAlways)).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return apperrors.Wrap("storage.GCSBackend.UploadChunk", apperrors.Storage, "write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return apperrors.Wrap("storage.GCSBackend.UploadChunk", apperrors.Storage, "close writer %s: %w", key, err)
	}
	return nil
}

func (b *GCSBackend) DownloadChunk(ctx context.Context, key string) ([]byte, error) {
	r, err := b.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, apperrors.Wrap("storage.GCSBackend.DownloadChunk", apperrors.NotFound, "read %s: %w", key, err)
		}
		return nil, apperrors.Wrap("storage.GCSBackend.DownloadChunk", apperrors.Storage, "read %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.Wrap("storage.GCSBackend.DownloadChunk", apperrors.Storage, "read body %s: %w", key, err)
	}
	return data, nil
}

func (b *GCSBackend) DeleteChunk(ctx context.Context, key string) error {
	if err := b.object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return apperrors.Wrap("storage.GCSBackend.DeleteChunk", apperrors.Storage, "delete %s: %w", key, err)
	}
	return nil
}

func (b *GCSBackend) ChunkExists(ctx context.Context, key string) (bool, error) {
	_, err := b.object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, apperrors.Wrap("storage.GCSBackend.ChunkExists", apperrors.Storage, "attrs %s: %w", key, err)
}

func (b *GCSBackend) UploadManifest(ctx context.Context, data []byte) error {
	return b.UploadChunk(ctx, manifestKey, data)
}

func (b *GCSBackend) DownloadManifest(ctx context.Context) ([]byte, error) {
	return b.DownloadChunk(ctx, manifestKey)
}

func (b *GCSBackend) TestConnection(ctx context.Context) error {
	_, err := b.client.Bucket(b.bucket).Attrs(ctx)
	if err != nil {
		return apperrors.Wrap("storage.GCSBackend.TestConnection", apperrors.Storage, "bucket attrs %s: %w", b.bucket, err)
	}
	return nil
}

func (b *GCSBackend) Name() string { return "gcs" }
