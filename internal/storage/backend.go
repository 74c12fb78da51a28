// Package storage implements the chunk and manifest storage backends:
// local filesystem, S3 and S3-compatible, Azure Blob, and GCS.
package storage

import "context"

// Backend is the storage contract every provider implementation satisfies.
// upload_chunk is write-overwrite and idempotent on identical key+bytes
// since chunks are content-addressed; delete_chunk on a missing key MUST
// succeed.
type Backend interface {
	UploadChunk(ctx context.Context, key string, data []byte) error
	DownloadChunk(ctx context.Context, key string) ([]byte, error)
	DeleteChunk(ctx context.Context, key string) error
	ChunkExists(ctx context.Context, key string) (bool, error)

	UploadManifest(ctx context.Context, data []byte) error
	DownloadManifest(ctx context.Context) ([]byte, error)

	TestConnection(ctx context.Context) error
	Name() string
}

const manifestKey = "enigma/manifest.json"
