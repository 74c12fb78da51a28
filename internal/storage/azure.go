package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"go.uber.org/zap"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// AzureBackend implements Backend over an Azure Blob Storage container.
type AzureBackend struct {
	client    *azblob.Client
	container string
	logger    *zap.Logger
}

// NewAzureBackend builds an AzureBackend for the given account/container,
// authenticating with an account key when provided, or the ambient
// credential chain otherwise.
func NewAzureBackend(accountURL, container, accountName, accountKey string, logger *zap.Logger) (*AzureBackend, error) {
	var (
		client *azblob.Client
		err    error
	)

	if accountName != "" && accountKey != "" {
		cred, credErr := azblob.NewSharedKeyCredential(accountName, accountKey)
		if credErr != nil {
			return nil, apperrors.Wrap("storage.NewAzureBackend", apperrors.Config, "shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(accountURL, cred, nil)
	} else {
		var cred azcore.TokenCredential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err == nil {
			client, err = azblob.NewClient(accountURL, cred, nil)
		}
	}
	if err != nil {
		return nil, apperrors.Wrap("storage.NewAzureBackend", apperrors.Config, "new client: %w", err)
	}

	return &AzureBackend{client: client, container: container, logger: logger}, nil
}

func (b *AzureBackend) UploadChunk(ctx context.Context, key string, data []byte) error {
	_, err := b.client.UploadBuffer(ctx, b.container, key, data, nil)
	if err != nil {
		return apperrors.Wrap("storage.AzureBackend.UploadChunk", apperrors.Storage, "upload %s: %w", key, err)
	}
	return nil
}

func (b *AzureBackend) DownloadChunk(ctx context.Context, key string) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, apperrors.Wrap("storage.AzureBackend.DownloadChunk", apperrors.NotFound, "download %s: %w", key, err)
		}
		return nil, apperrors.Wrap("storage.AzureBackend.DownloadChunk", apperrors.Storage, "download %s: %w", key, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, apperrors.Wrap("storage.AzureBackend.DownloadChunk", apperrors.Storage, "read body %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

func (b *AzureBackend) DeleteChunk(ctx context.Context, key string) error {
	_, err := b.client.DeleteBlob(ctx, b.container, key, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return apperrors.Wrap("storage.AzureBackend.DeleteChunk", apperrors.Storage, "delete %s: %w", key, err)
	}
	return nil
}

func (b *AzureBackend) ChunkExists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.ServiceClient().NewContainerClient(b.container).NewBlobClient(key).GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return false, nil
	}
	return false, apperrors.Wrap("storage.AzureBackend.ChunkExists", apperrors.Storage, "get properties %s: %w", key, err)
}

func (b *AzureBackend) UploadManifest(ctx context.Context, data []byte) error {
	return b.UploadChunk(ctx, manifestKey, data)
}

func (b *AzureBackend) DownloadManifest(ctx context.Context) ([]byte, error) {
	return b.DownloadChunk(ctx, manifestKey)
}

func (b *AzureBackend) TestConnection(ctx context.Context) error {
	_, err := b.client.ServiceClient().NewContainerClient(b.container).GetProperties(ctx, nil)
	if err != nil {
		return apperrors.Wrap("storage.AzureBackend.TestConnection", apperrors.Storage, "container properties: %w", err)
	}
	return nil
}

func (b *AzureBackend) Name() string { return "azure" }
