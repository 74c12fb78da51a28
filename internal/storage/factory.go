package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/FairForge/vaultaire/internal/apperrors"
	"github.com/FairForge/vaultaire/internal/types"
)

// ProviderConfig is the configuration-driven description of one storage
// provider, mirroring a catalog Provider row plus backend-specific
// connection fields.
type ProviderConfig struct {
	Name        string
	Type        types.ProviderType
	Bucket      string
	Region      string
	Weight      uint32
	EndpointURL string
	PathStyle   bool
	AccessKey   string
	SecretKey   string
}

// Open constructs the Backend for one provider configuration.
func Open(ctx context.Context, cfg ProviderConfig, logger *zap.Logger, basePath string) (Backend, error) {
	switch cfg.Type {
	case types.ProviderLocal:
		return NewLocalBackend(basePath, logger)
	case types.ProviderS3:
		return NewS3Backend(ctx, S3Config{
			Bucket: cfg.Bucket,
			Region: cfg.Region,
		}, logger)
	case types.ProviderS3Compatible:
		return NewS3Backend(ctx, S3Config{
			Bucket:      cfg.Bucket,
			Region:      cfg.Region,
			EndpointURL: cfg.EndpointURL,
			PathStyle:   cfg.PathStyle,
			AccessKey:   cfg.AccessKey,
			SecretKey:   cfg.SecretKey,
		}, logger)
	case types.ProviderAzure:
		return NewAzureBackend(cfg.EndpointURL, cfg.Bucket, cfg.AccessKey, cfg.SecretKey, logger)
	case types.ProviderGCS:
		return NewGCSBackend(ctx, cfg.Bucket, logger)
	default:
		return nil, apperrors.Wrap("storage.Open", apperrors.Config, "unknown provider type %q", cfg.Type)
	}
}
