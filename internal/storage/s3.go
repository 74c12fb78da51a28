package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// S3Config configures an S3Backend; leaving EndpointURL empty uses AWS's
// default endpoint resolution, while setting it targets an S3-compatible
// provider (Lyve, MinIO, etc).
type S3Config struct {
	Bucket      string
	Region      string
	EndpointURL string
	PathStyle   bool
	AccessKey   string
	SecretKey   string
}

// S3Backend implements Backend over AWS S3 or any S3-compatible endpoint.
type S3Backend struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

// NewS3Backend builds an S3Backend. When cfg.AccessKey/SecretKey are set,
// static credentials are used instead of the default chain; when
// cfg.EndpointURL is set, the client targets that endpoint with forced
// path-style addressing if requested.
func NewS3Backend(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Backend, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperrors.Wrap("storage.NewS3Backend", apperrors.Config, "load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &S3Backend{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (b *S3Backend) UploadChunk(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return apperrors.Wrap("storage.S3Backend.UploadChunk", apperrors.Storage, "put %s: %w", key, err)
	}
	return nil
}

func (b *S3Backend) DownloadChunk(ctx context.Context, key string) ([]byte, error) {
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, apperrors.Wrap("storage.S3Backend.DownloadChunk", apperrors.NotFound, "get %s: %w", key, err)
		}
		return nil, apperrors.Wrap("storage.S3Backend.DownloadChunk", apperrors.Storage, "get %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap("storage.S3Backend.DownloadChunk", apperrors.Storage, "read body %s: %w", key, err)
	}
	return data, nil
}

func (b *S3Backend) DeleteChunk(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return apperrors.Wrap("storage.S3Backend.DeleteChunk", apperrors.Storage, "delete %s: %w", key, err)
	}
	return nil
}

func (b *S3Backend) ChunkExists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, apperrors.Wrap("storage.S3Backend.ChunkExists", apperrors.Storage, "head %s: %w", key, err)
}

func (b *S3Backend) UploadManifest(ctx context.Context, data []byte) error {
	return b.UploadChunk(ctx, manifestKey, data)
}

func (b *S3Backend) DownloadManifest(ctx context.Context) ([]byte, error) {
	return b.DownloadChunk(ctx, manifestKey)
}

func (b *S3Backend) TestConnection(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err != nil {
		return apperrors.Wrap("storage.S3Backend.TestConnection", apperrors.Storage, "head bucket %s: %w", b.bucket, err)
	}
	return nil
}

func (b *S3Backend) Name() string { return "s3" }
