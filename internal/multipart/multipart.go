// Package multipart implements staged multipart upload assembly on top of
// the catalog's part-buffering tables and the pipeline's PUT operation.
package multipart

import (
	"context"
	"crypto/md5" //nolint:gosec // etag compatibility, not a security boundary
	"encoding/hex"

	"github.com/FairForge/vaultaire/internal/apperrors"
	"github.com/FairForge/vaultaire/internal/catalog"
	"github.com/FairForge/vaultaire/internal/pipeline"
)

// Staging wires multipart upload creation, part buffering, completion and
// abort over a catalog and the PUT pipeline used to materialize the
// completed object.
type Staging struct {
	cat *catalog.Catalog
	pl  *pipeline.Pipeline
}

// New builds a Staging.
func New(cat *catalog.Catalog, pl *pipeline.Pipeline) *Staging {
	return &Staging{cat: cat, pl: pl}
}

// Create starts a new multipart upload and returns its v7 UUID.
func (s *Staging) Create(ctx context.Context, bucket, key string) (string, error) {
	nsID, err := s.cat.GetNamespaceID(ctx, bucket)
	if err != nil {
		return "", err
	}
	return s.cat.CreateMultipartUpload(ctx, nsID, key)
}

// UploadPart buffers one part's bytes, upserting on part number, and
// returns its etag (MD5 hex, matching the S3 wire contract).
func (s *Staging) UploadPart(ctx context.Context, uploadID string, partNumber int, data []byte) (string, error) {
	sum := md5.Sum(data)
	etag := hex.EncodeToString(sum[:])
	if err := s.cat.InsertMultipartPart(ctx, uploadID, partNumber, data, etag); err != nil {
		return "", err
	}
	return etag, nil
}

// Complete concatenates staged parts in ascending part-number order, runs
// the PUT pipeline on the concatenation, then purges staging. The
// resulting object's etag is SHA-256 of the concatenation, per the PUT
// pipeline's own etag rule, not the per-part MD5s.
func (s *Staging) Complete(ctx context.Context, uploadID, contentType string) (pipeline.PutResult, error) {
	const op = "multipart.Complete"

	nsID, key, err := s.cat.GetMultipartUploadNsKey(ctx, uploadID)
	if err != nil {
		return pipeline.PutResult{}, err
	}

	parts, err := s.cat.GetMultipartParts(ctx, uploadID)
	if err != nil {
		return pipeline.PutResult{}, err
	}
	if len(parts) == 0 {
		return pipeline.PutResult{}, apperrors.Wrap(op, apperrors.InvalidInput, "upload %s has no parts", uploadID)
	}

	var body []byte
	for _, p := range parts {
		body = append(body, p.Data...)
	}

	bucket, err := s.cat.GetNamespaceName(ctx, nsID)
	if err != nil {
		return pipeline.PutResult{}, err
	}

	res, err := s.pl.Put(ctx, bucket, key, contentType, body)
	if err != nil {
		return pipeline.PutResult{}, err
	}

	if err := s.cat.AbortMultipartUpload(ctx, uploadID); err != nil {
		return pipeline.PutResult{}, apperrors.Wrap(op, apperrors.Database, "purge staging for %s: %w", uploadID, err)
	}
	return res, nil
}

// Abort purges staging rows for an upload; no chunks were ever created.
func (s *Staging) Abort(ctx context.Context, uploadID string) error {
	return s.cat.AbortMultipartUpload(ctx, uploadID)
}
