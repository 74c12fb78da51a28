package catalog

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// CreateMultipartUpload starts staging for a new multipart upload and
// returns its v7 UUID.
func (c *Catalog) CreateMultipartUpload(ctx context.Context, namespaceID int64, key string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", apperrors.Wrap("catalog.CreateMultipartUpload", apperrors.Internal, "generate uuid: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO multipart_uploads (id, namespace_id, key) VALUES ($1,$2,$3)`,
		id.String(), namespaceID, key)
	if err != nil {
		return "", apperrors.Wrap("catalog.CreateMultipartUpload", apperrors.Database, "insert: %w", err)
	}
	return id.String(), nil
}

// InsertMultipartPart stages one part's bytes, upserting on part_number.
func (c *Catalog) InsertMultipartPart(ctx context.Context, uploadID string, partNumber int, data []byte, etag string) error {
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO multipart_parts (upload_id, part_number, data, etag)
		SELECT $1, $2, $3, $4
		WHERE EXISTS (SELECT 1 FROM multipart_uploads WHERE id = $1)
		ON CONFLICT (upload_id, part_number) DO UPDATE SET data = EXCLUDED.data, etag = EXCLUDED.etag
	`, uploadID, partNumber, data, etag)
	if err != nil {
		return apperrors.Wrap("catalog.InsertMultipartPart", apperrors.Database, "upsert part %d: %w", partNumber, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.Wrap("catalog.InsertMultipartPart", apperrors.NotFound, "upload %s not found", uploadID)
	}
	return nil
}

// MultipartPart is one staged part.
type MultipartPart struct {
	PartNumber int
	Data       []byte
	ETag       string
}

// GetMultipartParts returns every staged part for an upload, ordered by
// part number.
func (c *Catalog) GetMultipartParts(ctx context.Context, uploadID string) ([]MultipartPart, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT part_number, data, etag FROM multipart_parts
		WHERE upload_id = $1 ORDER BY part_number
	`, uploadID)
	if err != nil {
		return nil, apperrors.Wrap("catalog.GetMultipartParts", apperrors.Database, "query: %w", err)
	}
	defer rows.Close()

	var out []MultipartPart
	for rows.Next() {
		var p MultipartPart
		if err := rows.Scan(&p.PartNumber, &p.Data, &p.ETag); err != nil {
			return nil, apperrors.Wrap("catalog.GetMultipartParts", apperrors.Database, "scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AbortMultipartUpload purges staging rows for an upload (parts cascade).
func (c *Catalog) AbortMultipartUpload(ctx context.Context, uploadID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM multipart_uploads WHERE id = $1`, uploadID)
	if err != nil {
		return apperrors.Wrap("catalog.AbortMultipartUpload", apperrors.Database, "delete: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.Wrap("catalog.AbortMultipartUpload", apperrors.NotFound, "upload %s not found", uploadID)
	}
	return nil
}

// GetMultipartUploadNsKey resolves an upload id to its target namespace
// and key, needed by complete() to run the PUT pipeline.
func (c *Catalog) GetMultipartUploadNsKey(ctx context.Context, uploadID string) (namespaceID int64, key string, err error) {
	err = c.db.QueryRowContext(ctx,
		`SELECT namespace_id, key FROM multipart_uploads WHERE id = $1`, uploadID).Scan(&namespaceID, &key)
	if err == sql.ErrNoRows {
		return 0, "", apperrors.Wrap("catalog.GetMultipartUploadNsKey", apperrors.NotFound, "upload %s not found", uploadID)
	}
	if err != nil {
		return 0, "", apperrors.Wrap("catalog.GetMultipartUploadNsKey", apperrors.Database, "query: %w", err)
	}
	return namespaceID, key, nil
}
