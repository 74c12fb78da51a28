package catalog

import (
	"context"
	"database/sql"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// ChunkLocation is one physical copy of a chunk's ciphertext.
type ChunkLocation struct {
	ProviderID int64
	StorageKey string
}

// ChunkLocations is the result of resolving a chunk hash to everywhere its
// ciphertext lives, ordered primary-first.
type ChunkLocations struct {
	Nonce          []byte
	KeyID          string
	Locations      []ChunkLocation
	SizeEncrypted  int64
	SizeCompressed *int64
}

// InsertOrDedupChunk atomically either increments ref_count on an existing
// row (returning is_new=false) or inserts a new row with ref_count=1
// (returning is_new=true). The upsert is serialized by Postgres so
// concurrent inserts of the same hash never produce two rows.
func (c *Catalog) InsertOrDedupChunk(
	ctx context.Context,
	hash string, nonce []byte, keyID string, providerID int64, storageKey string,
	sizePlain, sizeEncrypted int64, sizeCompressed *int64,
) (isNew bool, err error) {
	var xmax string
	err = c.db.QueryRowContext(ctx, `
		INSERT INTO chunks (hash, nonce, key_id, provider_id, storage_key, size_plain, size_encrypted, size_compressed, ref_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1)
		ON CONFLICT (hash) DO UPDATE SET ref_count = chunks.ref_count + 1
		RETURNING xmax
	`, hash, nonce, keyID, providerID, storageKey, sizePlain, sizeEncrypted, sizeCompressed).Scan(&xmax)
	if err != nil {
		return false, apperrors.Wrap("catalog.InsertOrDedupChunk", apperrors.Database, "upsert %s: %w", hash, err)
	}
	// xmax is "0" on a fresh insert, non-zero when the ON CONFLICT branch fired.
	return xmax == "0", nil
}

// InsertChunkReplicas records additional physical locations for a chunk,
// idempotent on (hash, provider_id).
func (c *Catalog) InsertChunkReplicas(ctx context.Context, hash string, locations []ChunkLocation) error {
	if len(locations) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap("catalog.InsertChunkReplicas", apperrors.Database, "begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, loc := range locations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunk_replicas (chunk_hash, provider_id, storage_key)
			VALUES ($1,$2,$3)
			ON CONFLICT (chunk_hash, provider_id) DO NOTHING
		`, hash, loc.ProviderID, loc.StorageKey); err != nil {
			return apperrors.Wrap("catalog.InsertChunkReplicas", apperrors.Database, "insert replica %s/%d: %w", hash, loc.ProviderID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap("catalog.InsertChunkReplicas", apperrors.Database, "commit: %w", err)
	}
	return nil
}

// GetChunkLocations resolves a chunk hash to its primary location followed
// by every replica location that differs from the primary.
func (c *Catalog) GetChunkLocations(ctx context.Context, hash string) (ChunkLocations, error) {
	var (
		res            ChunkLocations
		primaryID      int64
		primaryKey     string
		sizeCompressed sql.NullInt64
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT nonce, key_id, provider_id, storage_key, size_encrypted, size_compressed
		FROM chunks WHERE hash = $1
	`, hash).Scan(&res.Nonce, &res.KeyID, &primaryID, &primaryKey, &res.SizeEncrypted, &sizeCompressed)
	if err == sql.ErrNoRows {
		return ChunkLocations{}, apperrors.Wrap("catalog.GetChunkLocations", apperrors.NotFound, "chunk %s not found", hash)
	}
	if err != nil {
		return ChunkLocations{}, apperrors.Wrap("catalog.GetChunkLocations", apperrors.Database, "query %s: %w", hash, err)
	}
	if sizeCompressed.Valid {
		res.SizeCompressed = &sizeCompressed.Int64
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT provider_id, storage_key FROM chunk_replicas WHERE chunk_hash = $1`, hash)
	if err != nil {
		return ChunkLocations{}, apperrors.Wrap("catalog.GetChunkLocations", apperrors.Database, "query replicas %s: %w", hash, err)
	}
	defer rows.Close()

	res.Locations = append(res.Locations, ChunkLocation{ProviderID: primaryID, StorageKey: primaryKey})
	for rows.Next() {
		var loc ChunkLocation
		if err := rows.Scan(&loc.ProviderID, &loc.StorageKey); err != nil {
			return ChunkLocations{}, apperrors.Wrap("catalog.GetChunkLocations", apperrors.Database, "scan replica: %w", err)
		}
		if loc.ProviderID == primaryID && loc.StorageKey == primaryKey {
			continue
		}
		res.Locations = append(res.Locations, loc)
	}
	return res, rows.Err()
}

// DecrementChunkRef decrements a chunk's ref_count; if it reaches zero,
// collects all physical locations (primary + replicas, deduplicated) and
// deletes the chunk row (cascading replica rows). Otherwise returns an
// empty location list.
func (c *Catalog) DecrementChunkRef(ctx context.Context, hash string) ([]ChunkLocation, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Wrap("catalog.DecrementChunkRef", apperrors.Database, "begin tx: %w", err)
	}
	defer tx.Rollback()

	var refCount int
	err = tx.QueryRowContext(ctx,
		`UPDATE chunks SET ref_count = ref_count - 1 WHERE hash = $1 RETURNING ref_count`, hash).Scan(&refCount)
	if err == sql.ErrNoRows {
		return nil, apperrors.Wrap("catalog.DecrementChunkRef", apperrors.NotFound, "chunk %s not found", hash)
	}
	if err != nil {
		return nil, apperrors.Wrap("catalog.DecrementChunkRef", apperrors.Database, "decrement %s: %w", hash, err)
	}

	if refCount > 0 {
		return nil, tx.Commit()
	}

	locs, err := collectLocations(ctx, tx, hash)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE hash = $1`, hash); err != nil {
		return nil, apperrors.Wrap("catalog.DecrementChunkRef", apperrors.Database, "delete chunk %s: %w", hash, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Wrap("catalog.DecrementChunkRef", apperrors.Database, "commit: %w", err)
	}
	return locs, nil
}

func collectLocations(ctx context.Context, tx *sql.Tx, hash string) ([]ChunkLocation, error) {
	var primary ChunkLocation
	err := tx.QueryRowContext(ctx,
		`SELECT provider_id, storage_key FROM chunks WHERE hash = $1`, hash).Scan(&primary.ProviderID, &primary.StorageKey)
	if err != nil {
		return nil, apperrors.Wrap("catalog.collectLocations", apperrors.Database, "primary %s: %w", hash, err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT provider_id, storage_key FROM chunk_replicas WHERE chunk_hash = $1`, hash)
	if err != nil {
		return nil, apperrors.Wrap("catalog.collectLocations", apperrors.Database, "replicas %s: %w", hash, err)
	}
	defer rows.Close()

	seen := map[ChunkLocation]bool{primary: true}
	out := []ChunkLocation{primary}
	for rows.Next() {
		var loc ChunkLocation
		if err := rows.Scan(&loc.ProviderID, &loc.StorageKey); err != nil {
			return nil, apperrors.Wrap("catalog.collectLocations", apperrors.Database, "scan replica: %w", err)
		}
		if !seen[loc] {
			seen[loc] = true
			out = append(out, loc)
		}
	}
	return out, rows.Err()
}

// FindOrphanChunks returns hashes of chunks with ref_count <= 0 and no
// referent in object_chunks or file_chunks.
func (c *Catalog) FindOrphanChunks(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT hash FROM chunks c
		WHERE c.ref_count <= 0
		AND NOT EXISTS (SELECT 1 FROM object_chunks oc WHERE oc.chunk_hash = c.hash)
		AND NOT EXISTS (SELECT 1 FROM file_chunks fc WHERE fc.chunk_hash = c.hash)
	`)
	if err != nil {
		return nil, apperrors.Wrap("catalog.FindOrphanChunks", apperrors.Database, "query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, apperrors.Wrap("catalog.FindOrphanChunks", apperrors.Database, "scan: %w", err)
		}
		out = append(out, hash)
	}
	return out, rows.Err()
}

// FindOrphanChunkReplicas returns replicas whose owning chunk is absent.
// A chunk row whose ref_count has reached zero is deleted in the same
// transaction as its decrement, so "owning chunk absent" is the only
// orphan condition replicas can reach.
func (c *Catalog) FindOrphanChunkReplicas(ctx context.Context) ([]ChunkLocation, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT cr.provider_id, cr.storage_key FROM chunk_replicas cr
		WHERE NOT EXISTS (SELECT 1 FROM chunks c WHERE c.hash = cr.chunk_hash)
	`)
	if err != nil {
		return nil, apperrors.Wrap("catalog.FindOrphanChunkReplicas", apperrors.Database, "query: %w", err)
	}
	defer rows.Close()

	var out []ChunkLocation
	for rows.Next() {
		var loc ChunkLocation
		if err := rows.Scan(&loc.ProviderID, &loc.StorageKey); err != nil {
			return nil, apperrors.Wrap("catalog.FindOrphanChunkReplicas", apperrors.Database, "scan: %w", err)
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}
