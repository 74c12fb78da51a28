// Package pipeline orchestrates the data plane: PUT chunks, compresses,
// encrypts, deduplicates and disperses object bytes across storage
// backends; GET resolves, downloads (with replica fallback), decrypts and
// reassembles; DELETE and GC reconcile the catalog with physical storage.
package pipeline

import (
	"context"
	"crypto/sha256"

	"go.uber.org/zap"

	"github.com/FairForge/vaultaire/internal/apperrors"
	"github.com/FairForge/vaultaire/internal/audit"
	"github.com/FairForge/vaultaire/internal/catalog"
	"github.com/FairForge/vaultaire/internal/crypto"
	"github.com/FairForge/vaultaire/internal/distributor"
	"github.com/FairForge/vaultaire/internal/keys"
	"github.com/FairForge/vaultaire/internal/metrics"
	"github.com/FairForge/vaultaire/internal/storage"
	"github.com/FairForge/vaultaire/internal/types"
	"github.com/FairForge/vaultaire/internal/vchunk"
)

// Config controls the per-chunk transforms and replication fan-out a
// Pipeline applies; it does not vary per call.
type Config struct {
	ReplicationFactor int
	CompressionLevel  int // honored by zstd only
}

// Pipeline wires the chunker, compressor, key provider, provider
// distributor, storage backends and catalog into the PUT/GET/DELETE/GC
// operations.
type Pipeline struct {
	chunker    vchunk.Chunker
	compressor vchunk.Compressor
	keys       keys.Provider
	dist       *distributor.Distributor
	backends   map[int64]storage.Backend
	cat        *catalog.Catalog
	cfg        Config
	logger     *zap.Logger
	audit      *audit.Trail
	metrics    *metrics.Registry
}

// SetAudit attaches an audit trail that GC runs are recorded to. Optional;
// a Pipeline with no trail attached simply skips recording.
func (p *Pipeline) SetAudit(t *audit.Trail) { p.audit = t }

// SetMetrics attaches a metrics registry that Put/Get/Delete/GC update.
// Optional; a Pipeline with no registry attached skips instrumentation.
func (p *Pipeline) SetMetrics(r *metrics.Registry) { p.metrics = r }

// New builds a Pipeline. backends maps catalog provider id to the Backend
// that serves it; every provider passed to dist must have an entry here.
func New(
	chunker vchunk.Chunker,
	compressor vchunk.Compressor,
	keyProvider keys.Provider,
	dist *distributor.Distributor,
	backends map[int64]storage.Backend,
	cat *catalog.Catalog,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if cfg.ReplicationFactor < 1 {
		cfg.ReplicationFactor = 1
	}
	return &Pipeline{
		chunker:    chunker,
		compressor: compressor,
		keys:       keyProvider,
		dist:       dist,
		backends:   backends,
		cat:        cat,
		cfg:        cfg,
		logger:     logger,
	}
}

func (p *Pipeline) backendFor(providerID int64) (storage.Backend, error) {
	b, ok := p.backends[providerID]
	if !ok {
		return nil, apperrors.Wrap("pipeline.backendFor", apperrors.ProviderNotFound, "no backend registered for provider %d", providerID)
	}
	return b, nil
}

// PutResult describes a completed PUT.
type PutResult struct {
	ObjectID   int64
	ETag       string
	Size       int64
	ChunkCount int
}

// Put runs the PUT pipeline: chunk, optionally compress, AEAD-encrypt,
// distribute, deduplicate, then commit the object row and its chunk
// mappings in one transaction.
func (p *Pipeline) Put(ctx context.Context, bucket, key, contentType string, body []byte) (PutResult, error) {
	nsID, err := p.cat.GetNamespaceID(ctx, bucket)
	if err != nil {
		return PutResult{}, err
	}

	etag, keyID, refs, err := p.ChunkAndStore(ctx, body)
	if err != nil {
		return PutResult{}, err
	}

	objectID, staleLocations, err := p.cat.InsertObject(ctx, nsID, key, int64(len(body)), etag, contentType, keyID, refs)
	if err != nil {
		return PutResult{}, err
	}
	p.deleteLocations(ctx, staleLocations)

	if p.metrics != nil {
		p.metrics.ObjectPuts.Inc()
		p.metrics.BytesStored.Add(float64(len(body)))
	}

	return PutResult{ObjectID: objectID, ETag: etag, Size: int64(len(body)), ChunkCount: len(refs)}, nil
}

// ChunkAndStore runs the chunk/compress/encrypt/dedup/distribute steps of
// the PUT pipeline without touching the objects table, so callers with a
// different owning table (backup's file_chunks, multipart's eventual
// object row) can reuse the exact same physical-write path. Returns the
// SHA-256 hex etag of data, the key id used, and the ordered chunk refs.
func (p *Pipeline) ChunkAndStore(ctx context.Context, data []byte) (etag, keyID string, refs []catalog.ObjectChunkRef, err error) {
	const op = "pipeline.ChunkAndStore"

	etagBytes := sha256.Sum256(data)
	etag = types.ChunkHash(etagBytes).String()

	raw, err := p.chunker.ChunkBytes(data)
	if err != nil {
		return "", "", nil, apperrors.Wrap(op, apperrors.Chunking, "chunk data: %w", err)
	}

	currentKey, err := p.keys.CurrentKey(ctx)
	if err != nil {
		return "", "", nil, apperrors.Wrap(op, apperrors.KeyNotFound, "resolve current key: %w", err)
	}
	defer currentKey.Zero()

	refs = make([]catalog.ObjectChunkRef, 0, len(raw))
	for idx, c := range raw {
		ref, err := p.putChunk(ctx, c, idx, currentKey)
		if err != nil {
			return "", "", nil, err
		}
		refs = append(refs, ref)
	}

	return etag, currentKey.ID, refs, nil
}

func (p *Pipeline) putChunk(ctx context.Context, c types.RawChunk, idx int, key keys.ManagedKey) (catalog.ObjectChunkRef, error) {
	const op = "pipeline.putChunk"

	storageKey := c.Hash.StorageKey()

	payload := c.Data
	var sizeCompressed *int64
	if p.compressor.Algorithm() != vchunk.CompressionNone {
		cbytes, err := p.compressor.Compress(c.Data, p.cfg.CompressionLevel)
		if err != nil {
			return catalog.ObjectChunkRef{}, apperrors.Wrap(op, apperrors.Compression, "compress chunk %s: %w", c.Hash, err)
		}
		payload = cbytes
		n := int64(len(cbytes))
		sizeCompressed = &n
	}

	ec, err := crypto.EncryptChunk(payload, c.Hash, key.Key, key.ID)
	if err != nil {
		return catalog.ObjectChunkRef{}, apperrors.Wrap(op, apperrors.Encryption, "encrypt chunk %s: %w", c.Hash, err)
	}

	targets := p.dist.NextProviders(p.cfg.ReplicationFactor)
	if len(targets) == 0 {
		return catalog.ObjectChunkRef{}, apperrors.Wrap(op, apperrors.Config, "no storage providers configured")
	}
	primary := targets[0]

	hash := c.Hash.String()
	isNew, err := p.cat.InsertOrDedupChunk(ctx, hash, ec.Nonce[:], key.ID, primary.ID, storageKey,
		int64(len(c.Data)), int64(len(ec.Ciphertext)), sizeCompressed)
	if err != nil {
		return catalog.ObjectChunkRef{}, err
	}

	if p.metrics != nil {
		if isNew {
			p.metrics.ChunksWritten.Inc()
		} else {
			p.metrics.ChunksDeduped.Inc()
		}
	}

	if isNew {
		// A failed primary write takes back this call's reference, so the
		// chunk row does not outlive the PUT claiming a copy that was never
		// stored.
		undoInsert := func() {
			if _, derr := p.cat.DecrementChunkRef(ctx, hash); derr != nil {
				p.logger.Warn("compensating chunk row failed", zap.String("hash", hash), zap.Error(derr))
			}
		}
		primaryBackend, err := p.backendFor(primary.ID)
		if err != nil {
			undoInsert()
			return catalog.ObjectChunkRef{}, err
		}
		if err := primaryBackend.UploadChunk(ctx, storageKey, ec.Ciphertext); err != nil {
			undoInsert()
			return catalog.ObjectChunkRef{}, apperrors.Wrap(op, apperrors.Storage, "upload chunk %s to primary provider %d: %w", hash, primary.ID, err)
		}

		var replicaLocs []catalog.ChunkLocation
		for _, target := range targets[1:] {
			b, err := p.backendFor(target.ID)
			if err != nil {
				p.logger.Warn("replica backend missing", zap.Int64("provider_id", target.ID), zap.Error(err))
				continue
			}
			if err := b.UploadChunk(ctx, storageKey, ec.Ciphertext); err != nil {
				p.logger.Warn("replica upload failed", zap.String("hash", hash), zap.Int64("provider_id", target.ID), zap.Error(err))
				if p.metrics != nil {
					p.metrics.ReplicationFails.Inc()
				}
				continue
			}
			replicaLocs = append(replicaLocs, catalog.ChunkLocation{ProviderID: target.ID, StorageKey: storageKey})
		}
		if err := p.cat.InsertChunkReplicas(ctx, hash, replicaLocs); err != nil {
			p.logger.Warn("record chunk replicas failed", zap.String("hash", hash), zap.Error(err))
		}
	}

	return catalog.ObjectChunkRef{Hash: hash, Index: idx, Length: int64(len(c.Data))}, nil
}

// GetResult is a fully reassembled, verified object.
type GetResult struct {
	Body        []byte
	ETag        string
	ContentType string
	Size        int64
}

// Get runs the GET pipeline: resolve chunk locations, download with
// replica fallback, decrypt, decompress, verify, and reassemble in order.
func (p *Pipeline) Get(ctx context.Context, bucket, key string) (GetResult, error) {
	nsID, err := p.cat.GetNamespaceID(ctx, bucket)
	if err != nil {
		return GetResult{}, err
	}

	obj, refs, err := p.cat.GetObject(ctx, nsID, key)
	if err != nil {
		return GetResult{}, err
	}

	buf, err := p.GetChunks(ctx, refs)
	if err != nil {
		return GetResult{}, err
	}

	if p.metrics != nil {
		p.metrics.ObjectGets.Inc()
	}

	return GetResult{Body: buf, ETag: obj.ETag, ContentType: obj.ContentType, Size: obj.Size}, nil
}

// GetChunks downloads, decrypts, verifies and concatenates an ordered
// chunk-ref list, independent of any owning table. Shared by Get (objects)
// and backup (backup_files).
func (p *Pipeline) GetChunks(ctx context.Context, refs []catalog.ObjectChunkRef) ([]byte, error) {
	var buf []byte
	for _, ref := range refs {
		plaintext, err := p.getChunk(ctx, ref.Hash)
		if err != nil {
			return nil, err
		}
		buf = append(buf, plaintext...)
	}
	return buf, nil
}

func (p *Pipeline) getChunk(ctx context.Context, hash string) ([]byte, error) {
	const op = "pipeline.getChunk"

	loc, err := p.cat.GetChunkLocations(ctx, hash)
	if err != nil {
		return nil, err
	}

	wantHash, err := types.ParseChunkHash(hash)
	if err != nil {
		return nil, apperrors.Wrap(op, apperrors.Internal, "parse stored hash %s: %w", hash, err)
	}

	var ciphertext []byte
	var downloadErr error
	for _, l := range loc.Locations {
		b, err := p.backendFor(l.ProviderID)
		if err != nil {
			downloadErr = err
			p.logger.Warn("chunk location backend missing", zap.String("hash", hash), zap.Int64("provider_id", l.ProviderID), zap.Error(err))
			continue
		}
		data, err := b.DownloadChunk(ctx, l.StorageKey)
		if err != nil {
			downloadErr = err
			p.logger.Warn("chunk download failed, trying next location", zap.String("hash", hash), zap.Int64("provider_id", l.ProviderID), zap.Error(err))
			continue
		}
		ciphertext = data
		downloadErr = nil
		break
	}
	if ciphertext == nil {
		return nil, apperrors.Wrap(op, apperrors.Internal, "all locations failed for chunk %s: %w", hash, downloadErr)
	}

	var nonce [crypto.NonceSize]byte
	copy(nonce[:], loc.Nonce)

	dataKey, err := p.keys.KeyByID(ctx, loc.KeyID)
	if err != nil {
		return nil, apperrors.Wrap(op, apperrors.KeyNotFound, "resolve key %s for chunk %s: %w", loc.KeyID, hash, err)
	}
	defer dataKey.Zero()

	plaintext, err := crypto.DecryptChunk(types.EncryptedChunk{
		Hash:       wantHash,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		KeyID:      loc.KeyID,
	}, dataKey.Key)
	if err != nil {
		return nil, apperrors.Wrap(op, apperrors.Decryption, "decrypt chunk %s: %w", hash, err)
	}

	if loc.SizeCompressed != nil {
		plaintext, err = p.compressor.Decompress(plaintext)
		if err != nil {
			return nil, apperrors.Wrap(op, apperrors.Compression, "decompress chunk %s: %w", hash, err)
		}
	}

	gotHash := types.SumChunkHash(plaintext)
	if !gotHash.Equal(wantHash) {
		return nil, apperrors.Wrap(op, apperrors.HashMismatch, "chunk %s failed integrity verification", hash)
	}

	return plaintext, nil
}

// Delete removes an object's catalog row and best-effort deletes now-
// unreferenced chunk ciphertext. Physical deletion errors are logged, never
// fatal; orphan scan reconciles.
func (p *Pipeline) Delete(ctx context.Context, bucket, key string) error {
	nsID, err := p.cat.GetNamespaceID(ctx, bucket)
	if err != nil {
		return err
	}

	freed, err := p.cat.DeleteObjectByNsKey(ctx, nsID, key)
	if err != nil {
		return err
	}

	p.deleteLocations(ctx, freed)
	if p.metrics != nil {
		p.metrics.ObjectDeletes.Inc()
	}
	return nil
}

func (p *Pipeline) deleteLocations(ctx context.Context, locs []catalog.ChunkLocation) {
	for _, loc := range locs {
		b, err := p.backendFor(loc.ProviderID)
		if err != nil {
			p.logger.Warn("physical delete skipped, backend missing", zap.Int64("provider_id", loc.ProviderID), zap.Error(err))
			continue
		}
		if err := b.DeleteChunk(ctx, loc.StorageKey); err != nil {
			p.logger.Warn("physical delete failed", zap.Int64("provider_id", loc.ProviderID), zap.String("storage_key", loc.StorageKey), zap.Error(err))
		}
	}
}

// GCResult summarizes a garbage-collection pass.
type GCResult struct {
	OrphanChunks       int
	OrphanReplicas     int
	PhysicalDeleteErrs int
	DryRun             bool
}

// GC scans for orphan chunks and orphan replicas. In dry-run mode it only
// counts them; in commit mode it best-effort deletes each physical
// location then deletes the catalog rows, regardless of physical errors.
func (p *Pipeline) GC(ctx context.Context, dryRun bool) (GCResult, error) {
	orphanChunks, err := p.cat.FindOrphanChunks(ctx)
	if err != nil {
		return GCResult{}, err
	}
	orphanReplicas, err := p.cat.FindOrphanChunkReplicas(ctx)
	if err != nil {
		return GCResult{}, err
	}

	res := GCResult{OrphanChunks: len(orphanChunks), OrphanReplicas: len(orphanReplicas), DryRun: dryRun}
	if p.metrics != nil {
		p.metrics.GCRunsTotal.Inc()
		p.metrics.GCOrphansFound.Set(float64(len(orphanChunks) + len(orphanReplicas)))
	}
	if dryRun {
		if p.audit != nil {
			p.audit.Record(audit.KindGCRun, map[string]interface{}{
				"dry_run": true, "orphan_chunks": res.OrphanChunks, "orphan_replicas": res.OrphanReplicas,
			})
		}
		return res, nil
	}

	for _, hash := range orphanChunks {
		loc, err := p.cat.GetChunkLocations(ctx, hash)
		if err != nil {
			p.logger.Warn("gc: resolve locations failed", zap.String("hash", hash), zap.Error(err))
			res.PhysicalDeleteErrs++
			continue
		}
		for _, l := range loc.Locations {
			b, err := p.backendFor(l.ProviderID)
			if err != nil {
				res.PhysicalDeleteErrs++
				continue
			}
			if err := b.DeleteChunk(ctx, l.StorageKey); err != nil {
				p.logger.Warn("gc: physical delete failed", zap.String("hash", hash), zap.Error(err))
				res.PhysicalDeleteErrs++
			}
		}
		if _, err := p.cat.DecrementChunkRef(ctx, hash); err != nil {
			p.logger.Warn("gc: catalog cleanup failed", zap.String("hash", hash), zap.Error(err))
		}
	}

	for _, l := range orphanReplicas {
		b, err := p.backendFor(l.ProviderID)
		if err != nil {
			res.PhysicalDeleteErrs++
			continue
		}
		if err := b.DeleteChunk(ctx, l.StorageKey); err != nil {
			p.logger.Warn("gc: physical replica delete failed", zap.Int64("provider_id", l.ProviderID), zap.Error(err))
			res.PhysicalDeleteErrs++
		}
	}

	if p.metrics != nil && res.PhysicalDeleteErrs > 0 {
		p.metrics.GCPhysicalErrors.Add(float64(res.PhysicalDeleteErrs))
	}
	if p.audit != nil {
		p.audit.Record(audit.KindGCRun, map[string]interface{}{
			"dry_run": false, "orphan_chunks": res.OrphanChunks, "orphan_replicas": res.OrphanReplicas,
			"physical_delete_errors": res.PhysicalDeleteErrs,
		})
	}

	return res, nil
}
