// Package vchunk splits object bytes into content-addressed chunks and
// provides the optional pre-encryption compression/transform stages that run
// on each chunk before it reaches internal/crypto.
package vchunk

import (
	"bytes"
	"io"

	resticchunker "github.com/restic/chunker"

	"github.com/FairForge/vaultaire/internal/apperrors"
	"github.com/FairForge/vaultaire/internal/types"
)

// defaultPolynomial is a fixed irreducible polynomial used by every CDC
// chunker instance. Chunking determinism must hold across independently
// constructed chunkers for the same input, not just within a single
// instance, so the polynomial is pinned rather than drawn at random per
// NewCDCChunker call (the teacher's chunker does the latter, which is
// deliberately not generalized here).
const defaultPolynomial = resticchunker.Pol(0x3DA3358B4DC173)

// Chunker splits a byte stream into ordered RawChunks.
type Chunker interface {
	ChunkBytes(data []byte) ([]types.RawChunk, error)
}

// CDCChunker implements content-defined chunking via restic's
// Rabin-fingerprint rolling-hash chunker, bounded by min/max = target/4,
// target*4. The target only sets those bounds: cut points between them
// come from the restic chunker's built-in split mask, so the average chunk
// size does not follow the target.
type CDCChunker struct {
	min, avg, max int
	pol           resticchunker.Pol
}

// NewCDCChunker builds a content-defined chunker for the given target
// chunk size. min = target/4 (but at least 64 bytes), max = target*4.
func NewCDCChunker(targetSize int) (*CDCChunker, error) {
	if targetSize <= 0 {
		return nil, apperrors.Wrap("vchunk.NewCDCChunker", apperrors.Chunking, "target size must be positive, got %d", targetSize)
	}
	min := targetSize / 4
	max := targetSize * 4
	if min < 64 {
		min = 64
	}
	return &CDCChunker{min: min, avg: targetSize, max: max, pol: defaultPolynomial}, nil
}

// ChunkBytes splits data into content-defined chunks. Empty input yields no
// chunks. Input no longer than min yields exactly one chunk.
func (c *CDCChunker) ChunkBytes(data []byte) ([]types.RawChunk, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) <= c.min {
		return []types.RawChunk{{
			Data:   data,
			Hash:   types.SumChunkHash(data),
			Offset: 0,
			Length: len(data),
		}}, nil
	}

	ch := resticchunker.NewWithBoundaries(bytes.NewReader(data), c.pol, uint(c.min), uint(c.max))
	buf := make([]byte, c.max)

	var chunks []types.RawChunk
	var offset uint64
	for {
		chunk, err := ch.Next(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.Wrap("vchunk.ChunkBytes", apperrors.Chunking, "chunking failed at offset %d: %w", offset, err)
		}
		cdata := make([]byte, chunk.Length)
		copy(cdata, chunk.Data)
		chunks = append(chunks, types.RawChunk{
			Data:   cdata,
			Hash:   types.SumChunkHash(cdata),
			Offset: offset,
			Length: int(chunk.Length),
		})
		offset += uint64(chunk.Length)
	}
	return chunks, nil
}

// FixedChunker cuts input every exactSize bytes; the final chunk may be
// shorter.
type FixedChunker struct {
	size int
}

// NewFixedChunker builds a fixed-size chunker.
func NewFixedChunker(exactSize int) (*FixedChunker, error) {
	if exactSize <= 0 {
		return nil, apperrors.Wrap("vchunk.NewFixedChunker", apperrors.Chunking, "chunk size must be positive, got %d", exactSize)
	}
	return &FixedChunker{size: exactSize}, nil
}

// ChunkBytes splits data into fixed-size chunks.
func (c *FixedChunker) ChunkBytes(data []byte) ([]types.RawChunk, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var chunks []types.RawChunk
	var offset uint64
	for int(offset) < len(data) {
		end := int(offset) + c.size
		if end > len(data) {
			end = len(data)
		}
		cdata := make([]byte, end-int(offset))
		copy(cdata, data[offset:end])
		chunks = append(chunks, types.RawChunk{
			Data:   cdata,
			Hash:   types.SumChunkHash(cdata),
			Offset: offset,
			Length: len(cdata),
		})
		offset += uint64(len(cdata))
	}
	return chunks, nil
}

// New builds a Chunker from a types.ChunkStrategy.
func New(strategy types.ChunkStrategy) (Chunker, error) {
	switch strategy.Kind {
	case types.ChunkStrategyCDC, "":
		target := strategy.TargetSize
		if target == 0 {
			target = 4 * 1024 * 1024
		}
		return NewCDCChunker(target)
	case types.ChunkStrategyFixed:
		return NewFixedChunker(strategy.TargetSize)
	default:
		return nil, apperrors.Wrap("vchunk.New", apperrors.Chunking, "unsupported chunk strategy %q", strategy.Kind)
	}
}
