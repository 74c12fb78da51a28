package vchunk

import (
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// CompressionAlgo selects the pre-encryption compression codec.
type CompressionAlgo string

const (
	CompressionNone   CompressionAlgo = "none"
	CompressionZstd   CompressionAlgo = "zstd"
	CompressionSnappy CompressionAlgo = "snappy"
)

// Compressor is the pre-encryption byte-transform stage. Level is honored
// by zstd only; snappy has no level knob.
type Compressor interface {
	Compress(data []byte, level int) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() CompressionAlgo
}

// NewCompressor builds a Compressor for the given algorithm.
func NewCompressor(algo CompressionAlgo) (Compressor, error) {
	switch algo {
	case CompressionZstd:
		return &zstdCompressor{}, nil
	case CompressionSnappy:
		return &snappyCompressor{}, nil
	case CompressionNone, "":
		return &noopCompressor{}, nil
	default:
		return nil, apperrors.Wrap("vchunk.NewCompressor", apperrors.Compression, "unsupported compression algorithm %q", algo)
	}
}

type zstdCompressor struct{}

func (z *zstdCompressor) Algorithm() CompressionAlgo { return CompressionZstd }

func (z *zstdCompressor) Compress(data []byte, level int) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(clampZstdLevel(level)))
	if err != nil {
		return nil, apperrors.Wrap("vchunk.zstdCompressor.Compress", apperrors.Compression, "new encoder: %w", err)
	}
	defer func() { _ = enc.Close() }()
	return enc.EncodeAll(data, nil), nil
}

func (z *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, apperrors.Wrap("vchunk.zstdCompressor.Decompress", apperrors.Compression, "new decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, apperrors.Wrap("vchunk.zstdCompressor.Decompress", apperrors.Compression, "decode: %w", err)
	}
	return out, nil
}

func clampZstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 6:
		return zstd.SpeedDefault
	case level <= 12:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

type snappyCompressor struct{}

func (s *snappyCompressor) Algorithm() CompressionAlgo { return CompressionSnappy }

func (s *snappyCompressor) Compress(data []byte, _ int) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (s *snappyCompressor) Decompress(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, apperrors.Wrap("vchunk.snappyCompressor.Decompress", apperrors.Compression, "decode: %w", err)
	}
	return out, nil
}

type noopCompressor struct{}

func (n *noopCompressor) Algorithm() CompressionAlgo              { return CompressionNone }
func (n *noopCompressor) Compress(data []byte, _ int) ([]byte, error) { return data, nil }
func (n *noopCompressor) Decompress(data []byte) ([]byte, error)      { return data, nil }
