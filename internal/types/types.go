// Package types holds the data-model entities shared across vaultaire's core
// packages: chunk hashes, key material, provider enums, and the strategy
// enums configuration selects between.
package types

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// ChunkHash is the SHA-256 of a chunk's plaintext bytes.
type ChunkHash [sha256.Size]byte

// SumChunkHash hashes plaintext into a ChunkHash.
func SumChunkHash(plaintext []byte) ChunkHash {
	return ChunkHash(sha256.Sum256(plaintext))
}

// String renders the canonical lowercase-hex textual form.
func (h ChunkHash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseChunkHash parses a lowercase-hex ChunkHash.
func ParseChunkHash(hexHash string) (ChunkHash, error) {
	var h ChunkHash
	b, err := hex.DecodeString(hexHash)
	if err != nil {
		return h, fmt.Errorf("parse chunk hash: %w", err)
	}
	if len(b) != sha256.Size {
		return h, fmt.Errorf("parse chunk hash: want %d bytes, got %d", sha256.Size, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Equal compares two hashes in constant time with respect to the position of
// the first differing byte.
func (h ChunkHash) Equal(other ChunkHash) bool {
	return subtle.ConstantTimeCompare(h[:], other[:]) == 1
}

// StorageKey derives the two-level-fanout storage key for a chunk hash:
// enigma/chunks/{hex[0:2]}/{hex[2:4]}/{full_hex}.
func (h ChunkHash) StorageKey() string {
	hx := h.String()
	return fmt.Sprintf("enigma/chunks/%s/%s/%s", hx[0:2], hx[2:4], hx)
}

// HashesEqual constant-time-compares two raw hash byte slices, independent of
// the position of the first differing byte. Returns false (never panics) if
// the lengths differ.
func HashesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		// still constant-time in len(a) to avoid leaking a length-dependent
		// timing signal when callers pass same-length buffers by convention
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// RawChunk is an ephemeral, never-persisted chunk produced by the chunker.
type RawChunk struct {
	Data   []byte
	Hash   ChunkHash
	Offset uint64
	Length int
}

// KeyMaterial is a 32-byte AEAD key identified by an id. Key bytes MUST be
// zeroized once the material is no longer needed; Debug/log rendering MUST
// redact the key.
type KeyMaterial struct {
	ID  string
	Key [32]byte
}

// String redacts the key bytes; only the id is shown.
func (k KeyMaterial) String() string {
	return fmt.Sprintf("KeyMaterial{ID: %s, Key: <redacted>}", k.ID)
}

// GoString redacts the key bytes for %#v / debug rendering too.
func (k KeyMaterial) GoString() string {
	return k.String()
}

// Zero scrubs the key bytes in place. Callers MUST call this once a
// KeyMaterial value is no longer needed.
func (k *KeyMaterial) Zero() {
	for i := range k.Key {
		k.Key[i] = 0
	}
}

// EncryptedChunk is the on-the-wire/on-disk ciphertext form of a chunk.
// Ciphertext includes the AEAD authentication tag.
type EncryptedChunk struct {
	Hash       ChunkHash
	Nonce      [12]byte
	Ciphertext []byte
	KeyID      string
}

// ProviderType enumerates the supported storage backend kinds.
type ProviderType string

const (
	ProviderLocal        ProviderType = "local"
	ProviderS3           ProviderType = "s3"
	ProviderS3Compatible ProviderType = "s3_compatible"
	ProviderAzure        ProviderType = "azure"
	ProviderGCS          ProviderType = "gcs"
)

// Provider is a catalog row describing a storage backend instance.
type Provider struct {
	ID        int64
	Name      string
	Type      ProviderType
	Bucket    string
	Region    string
	Weight    uint32
	CreatedAt time.Time
}

// ChunkStrategy selects the chunker implementation.
type ChunkStrategy struct {
	Kind       ChunkStrategyKind
	TargetSize int // average size for CDC, exact size for Fixed
}

type ChunkStrategyKind string

const (
	ChunkStrategyCDC   ChunkStrategyKind = "cdc"
	ChunkStrategyFixed ChunkStrategyKind = "fixed"
)

// DistributionStrategy selects the provider-selection algorithm.
type DistributionStrategy string

const (
	DistributionRoundRobin DistributionStrategy = "round_robin"
	DistributionWeighted   DistributionStrategy = "weighted"
)

// BackupStatus tracks a filesystem-backup pipeline run.
type BackupStatus string

const (
	BackupRunning  BackupStatus = "running"
	BackupComplete BackupStatus = "complete"
	BackupFailed   BackupStatus = "failed"
)
