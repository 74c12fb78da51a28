package vchunk

import "github.com/FairForge/vaultaire/internal/types"

// HashChunk computes the content hash a dedup lookup keys on. Hashing lives
// here (rather than only in internal/types) so pipeline code has a single
// call that reads as "the dedup key for this chunk."
func HashChunk(plaintext []byte) types.ChunkHash {
	return types.SumChunkHash(plaintext)
}

// SameContent reports whether two chunks of plaintext are identical via a
// constant-time hash comparison, independent of where the first differing
// byte falls.
func SameContent(a, b []byte) bool {
	ha := types.SumChunkHash(a)
	hb := types.SumChunkHash(b)
	return ha.Equal(hb)
}
