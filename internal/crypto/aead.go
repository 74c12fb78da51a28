// Package crypto implements the AEAD envelope used for both chunk ciphertext
// and opaque keystore blobs: AES-256-GCM with a fresh random nonce per call
// and caller-supplied additional authenticated data.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/FairForge/vaultaire/internal/apperrors"
	"github.com/FairForge/vaultaire/internal/types"
)

const (
	// KeySize is the required AES-256-GCM key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
)

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, apperrors.Wrap("crypto.newAEAD", apperrors.Encryption, "key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.Wrap("crypto.newAEAD", apperrors.Encryption, "new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.Wrap("crypto.newAEAD", apperrors.Encryption, "new gcm: %w", err)
	}
	return gcm, nil
}

// EncryptChunk seals plaintext under key, binding chunkHash as AAD, and
// returns the encrypted-chunk envelope with a fresh random nonce.
func EncryptChunk(plaintext []byte, chunkHash types.ChunkHash, key [32]byte, keyID string) (types.EncryptedChunk, error) {
	gcm, err := newAEAD(key[:])
	if err != nil {
		return types.EncryptedChunk{}, err
	}

	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return types.EncryptedChunk{}, apperrors.Wrap("crypto.EncryptChunk", apperrors.Encryption, "generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce[:], plaintext, chunkHash[:])
	return types.EncryptedChunk{
		Hash:       chunkHash,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		KeyID:      keyID,
	}, nil
}

// DecryptChunk opens an EncryptedChunk under key, verifying chunkHash as
// AAD. Any tampering with the hash, nonce, or ciphertext fails with a
// Decryption-kind error.
func DecryptChunk(ec types.EncryptedChunk, key [32]byte) ([]byte, error) {
	gcm, err := newAEAD(key[:])
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, ec.Nonce[:], ec.Ciphertext, ec.Hash[:])
	if err != nil {
		return nil, apperrors.Wrap("crypto.DecryptChunk", apperrors.Decryption, "open: %w", err)
	}
	return plaintext, nil
}

// EncryptData seals an opaque blob (e.g. a keystore payload) under key with
// caller-supplied aad, returning ciphertext and the nonce used.
func EncryptData(plaintext, key, aad []byte) (ciphertext, nonce []byte, err error) {
	gcm, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}
	n := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, n); err != nil {
		return nil, nil, apperrors.Wrap("crypto.EncryptData", apperrors.Encryption, "generate nonce: %w", err)
	}
	ct := gcm.Seal(nil, n, plaintext, aad)
	return ct, n, nil
}

// DecryptData opens an opaque blob sealed by EncryptData.
func DecryptData(ciphertext, key, nonce, aad []byte) ([]byte, error) {
	gcm, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, apperrors.Wrap("crypto.DecryptData", apperrors.Decryption, "nonce must be %d bytes, got %d", gcm.NonceSize(), len(nonce))
	}
	pt, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, apperrors.Wrap("crypto.DecryptData", apperrors.Decryption, "open: %w", err)
	}
	return pt, nil
}
