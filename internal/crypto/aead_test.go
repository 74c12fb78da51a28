package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FairForge/vaultaire/internal/types"
)

func randomKey(t *testing.T) [32]byte {
	t.Helper()
	var k [32]byte
	_, err := rand.Read(k[:])
	require.NoError(t, err)
	return k
}

func TestEncryptDecryptChunk_Roundtrip(t *testing.T) {
	key := randomKey(t)
	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	hash := types.SumChunkHash(plaintext)

	ec, err := EncryptChunk(plaintext, hash, key, "key-1")
	require.NoError(t, err)
	require.Equal(t, "key-1", ec.KeyID)

	got, err := DecryptChunk(ec, key)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecryptChunk_TamperedHashFails(t *testing.T) {
	key := randomKey(t)
	plaintext := []byte("payload")
	hash := types.SumChunkHash(plaintext)

	ec, err := EncryptChunk(plaintext, hash, key, "key-1")
	require.NoError(t, err)

	ec.Hash[0] ^= 0xFF
	_, err = DecryptChunk(ec, key)
	require.Error(t, err)
}

func TestDecryptChunk_TamperedNonceFails(t *testing.T) {
	key := randomKey(t)
	plaintext := []byte("payload")
	hash := types.SumChunkHash(plaintext)

	ec, err := EncryptChunk(plaintext, hash, key, "key-1")
	require.NoError(t, err)

	ec.Nonce[0] ^= 0xFF
	_, err = DecryptChunk(ec, key)
	require.Error(t, err)
}

func TestDecryptChunk_TamperedCiphertextFails(t *testing.T) {
	key := randomKey(t)
	plaintext := []byte("payload")
	hash := types.SumChunkHash(plaintext)

	ec, err := EncryptChunk(plaintext, hash, key, "key-1")
	require.NoError(t, err)

	ec.Ciphertext[0] ^= 0xFF
	_, err = DecryptChunk(ec, key)
	require.Error(t, err)
}

func TestEncryptChunk_NonceUniqueness(t *testing.T) {
	key := randomKey(t)
	plaintext := []byte("payload")
	hash := types.SumChunkHash(plaintext)

	ec1, err := EncryptChunk(plaintext, hash, key, "key-1")
	require.NoError(t, err)
	ec2, err := EncryptChunk(plaintext, hash, key, "key-1")
	require.NoError(t, err)

	require.NotEqual(t, ec1.Nonce, ec2.Nonce)
	require.NotEqual(t, ec1.Ciphertext, ec2.Ciphertext)
}

func TestEncryptData_RejectsWrongKeySize(t *testing.T) {
	plaintext := []byte("payload")
	hash := types.SumChunkHash(plaintext)
	var shortKey [32]byte
	// zero key is still 32 bytes; exercise the length check at the
	// newAEAD boundary via EncryptData instead, which takes a slice.
	_, _, err := EncryptData(plaintext, shortKey[:16], hash[:])
	require.Error(t, err)
}

func TestEncryptDataDecryptData_Roundtrip(t *testing.T) {
	key := randomKey(t)
	aad := []byte("context")
	plaintext := []byte("keystore blob")

	ct, nonce, err := EncryptData(plaintext, key[:], aad)
	require.NoError(t, err)

	got, err := DecryptData(ct, key[:], nonce, aad)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecryptData_WrongAADFails(t *testing.T) {
	key := randomKey(t)
	ct, nonce, err := EncryptData([]byte("data"), key[:], []byte("aad-a"))
	require.NoError(t, err)

	_, err = DecryptData(ct, key[:], nonce, []byte("aad-b"))
	require.Error(t, err)
}
