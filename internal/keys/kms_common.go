package keys

import (
	"crypto/rand"
	"io"

	"github.com/google/uuid"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// newKeyMaterial generates a fresh random 32-byte data key under a new v4
// uuid, shared by every remote KMS adapter (the local keystore derives its
// keys via the hybrid ML-KEM+Argon2id scheme instead; see local.go).
func newKeyMaterial() (string, [32]byte, error) {
	var key [32]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", key, apperrors.Wrap("keys.newKeyMaterial", apperrors.Internal, "generate key: %w", err)
	}
	return uuid.NewString(), key, nil
}
