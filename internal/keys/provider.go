// Package keys implements the key-provider contract: a local hybrid
// Argon2id + ML-KEM-768 keystore (specified in full), plus thin
// contract-compatible adapters over Azure Key Vault, GCP Secret Manager,
// and AWS Secrets Manager.
package keys

import (
	"context"
	"time"
)

// ManagedKey is a resolvable data key: 32 AES-256-GCM key bytes under an id.
type ManagedKey struct {
	ID        string
	Key       [32]byte
	CreatedAt time.Time
}

// Zero scrubs the key bytes. Callers MUST call this once a ManagedKey is no
// longer needed.
func (m *ManagedKey) Zero() {
	for i := range m.Key {
		m.Key[i] = 0
	}
}

// Provider is the key-provider contract shared by the local keystore and
// every remote KMS adapter. Key rotation creates a new id and makes it
// current; old ids remain resolvable so pre-rotation ciphertexts still
// decrypt.
type Provider interface {
	// CurrentKey returns the active key.
	CurrentKey(ctx context.Context) (ManagedKey, error)
	// KeyByID resolves a specific key id, including retired ones.
	KeyByID(ctx context.Context, id string) (ManagedKey, error)
	// CreateKey generates a new key, makes it current, and returns it.
	CreateKey(ctx context.Context) (ManagedKey, error)
	// RotateKey is an alias of CreateKey.
	RotateKey(ctx context.Context) (ManagedKey, error)
	// ListKeyIDs enumerates every known key id. The local keystore lists
	// them in creation order; remote adapters list them in the order the
	// service returns them.
	ListKeyIDs(ctx context.Context) ([]string, error)
}
