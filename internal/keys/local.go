package keys

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	"github.com/FairForge/vaultaire/internal/apperrors"
	vcrypto "github.com/FairForge/vaultaire/internal/crypto"
)

const (
	keystoreVersion  = 2 // version >= 2 implies hybrid PQ
	argon2Time       = 1
	argon2MemoryKiB  = 64 * 1024
	argon2Threads    = 4
	argon2KeyLen     = 32
	hkdfInfo         = "enigma-hybrid-v1"
	saltSize         = 32
)

// storedKey is the on-disk representation of one managed key.
type storedKey struct {
	ID         string    `json:"id"`
	Key        []byte    `json:"key"`
	KEMCiphertext []byte `json:"ml_kem_ct"`
	CreatedAt  time.Time `json:"created_at"`
}

// keystoreDoc is the JSON payload sealed inside the keystore file.
type keystoreDoc struct {
	Version      int         `json:"version"`
	Salt         []byte      `json:"salt"`
	MLKEMEncKey  []byte      `json:"ml_kem_ek"`
	MLKEMDecKey  []byte      `json:"ml_kem_dk"`
	CurrentKeyID string      `json:"current_key_id"`
	Keys         []storedKey `json:"keys"`
}

// LocalKeystore is the file-backed hybrid Argon2id + ML-KEM-768 key
// provider. The master key is derived from a passphrase each time the
// store is opened; individual data keys are derived via ML-KEM
// encapsulation + HKDF so that breaking either the passphrase or the KEM
// alone still leaves the other as a barrier.
type LocalKeystore struct {
	mu   sync.Mutex
	path string

	masterKey [32]byte
	doc       keystoreDoc
	keys      map[string]ManagedKey // id -> resolved key (decapsulated)
}

// CreateLocalKeystore initializes a brand-new keystore file at path,
// generates an ML-KEM-768 keypair, derives one initial key, and persists
// the result.
func CreateLocalKeystore(ctx context.Context, path, passphrase string) (*LocalKeystore, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, apperrors.Wrap("keys.CreateLocalKeystore", apperrors.Internal, "generate salt: %w", err)
	}

	pub, priv, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, apperrors.Wrap("keys.CreateLocalKeystore", apperrors.Encryption, "generate ml-kem keypair: %w", err)
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap("keys.CreateLocalKeystore", apperrors.Encryption, "marshal ml-kem public key: %w", err)
	}
	privBytes, err := priv.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap("keys.CreateLocalKeystore", apperrors.Encryption, "marshal ml-kem private key: %w", err)
	}

	ks := &LocalKeystore{
		path:      path,
		masterKey: deriveMasterKey(passphrase, salt),
		doc: keystoreDoc{
			Version:     keystoreVersion,
			Salt:        salt,
			MLKEMEncKey: pubBytes,
			MLKEMDecKey: privBytes,
		},
		keys: make(map[string]ManagedKey),
	}

	if _, err := ks.CreateKey(ctx); err != nil {
		return nil, err
	}
	return ks, nil
}

// OpenLocalKeystore reads and decrypts an existing keystore file. A wrong
// passphrase surfaces as an Unauthorized-kind error without distinguishing
// whether the passphrase or the file format was the problem.
func OpenLocalKeystore(ctx context.Context, path, passphrase string) (*LocalKeystore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap("keys.OpenLocalKeystore", apperrors.Storage, "read keystore: %w", err)
	}
	if len(raw) < saltSize+vcrypto.NonceSize {
		return nil, apperrors.New("keys.OpenLocalKeystore", apperrors.Unauthorized, fmt.Errorf("keystore file truncated"))
	}

	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+vcrypto.NonceSize]
	ciphertext := raw[saltSize+vcrypto.NonceSize:]

	masterKey := deriveMasterKey(passphrase, salt)

	plaintext, err := vcrypto.DecryptData(ciphertext, masterKey[:], nonce, nil)
	if err != nil {
		return nil, apperrors.New("keys.OpenLocalKeystore", apperrors.Unauthorized, fmt.Errorf("keystore authentication failed"))
	}

	var doc keystoreDoc
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		return nil, apperrors.Wrap("keys.OpenLocalKeystore", apperrors.Serialization, "decode keystore: %w", err)
	}

	ks := &LocalKeystore{
		path:      path,
		masterKey: masterKey,
		doc:       doc,
		keys:      make(map[string]ManagedKey),
	}
	for _, sk := range doc.Keys {
		var mk ManagedKey
		mk.ID = sk.ID
		mk.CreatedAt = sk.CreatedAt
		copy(mk.Key[:], sk.Key)
		ks.keys[sk.ID] = mk
	}
	return ks, nil
}

func deriveMasterKey(passphrase string, salt []byte) [32]byte {
	derived := argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2MemoryKiB, argon2Threads, argon2KeyLen)
	var out [32]byte
	copy(out[:], derived)
	return out
}

// CurrentKey returns the active key.
func (ks *LocalKeystore) CurrentKey(ctx context.Context) (ManagedKey, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.lookupLocked(ks.doc.CurrentKeyID)
}

// KeyByID resolves a specific key id, including retired ones.
func (ks *LocalKeystore) KeyByID(ctx context.Context, id string) (ManagedKey, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.lookupLocked(id)
}

func (ks *LocalKeystore) lookupLocked(id string) (ManagedKey, error) {
	mk, ok := ks.keys[id]
	if !ok {
		return ManagedKey{}, apperrors.Wrap("keys.LocalKeystore", apperrors.KeyNotFound, "no key with id %q", id)
	}
	return mk, nil
}

// CreateKey encapsulates a fresh shared secret against the keystore's
// ML-KEM-768 public key, derives a new 32-byte data key via
// HKDF-SHA256(master_key||shared_secret), makes it current, persists the
// keystore, and returns it.
func (ks *LocalKeystore) CreateKey(ctx context.Context) (ManagedKey, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	var pub mlkem768.PublicKey
	if err := pub.Unpack(ks.doc.MLKEMEncKey); err != nil {
		return ManagedKey{}, apperrors.Wrap("keys.LocalKeystore.CreateKey", apperrors.Encryption, "unpack ml-kem public key: %w", err)
	}

	seed := make([]byte, mlkem768.EncapsulationSeedSize)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return ManagedKey{}, apperrors.Wrap("keys.LocalKeystore.CreateKey", apperrors.Internal, "generate encapsulation seed: %w", err)
	}
	kemCt := make([]byte, mlkem768.CiphertextSize)
	sharedSecret := make([]byte, mlkem768.SharedKeySize)
	pub.EncapsulateTo(kemCt, sharedSecret, seed)

	ikm := make([]byte, 0, len(ks.masterKey)+len(sharedSecret))
	ikm = append(ikm, ks.masterKey[:]...)
	ikm = append(ikm, sharedSecret...)
	defer zero(ikm)
	defer zero(sharedSecret)

	reader := hkdf.New(sha256.New, ikm, ks.doc.Salt, []byte(hkdfInfo))
	var derived [32]byte
	if _, err := io.ReadFull(reader, derived[:]); err != nil {
		return ManagedKey{}, apperrors.Wrap("keys.LocalKeystore.CreateKey", apperrors.Encryption, "hkdf expand: %w", err)
	}

	id := uuid.NewString()
	now := time.Now()
	mk := ManagedKey{ID: id, Key: derived, CreatedAt: now}

	ks.keys[id] = mk
	ks.doc.CurrentKeyID = id
	ks.doc.Keys = append(ks.doc.Keys, storedKey{
		ID:            id,
		Key:           append([]byte(nil), derived[:]...),
		KEMCiphertext: kemCt,
		CreatedAt:     now,
	})

	if err := ks.saveLocked(); err != nil {
		return ManagedKey{}, err
	}
	return mk, nil
}

// RotateKey is an alias of CreateKey.
func (ks *LocalKeystore) RotateKey(ctx context.Context) (ManagedKey, error) {
	return ks.CreateKey(ctx)
}

// ListKeyIDs enumerates every known key id in creation order.
func (ks *LocalKeystore) ListKeyIDs(ctx context.Context) ([]string, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ids := make([]string, 0, len(ks.doc.Keys))
	for _, sk := range ks.doc.Keys {
		ids = append(ids, sk.ID)
	}
	return ids, nil
}

func (ks *LocalKeystore) saveLocked() error {
	plaintext, err := json.Marshal(ks.doc)
	if err != nil {
		return apperrors.Wrap("keys.LocalKeystore.save", apperrors.Serialization, "encode keystore: %w", err)
	}
	ciphertext, nonce, err := vcrypto.EncryptData(plaintext, ks.masterKey[:], nil)
	if err != nil {
		return apperrors.Wrap("keys.LocalKeystore.save", apperrors.Encryption, "seal keystore: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(ciphertext))
	out = append(out, ks.doc.Salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	tmp := ks.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return apperrors.Wrap("keys.LocalKeystore.save", apperrors.Storage, "write keystore: %w", err)
	}
	if err := os.Rename(tmp, ks.path); err != nil {
		return apperrors.Wrap("keys.LocalKeystore.save", apperrors.Storage, "install keystore: %w", err)
	}
	return nil
}

// Close zeroizes the in-memory master key and all resolved data keys.
func (ks *LocalKeystore) Close() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	zero(ks.masterKey[:])
	for id, mk := range ks.keys {
		mk.Zero()
		ks.keys[id] = mk
	}
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
