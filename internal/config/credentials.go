package config

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/FairForge/vaultaire/internal/apperrors"
	"github.com/FairForge/vaultaire/internal/crypto"
)

const encPrefix = "enc:"

// credentialsKey is set by SetCredentialsKey before Load runs, so that
// decryptProviderCredentials can open `enc:`-wrapped fields. A nil key
// leaves encrypted fields as an error rather than silently passing
// ciphertext through as a literal secret value.
var credentialsKey []byte

// SetCredentialsKey installs the AES-256 key used to open `enc:` envelopes
// in provider access_key/secret_key fields. Must be called before Load if
// the config file contains any encrypted credential.
func SetCredentialsKey(key []byte) {
	credentialsKey = key
}

// decryptCredential opens an `enc:{nonce_hex}:{ciphertext_b64}` envelope.
// A value not starting with the enc: prefix is returned unchanged.
func decryptCredential(value string) (string, error) {
	const op = "config.decryptCredential"

	if !strings.HasPrefix(value, encPrefix) {
		return value, nil
	}
	if credentialsKey == nil {
		return "", apperrors.Wrap(op, apperrors.Config, "encrypted credential present but no key installed")
	}

	parts := strings.SplitN(strings.TrimPrefix(value, encPrefix), ":", 2)
	if len(parts) != 2 {
		return "", apperrors.Wrap(op, apperrors.Config, "malformed enc: envelope")
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", apperrors.Wrap(op, apperrors.Config, "decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", apperrors.Wrap(op, apperrors.Config, "decode ciphertext: %w", err)
	}

	plaintext, err := crypto.DecryptData(ciphertext, credentialsKey, nonce, nil)
	if err != nil {
		return "", apperrors.Wrap(op, apperrors.Config, "decrypt: %w", err)
	}
	return string(plaintext), nil
}

// EncryptCredential wraps value in an `enc:{nonce_hex}:{ciphertext_b64}`
// envelope under the installed credentials key, for writing back into a
// config file.
func EncryptCredential(value string) (string, error) {
	const op = "config.EncryptCredential"
	if credentialsKey == nil {
		return "", apperrors.Wrap(op, apperrors.Config, "no credentials key installed")
	}
	ciphertext, nonce, err := crypto.EncryptData([]byte(value), credentialsKey, nil)
	if err != nil {
		return "", apperrors.Wrap(op, apperrors.Config, "encrypt: %w", err)
	}
	return encPrefix + hex.EncodeToString(nonce) + ":" + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decryptProviderCredentials opens any `enc:`-wrapped access_key/secret_key/
// catalog password fields, in place.
func decryptProviderCredentials(cfg *Config) error {
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		ak, err := decryptCredential(p.AccessKey)
		if err != nil {
			return err
		}
		sk, err := decryptCredential(p.SecretKey)
		if err != nil {
			return err
		}
		p.AccessKey, p.SecretKey = ak, sk
	}

	pw, err := decryptCredential(cfg.Catalog.Password)
	if err != nil {
		return err
	}
	cfg.Catalog.Password = pw
	return nil
}
