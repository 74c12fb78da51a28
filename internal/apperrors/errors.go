// Package apperrors defines the typed error taxonomy shared across vaultaire's
// core packages (chunking, crypto, keys, storage, catalog, pipeline, raft).
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error without committing to a specific message or
// wrapped type, so callers can branch on failure category.
type Kind string

const (
	NotFound       Kind = "not_found"
	Unauthorized   Kind = "unauthorized"
	Forbidden      Kind = "forbidden"
	InvalidInput   Kind = "invalid_input"
	Duplicate      Kind = "duplicate"
	Storage        Kind = "storage"
	Database       Kind = "database"
	Encryption     Kind = "encryption"
	Decryption     Kind = "decryption"
	KeyNotFound    Kind = "key_not_found"
	Chunking       Kind = "chunking"
	Compression    Kind = "compression"
	HashMismatch   Kind = "hash_mismatch"
	Serialization  Kind = "serialization"
	Config         Kind = "config"
	BackupNotFound Kind = "backup_not_found"
	ProviderNotFound Kind = "provider_not_found"
	Internal       Kind = "internal"
)

// Error is the typed error carried across package boundaries. Op names the
// failing operation (e.g. "catalog.InsertObject"); Err is the underlying
// cause, wrapped so errors.Is/errors.As still see through it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for the given op/kind, optionally wrapping a cause.
func New(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrap is New with a formatted cause.
func Wrap(op string, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, walking the Unwrap chain. Returns
// Internal if err doesn't carry a *Error anywhere in its chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err's Kind (anywhere in its chain) equals kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
