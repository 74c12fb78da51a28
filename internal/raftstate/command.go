// Package raftstate replicates catalog writes through Raft consensus: a
// Command proposed by the leader is applied identically on every voter via
// FSM.Apply, which dispatches to the corresponding *catalog.Catalog method.
package raftstate

import (
	"bytes"
	"encoding/gob"

	"github.com/FairForge/vaultaire/internal/apperrors"
	"github.com/FairForge/vaultaire/internal/catalog"
	"github.com/FairForge/vaultaire/internal/types"
)

// Op names one of the replicated request variants.
type Op string

const (
	OpCreateNamespace      Op = "create_namespace"
	OpDeleteNamespace      Op = "delete_namespace"
	OpInsertObject         Op = "insert_object"
	OpDeleteObject         Op = "delete_object"
	OpInsertOrDedupChunk   Op = "insert_or_dedup_chunk"
	OpDecrementChunkRef    Op = "decrement_chunk_ref"
	OpInsertProvider       Op = "insert_provider"
	OpCreateMultipartUpload Op = "create_multipart_upload"
	OpInsertMultipartPart  Op = "insert_multipart_part"
	OpAbortMultipartUpload Op = "abort_multipart_upload"
)

// Command is the gob-encoded payload of one Raft log entry. Args holds
// exactly one of the op-specific *Args structs below; Apply switches on Op
// to know which.
type Command struct {
	Op   Op
	Args []byte // gob-encoded op-specific Args struct
}

// Encode proposes args under op, ready for (*raft.Raft).Apply.
func Encode(op Op, args interface{}) ([]byte, error) {
	const fn = "raftstate.Encode"

	var argBuf bytes.Buffer
	if err := gob.NewEncoder(&argBuf).Encode(args); err != nil {
		return nil, apperrors.Wrap(fn, apperrors.Serialization, "encode args for %s: %w", op, err)
	}

	return encodeCommand(Command{Op: op, Args: argBuf.Bytes()})
}

// encodeCommand gob-encodes an already-assembled Command, reused by
// ForwardWrite to re-propose a command without decoding its opaque Args.
func encodeCommand(cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, apperrors.Wrap("raftstate.encodeCommand", apperrors.Serialization, "encode command %s: %w", cmd.Op, err)
	}
	return buf.Bytes(), nil
}

func decodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cmd); err != nil {
		return Command{}, apperrors.Wrap("raftstate.decodeCommand", apperrors.Serialization, "decode command: %w", err)
	}
	return cmd, nil
}

func decodeArgs(data []byte, out interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
		return apperrors.Wrap("raftstate.decodeArgs", apperrors.Serialization, "decode args: %w", err)
	}
	return nil
}

// Per-op argument structs. IDs the catalog would otherwise generate
// non-deterministically (object ids, provider ids) are not proposed ahead
// of time here: this catalog is a shared Postgres instance behind Raft,
// not per-node embedded state, so every replica applying the same command
// against the same database converges by construction (see DESIGN.md).

type CreateNamespaceArgs struct{ Name string }
type DeleteNamespaceArgs struct{ Name string }

type InsertObjectArgs struct {
	NamespaceID int64
	Key         string
	Size        int64
	ETag        string
	ContentType string
	KeyID       string
	Chunks      []catalog.ObjectChunkRef
}

type DeleteObjectArgs struct {
	NamespaceID int64
	Key         string
}

type InsertOrDedupChunkArgs struct {
	Hash           string
	Nonce          []byte
	KeyID          string
	ProviderID     int64
	StorageKey     string
	SizePlain      int64
	SizeEncrypted  int64
	SizeCompressed *int64
}

type DecrementChunkRefArgs struct{ Hash string }

type InsertProviderArgs struct {
	Name   string
	Type   types.ProviderType
	Bucket string
	Region string
	Weight uint32
}

type CreateMultipartUploadArgs struct {
	NamespaceID int64
	Key         string
}

type InsertMultipartPartArgs struct {
	UploadID   string
	PartNumber int
	Data       []byte
	ETag       string
}

type AbortMultipartUploadArgs struct{ UploadID string }

// Result is FSM.Apply's return value, decoded by the proposer from the
// ApplyFuture's Response(). Exactly one field is meaningful per Op; Err is
// set instead of returning a Go error directly because raft.ApplyFuture
// only carries what FSM.Apply returns as an interface{} — a real error
// there would be indistinguishable from an FSM crash to the raft library,
// so catalog errors are carried as data.
type Result struct {
	Err            string
	NamespaceID    int64
	ObjectID       int64
	ProviderID     int64
	ChunkIsNew     bool
	FreedLocations []catalog.ChunkLocation
	UploadID       string
}
