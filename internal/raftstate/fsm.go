package raftstate

import (
	"context"
	"io"

	"github.com/hashicorp/raft"
	"go.uber.org/zap"

	"github.com/FairForge/vaultaire/internal/catalog"
	"github.com/FairForge/vaultaire/internal/types"
)

// FSM wraps a catalog as a Raft state machine: Apply dispatches each
// replicated command to the matching catalog method, and Snapshot/Restore
// round-trip the whole catalog via catalog.SnapshotToBytes/RestoreFromBytes
// (spec.md's "Build = serialize catalog to bytes; install = atomic
// replacement of catalog file + reopen").
type FSM struct {
	cat    *catalog.Catalog
	logger *zap.Logger
}

// NewFSM builds an FSM over cat.
func NewFSM(cat *catalog.Catalog, logger *zap.Logger) *FSM {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FSM{cat: cat, logger: logger}
}

// Apply implements raft.FSM. It always returns a *Result, even on catalog
// failure (see Result's doc comment on why catalog errors travel as data).
func (f *FSM) Apply(log *raft.Log) interface{} {
	ctx := context.Background()

	cmd, err := decodeCommand(log.Data)
	if err != nil {
		return &Result{Err: err.Error()}
	}

	switch cmd.Op {
	case OpCreateNamespace:
		var a CreateNamespaceArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return &Result{Err: err.Error()}
		}
		id, err := f.cat.CreateNamespace(ctx, a.Name)
		return resultOrErr(err, &Result{NamespaceID: id})

	case OpDeleteNamespace:
		var a DeleteNamespaceArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return &Result{Err: err.Error()}
		}
		err := f.cat.DeleteNamespace(ctx, a.Name)
		return resultOrErr(err, &Result{})

	case OpInsertObject:
		var a InsertObjectArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return &Result{Err: err.Error()}
		}
		id, freed, err := f.cat.InsertObject(ctx, a.NamespaceID, a.Key, a.Size, a.ETag, a.ContentType, a.KeyID, a.Chunks)
		return resultOrErr(err, &Result{ObjectID: id, FreedLocations: freed})

	case OpDeleteObject:
		var a DeleteObjectArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return &Result{Err: err.Error()}
		}
		freed, err := f.cat.DeleteObjectByNsKey(ctx, a.NamespaceID, a.Key)
		return resultOrErr(err, &Result{FreedLocations: freed})

	case OpInsertOrDedupChunk:
		var a InsertOrDedupChunkArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return &Result{Err: err.Error()}
		}
		isNew, err := f.cat.InsertOrDedupChunk(ctx, a.Hash, a.Nonce, a.KeyID, a.ProviderID, a.StorageKey,
			a.SizePlain, a.SizeEncrypted, a.SizeCompressed)
		return resultOrErr(err, &Result{ChunkIsNew: isNew})

	case OpDecrementChunkRef:
		var a DecrementChunkRefArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return &Result{Err: err.Error()}
		}
		freed, err := f.cat.DecrementChunkRef(ctx, a.Hash)
		return resultOrErr(err, &Result{FreedLocations: freed})

	case OpInsertProvider:
		var a InsertProviderArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return &Result{Err: err.Error()}
		}
		id, err := f.cat.InsertProvider(ctx, types.Provider{
			Name:   a.Name,
			Type:   a.Type,
			Bucket: a.Bucket,
			Region: a.Region,
			Weight: a.Weight,
		})
		return resultOrErr(err, &Result{ProviderID: id})

	case OpCreateMultipartUpload:
		var a CreateMultipartUploadArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return &Result{Err: err.Error()}
		}
		uploadID, err := f.cat.CreateMultipartUpload(ctx, a.NamespaceID, a.Key)
		return resultOrErr(err, &Result{UploadID: uploadID})

	case OpInsertMultipartPart:
		var a InsertMultipartPartArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return &Result{Err: err.Error()}
		}
		err := f.cat.InsertMultipartPart(ctx, a.UploadID, a.PartNumber, a.Data, a.ETag)
		return resultOrErr(err, &Result{})

	case OpAbortMultipartUpload:
		var a AbortMultipartUploadArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return &Result{Err: err.Error()}
		}
		err := f.cat.AbortMultipartUpload(ctx, a.UploadID)
		return resultOrErr(err, &Result{})

	default:
		return &Result{Err: "raftstate: unknown op " + string(cmd.Op)}
	}
}

func resultOrErr(err error, r *Result) *Result {
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

// Snapshot implements raft.FSM.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	data, err := f.cat.SnapshotToBytes(context.Background())
	if err != nil {
		return nil, err
	}
	return &fsmSnapshot{data: data}, nil
}

// Restore implements raft.FSM.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	return f.cat.RestoreFromBytes(context.Background(), data)
}

type fsmSnapshot struct {
	data []byte
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if _, err := sink.Write(s.data); err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
