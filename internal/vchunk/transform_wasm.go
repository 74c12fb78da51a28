package vchunk

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

// Transform is an optional pre-encryption byte transform applied to each
// chunk's (possibly compressed) bytes before AEAD encryption, and reversed
// after decryption. The default pipeline runs none; a WASM module can be
// loaded to perform a reversible byte transform without vaultaire depending
// on the guest's logic at compile time.
type Transform interface {
	Apply(data []byte) ([]byte, error)
	Reverse(data []byte) ([]byte, error)
	Close() error
}

// WASMTransform loads a WASM module exposing "transform" and "reverse"
// guest functions.
type WASMTransform struct {
	ctx     context.Context
	runtime wazero.Runtime
	module  api.Module
}

// LoadWASMTransform compiles and instantiates a WASM module from wasmBytes.
func LoadWASMTransform(ctx context.Context, wasmBytes []byte) (*WASMTransform, error) {
	r := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, apperrors.Wrap("vchunk.LoadWASMTransform", apperrors.Compression, "instantiate wasi: %w", err)
	}
	mod, err := r.Instantiate(ctx, wasmBytes)
	if err != nil {
		_ = r.Close(ctx)
		return nil, apperrors.Wrap("vchunk.LoadWASMTransform", apperrors.Compression, "instantiate module: %w", err)
	}
	return &WASMTransform{ctx: ctx, runtime: r, module: mod}, nil
}

// Apply runs the guest "transform" export, writing data into the module's
// memory, invoking the export, and reading the result back out.
func (t *WASMTransform) Apply(data []byte) ([]byte, error) {
	return t.call("transform", data)
}

// Reverse runs the guest "reverse" export, undoing Apply.
func (t *WASMTransform) Reverse(data []byte) ([]byte, error) {
	return t.call("reverse", data)
}

// call invokes a guest export that takes (ptr, len) into the module's linear
// memory and returns a packed (ptr<<32 | len) result, the calling
// convention wazero-targeting guests commonly export. A module missing the
// export degrades to identity: a misbehaving plugin must not corrupt data
// beyond what the AEAD tag downstream would already catch.
func (t *WASMTransform) call(export string, data []byte) ([]byte, error) {
	fn := t.module.ExportedFunction(export)
	alloc := t.module.ExportedFunction("alloc")
	mem := t.module.Memory()
	if fn == nil || alloc == nil || mem == nil {
		return data, nil
	}

	results, err := alloc.Call(t.ctx, uint64(len(data)))
	if err != nil {
		return nil, apperrors.Wrap("vchunk.WASMTransform", apperrors.Compression, "guest alloc failed: %w", err)
	}
	ptr := uint32(results[0])
	if !mem.Write(ptr, data) {
		return nil, apperrors.Wrap("vchunk.WASMTransform", apperrors.Compression, "guest memory write out of range")
	}

	packed, err := fn.Call(t.ctx, uint64(ptr), uint64(len(data)))
	if err != nil {
		return nil, apperrors.Wrap("vchunk.WASMTransform", apperrors.Compression, "guest %s failed: %w", export, err)
	}
	outPtr := uint32(packed[0] >> 32)
	outLen := uint32(packed[0])
	out, ok := mem.Read(outPtr, outLen)
	if !ok {
		return nil, apperrors.Wrap("vchunk.WASMTransform", apperrors.Compression, "guest memory read out of range")
	}
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}

// Close releases the WASM runtime.
func (t *WASMTransform) Close() error {
	return t.runtime.Close(t.ctx)
}
