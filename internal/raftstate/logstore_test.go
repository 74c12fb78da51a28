package raftstate

import (
	"path/filepath"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "raft-log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltStore_StoreAndGetLog(t *testing.T) {
	store := openTestStore(t)

	entry := &raft.Log{Index: 1, Term: 1, Type: raft.LogCommand, Data: []byte("hello")}
	require.NoError(t, store.StoreLog(entry))

	var got raft.Log
	require.NoError(t, store.GetLog(1, &got))
	assert.Equal(t, entry.Data, got.Data)
	assert.Equal(t, entry.Term, got.Term)
}

func TestBoltStore_FirstAndLastIndex(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.StoreLogs([]*raft.Log{
		{Index: 5, Data: []byte("a")},
		{Index: 6, Data: []byte("b")},
		{Index: 7, Data: []byte("c")},
	}))

	first, err := store.FirstIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), first)

	last, err := store.LastIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), last)
}

func TestBoltStore_DeleteRange(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.StoreLogs([]*raft.Log{
		{Index: 1, Data: []byte("a")},
		{Index: 2, Data: []byte("b")},
		{Index: 3, Data: []byte("c")},
	}))

	require.NoError(t, store.DeleteRange(1, 2))

	var got raft.Log
	assert.Equal(t, raft.ErrLogNotFound, store.GetLog(1, &got))
	require.NoError(t, store.GetLog(3, &got))
}

func TestBoltStore_StableStore_SetGet(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Set([]byte("CurrentTerm"), []byte("42")))
	v, err := store.Get([]byte("CurrentTerm"))
	require.NoError(t, err)
	assert.Equal(t, []byte("42"), v)

	require.NoError(t, store.SetUint64([]byte("LastVoteTerm"), 9))
	u, err := store.GetUint64([]byte("LastVoteTerm"))
	require.NoError(t, err)
	assert.Equal(t, uint64(9), u)
}

func TestBoltStore_GetUint64_MissingReturnsZero(t *testing.T) {
	store := openTestStore(t)

	u, err := store.GetUint64([]byte("nope"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), u)
}
