package raftstate

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"

	"github.com/boltdb/bolt"
	"github.com/hashicorp/raft"

	"github.com/FairForge/vaultaire/internal/apperrors"
)

var (
	logsBucket   = []byte("logs")
	stableBucket = []byte("stable")
)

// BoltStore implements raft.LogStore and raft.StableStore directly over a
// bolt.DB file: one bucket holding log entries keyed by big-endian index,
// one bucket holding the small set of stable key/value pairs raft itself
// maintains (current term, last vote, ...).
type BoltStore struct {
	db *bolt.DB
}

var (
	_ raft.LogStore    = (*BoltStore)(nil)
	_ raft.StableStore = (*BoltStore)(nil)
)

// NewBoltStore opens (creating if absent) a bolt file at path and ensures
// both buckets exist.
func NewBoltStore(path string) (*BoltStore, error) {
	const fn = "raftstate.NewBoltStore"

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, apperrors.Wrap(fn, apperrors.Storage, "open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(logsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(stableBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, apperrors.Wrap(fn, apperrors.Storage, "create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close releases the underlying bolt file.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func uint64ToBytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func bytesToUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// FirstIndex implements raft.LogStore.
func (b *BoltStore) FirstIndex() (uint64, error) {
	var idx uint64
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(logsBucket).Cursor()
		k, _ := c.First()
		if k != nil {
			idx = bytesToUint64(k)
		}
		return nil
	})
	return idx, err
}

// LastIndex implements raft.LogStore.
func (b *BoltStore) LastIndex() (uint64, error) {
	var idx uint64
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(logsBucket).Cursor()
		k, _ := c.Last()
		if k != nil {
			idx = bytesToUint64(k)
		}
		return nil
	})
	return idx, err
}

// GetLog implements raft.LogStore.
func (b *BoltStore) GetLog(index uint64, log *raft.Log) error {
	return b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(logsBucket).Get(uint64ToBytes(index))
		if v == nil {
			return raft.ErrLogNotFound
		}
		return gob.NewDecoder(bytes.NewReader(v)).Decode(log)
	})
}

// StoreLog implements raft.LogStore.
func (b *BoltStore) StoreLog(log *raft.Log) error {
	return b.StoreLogs([]*raft.Log{log})
}

// StoreLogs implements raft.LogStore.
func (b *BoltStore) StoreLogs(logs []*raft.Log) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(logsBucket)
		for _, log := range logs {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(log); err != nil {
				return err
			}
			if err := bucket.Put(uint64ToBytes(log.Index), buf.Bytes()); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteRange implements raft.LogStore, removing log entries in [min, max].
func (b *BoltStore) DeleteRange(min, max uint64) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(logsBucket)
		c := bucket.Cursor()
		for k, _ := c.Seek(uint64ToBytes(min)); k != nil && bytesToUint64(k) <= max; k, _ = c.Next() {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Set implements raft.StableStore.
func (b *BoltStore) Set(key, val []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stableBucket).Put(key, val)
	})
}

// Get implements raft.StableStore.
func (b *BoltStore) Get(key []byte) ([]byte, error) {
	var val []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(stableBucket).Get(key)
		if v == nil {
			return errors.New("raftstate: not found")
		}
		val = append([]byte(nil), v...)
		return nil
	})
	return val, err
}

// SetUint64 implements raft.StableStore.
func (b *BoltStore) SetUint64(key []byte, val uint64) error {
	return b.Set(key, uint64ToBytes(val))
}

// GetUint64 implements raft.StableStore.
func (b *BoltStore) GetUint64(key []byte) (uint64, error) {
	v, err := b.Get(key)
	if err != nil {
		return 0, nil
	}
	return bytesToUint64(v), nil
}
