// Package bbolt implements ports.SnapshotStore using bbolt (embedded B+ tree).
// Each cached root file gets its own top-level bucket named by its absolute
// path. Within that bucket, "meta" holds the fingerprint and file list and
// "tree" holds the encoded tree as-is. Writes are transactional: a crash
// mid-write cannot corrupt previously committed snapshots.
package bbolt

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/corey/dmtree/internal/ports"
)

// Bucket keys
var (
	keyMeta = []byte("meta")
	keyTree = []byte("tree")
)

// Store implements ports.SnapshotStore backed by bbolt.
type Store struct {
	db *bolt.DB
}

// NewStore opens (or creates) a bbolt database at the given path.
func NewStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces the snapshot stored under key.
func (s *Store) SaveSnapshot(key string, snap *ports.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	if key == "" {
		return fmt.Errorf("empty snapshot key")
	}

	meta, err := encodeMeta(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot meta: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		// Replace rather than merge so a shorter tree never keeps stale bytes.
		if err := tx.DeleteBucket([]byte(key)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket([]byte(key))
		if err != nil {
			return err
		}
		if err := b.Put(keyMeta, meta); err != nil {
			return err
		}
		if len(snap.Tree) == 0 {
			return nil
		}
		return b.Put(keyTree, snap.Tree)
	})
}

// LoadSnapshot retrieves the snapshot stored under key.
// Returns nil, nil if none exists.
func (s *Store) LoadSnapshot(key string) (*ports.Snapshot, error) {
	var meta, tree []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(key))
		if b == nil {
			return nil
		}
		// Copy bytes out of the transaction (bbolt slices are only valid within tx)
		if v := b.Get(keyMeta); v != nil {
			meta = make([]byte, len(v))
			copy(meta, v)
		}
		if v := b.Get(keyTree); v != nil {
			tree = make([]byte, len(v))
			copy(tree, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if meta == nil {
		return nil, nil
	}

	snap, err := decodeMeta(meta)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot meta for %s: %w", key, err)
	}
	snap.Tree = tree
	return snap, nil
}

// DeleteSnapshot removes the snapshot stored under key.
// Idempotent: deleting a missing key is not an error.
func (s *Store) DeleteSnapshot(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(key)); errors.Is(err, bolt.ErrBucketNotFound) {
			return nil // idempotent
		} else {
			return err
		}
	})
}

// Keys lists every stored key in byte order.
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			keys = append(keys, string(name))
			return nil
		})
	})
	return keys, err
}

// Clear removes every snapshot in one transaction.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var names [][]byte
		if err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, append([]byte(nil), name...))
			return nil
		}); err != nil {
			return err
		}
		for _, name := range names {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}
