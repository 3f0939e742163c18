// Package ports defines the interfaces (contracts) that adapters must implement.
// These are the boundaries of the hexagonal architecture. Domain logic depends
// only on these interfaces, never on concrete implementations.
package ports

// SnapshotStore persists encoded trees so a later load can skip reading the
// sources. Entries are keyed by the absolute path of the root file.
// Concurrent reads are safe; writes are serialized by the adapter.
//
// Crash safety: SaveSnapshot must be transactional. A crash mid-write must not
// corrupt previously committed snapshots.
type SnapshotStore interface {
	// SaveSnapshot stores snap under key, replacing any prior entry.
	SaveSnapshot(key string, snap *Snapshot) error

	// LoadSnapshot returns the snapshot for key.
	// Returns nil, nil if none exists.
	LoadSnapshot(key string) (*Snapshot, error)

	// DeleteSnapshot removes the entry for key.
	// Idempotent: deleting a missing key is not an error.
	DeleteSnapshot(key string) error

	// Keys lists every stored key in byte order.
	Keys() ([]string, error)

	// Clear removes every snapshot.
	Clear() error
}

// Snapshot is one cached tree.
type Snapshot struct {
	// Fingerprint identifies the exact inputs the tree was built from
	// (read options plus the contents of every file in Files).
	Fingerprint []byte `msgpack:"fingerprint"`

	// Files lists every source file that went into the tree, root first.
	Files []string `msgpack:"files"`

	// Tree is the encoding.EncodeTree payload.
	Tree []byte `msgpack:"tree"`

	// CreatedAt is a unix timestamp.
	CreatedAt int64 `msgpack:"created_at"`
}
