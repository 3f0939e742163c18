package bbolt

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/corey/dmtree/internal/ports"
)

// =============================================================================
// Snapshot store: save/load, replacement, restart, lock contention
// =============================================================================

// newTestStore creates a temporary bbolt store for testing.
func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	store, err := NewStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

// makeTestSnapshot creates a snapshot whose tree bytes contain NULs, like a
// real msgpack payload.
func makeTestSnapshot(tag string) *ports.Snapshot {
	return &ports.Snapshot{
		Fingerprint: []byte("fp-" + tag),
		Files:       []string{"/src/" + tag + ".dme", "/src/code/obj.dm"},
		Tree:        []byte("tree\x00" + tag + "\x00payload"),
		CreatedAt:   1700000000,
	}
}

func TestStore_SaveLoadSnapshot_Roundtrip(t *testing.T) {
	store, _ := newTestStore(t)
	original := makeTestSnapshot("game")

	require.NoError(t, store.SaveSnapshot("/src/game.dme", original))

	loaded, err := store.LoadSnapshot("/src/game.dme")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, original, loaded)
}

func TestStore_LoadMissing(t *testing.T) {
	store, _ := newTestStore(t)

	snap, err := store.LoadSnapshot("/nowhere.dme")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestStore_SaveReplaces(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.SaveSnapshot("k", makeTestSnapshot("first")))
	second := &ports.Snapshot{Fingerprint: []byte("fp-2"), Files: []string{"/src/b.dme"}, CreatedAt: 5}
	require.NoError(t, store.SaveSnapshot("k", second))

	loaded, err := store.LoadSnapshot("k")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, second.Fingerprint, loaded.Fingerprint)
	assert.Equal(t, second.Files, loaded.Files)
	assert.Empty(t, loaded.Tree, "old tree bytes must not survive a replace")
}

func TestStore_SaveRejectsBadInput(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Error(t, store.SaveSnapshot("k", nil))
	assert.Error(t, store.SaveSnapshot("", makeTestSnapshot("x")))
}

func TestStore_KeysDeleteClear(t *testing.T) {
	store, _ := newTestStore(t)

	for _, k := range []string{"/b.dme", "/a.dme", "/c.dme"} {
		require.NoError(t, store.SaveSnapshot(k, makeTestSnapshot(k)))
	}
	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.dme", "/b.dme", "/c.dme"}, keys)

	require.NoError(t, store.DeleteSnapshot("/b.dme"))
	snap, err := store.LoadSnapshot("/b.dme")
	require.NoError(t, err)
	assert.Nil(t, snap)

	// Other keys unaffected
	snap, err = store.LoadSnapshot("/a.dme")
	require.NoError(t, err)
	assert.NotNil(t, snap)

	// Delete nonexistent: idempotent
	assert.NoError(t, store.DeleteSnapshot("/b.dme"))

	require.NoError(t, store.Clear())
	keys, err = store.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_CorruptMeta(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.SaveSnapshot("k", makeTestSnapshot("k")))

	require.NoError(t, store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte("k")).Put(keyMeta, []byte{99, 0x80})
	}))

	_, err := store.LoadSnapshot("k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported meta version 99")
}

func TestStore_ConcurrentReads(t *testing.T) {
	// bbolt supports concurrent readers, single writer.
	store, _ := newTestStore(t)
	require.NoError(t, store.SaveSnapshot("k", makeTestSnapshot("k")))

	var wg sync.WaitGroup
	errs := make(chan error, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := store.LoadSnapshot("k")
			if err != nil {
				errs <- err
				return
			}
			if snap == nil {
				errs <- fmt.Errorf("got nil snapshot")
				return
			}
			if len(snap.Files) != 2 {
				errs <- fmt.Errorf("expected 2 files, got %d", len(snap.Files))
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent read error: %v", err)
	}
}

func TestStore_SnapshotSurvivesRestart(t *testing.T) {
	// Save, close, reopen, load: simulates a process restart.
	dir := t.TempDir()
	path := filepath.Join(dir, "restart.db")

	store1, err := NewStore(path)
	require.NoError(t, err)
	original := makeTestSnapshot("game")
	require.NoError(t, store1.SaveSnapshot("/src/game.dme", original))
	require.NoError(t, store1.Close())

	// Verify file exists on disk
	_, err = os.Stat(path)
	require.NoError(t, err)

	store2, err := NewStore(path)
	require.NoError(t, err)
	defer store2.Close()

	loaded, err := store2.LoadSnapshot("/src/game.dme")
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

// =============================================================================
// Lock contention: the 1s timeout bounds the wait
// =============================================================================

func TestStore_OpenTimeout_DoesNotHang(t *testing.T) {
	// A second open of a held database should time out in ~1 second.
	dir := t.TempDir()
	path := filepath.Join(dir, "locked.db")

	store1, err := NewStore(path)
	require.NoError(t, err)
	defer store1.Close()

	start := time.Now()
	store2, err := NewStore(path)
	elapsed := time.Since(start)

	require.Error(t, err, "second open should fail with lock timeout")
	assert.Nil(t, store2, "store should be nil on timeout")
	assert.Contains(t, err.Error(), "bbolt open")
	assert.Contains(t, err.Error(), "timeout")
	assert.Less(t, elapsed, 3*time.Second, "should complete within 3s, not hang")
	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond, "should wait ~1s for the configured timeout")
}

func TestStore_OpenAfterClose_Succeeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "released.db")

	store1, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store1.SaveSnapshot("k", makeTestSnapshot("k")))
	store1.Close()

	start := time.Now()
	store2, err := NewStore(path)
	elapsed := time.Since(start)

	require.NoError(t, err, "open after close should succeed")
	require.NotNil(t, store2)
	assert.Less(t, elapsed, 500*time.Millisecond, "should open instantly after lock released")
	defer store2.Close()

	keys, err := store2.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
}
