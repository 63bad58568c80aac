package vtrie

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Tree is the top-level store. It owns the base root, the monotonically
// increasing timestamp counter, and the registry of open snapshots.
// All methods are safe for concurrent use.
//
// The registry and each snapshot's closed flag form a single authority:
// a snapshot is deregistered in the same step that marks it closed,
// whether the close was initiated on the Snapshot or through
// CloseSnapshot, so the two can never disagree.
type Tree struct {
	mu         sync.Mutex
	root       *node
	lastTs     uint64
	snaps      map[uint64]*Snapshot
	nextSnapID uint64

	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64
}

func New() *Tree {
	return &Tree{
		snaps: make(map[uint64]*Snapshot),
	}
}

// Insert writes a key-value pair into the base store, committing at the
// next timestamp on the tree's timeline. Open snapshots do not observe
// the write; they keep the root they captured at creation.
func (t *Tree) Insert(key, value []byte) error {
	value = bytes.Clone(value)
	t.mu.Lock()
	defer t.mu.Unlock()
	commitTs := t.lastTs + 1
	t.root = insertNode(t.root, key, value, commitTs)
	t.lastTs = commitTs
	t.WriteCount.Add(1)
	return nil
}

// InsertAt replays a write at an explicit commit timestamp, for
// restoring archived entries with their original clocks. The timestamp
// must advance the tree's timeline; otherwise InsertAt fails with
// ErrStaleTimestamp and changes nothing.
func (t *Tree) InsertAt(key, value []byte, ts uint64) error {
	value = bytes.Clone(value)
	t.mu.Lock()
	defer t.mu.Unlock()
	if ts <= t.lastTs {
		return ErrStaleTimestamp
	}
	t.root = insertNode(t.root, key, value, ts)
	t.lastTs = ts
	t.WriteCount.Add(1)
	return nil
}

// Get returns the value and commit timestamp recorded for key in the
// base store, observing only writes committed at or before ts. Fails
// with ErrKeyNotFound when no such write exists.
func (t *Tree) Get(key []byte, ts uint64) ([]byte, uint64, error) {
	t.mu.Lock()
	root := t.root
	t.mu.Unlock()

	t.ReadCount.Add(1)
	return getNode(root, key, ts)
}

// Ts returns the timestamp recorded on the current base root, i.e. the
// bound a Get needs to observe every write made so far through the tree.
func (t *Tree) Ts() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root.ts()
}

// CreateSnapshot registers a new isolated view seeded with the tree's
// current root and timestamp. Snapshot ids are assigned from a counter
// starting at 0 and are not reused.
func (t *Tree) CreateSnapshot() *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &Snapshot{
		id:      t.nextSnapID,
		owner:   t,
		root:    t.root,
		ts:      t.lastTs,
		readers: make(map[uint64]*Reader),
	}
	t.nextSnapID++
	t.snaps[s.id] = s
	return s
}

// SnapshotCount returns the number of currently open snapshots.
func (t *Tree) SnapshotCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.snaps)
}

// Snapshot returns the open snapshot with the given id, or nil.
func (t *Tree) Snapshot(id uint64) *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snaps[id]
}

// CloseSnapshot closes the open snapshot with the given id and removes
// it from the registry. Fails with ErrSnapshotNotFound for an unknown
// id, and propagates ErrSnapshotReadersNotClosed if the snapshot still
// has active readers.
func (t *Tree) CloseSnapshot(id uint64) error {
	t.mu.Lock()
	s := t.snaps[id]
	t.mu.Unlock()
	if s == nil {
		return ErrSnapshotNotFound
	}
	return s.Close()
}

func (t *Tree) forgetSnapshot(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.snaps, id)
}
