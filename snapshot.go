package vtrie

import (
	"bytes"
	"sync"
)

// Snapshot is an isolated point-in-time view of the keyspace. It
// captures the tree's root and timestamp at creation and from then on
// runs its own timeline: writes through the snapshot advance only the
// snapshot's clock and rebind only the snapshot's root, while every
// untouched subtree stays physically shared with the tree and with
// sibling snapshots.
//
// Reader issuance and revocation are safe from any number of concurrent
// goroutines. Insert and Close are not serialized against each other:
// the snapshot assumes a single writer, the way a transaction owning it
// would serialize its own statements. Whatever happens, a Snapshot never
// shares mutable state with another Snapshot or with the Tree.
type Snapshot struct {
	id    uint64
	owner *Tree

	mu         sync.Mutex
	root       *node
	ts         uint64
	readers    map[uint64]*Reader
	nextReader uint64
	closed     bool
}

// ID returns the identity the owning tree assigned at creation. Ids are
// never reused while the snapshot is open.
func (s *Snapshot) ID() uint64 {
	return s.id
}

// Insert writes a key-value pair into the snapshot's private view,
// committing at the next timestamp on the snapshot's timeline. The write
// is invisible to the tree, to sibling snapshots, and to readers issued
// before it. Fails with ErrSnapshotClosed after Close.
//
// The replacement path is built off to the side and the root slot is
// rebound only once it is complete, so a failed or in-flight insert
// never exposes a partial tree.
func (s *Snapshot) Insert(key, value []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSnapshotClosed
	}
	root, commitTs := s.root, s.ts+1
	s.mu.Unlock()

	newRoot := insertNode(root, key, bytes.Clone(value), commitTs)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSnapshotClosed
	}
	s.root = newRoot
	s.ts = commitTs
	return nil
}

// Get returns the value and commit timestamp recorded for key, observing
// only writes committed at or before ts on this view. Fails with
// ErrKeyNotFound when no such write is reachable from the current root,
// and with ErrSnapshotClosed after Close.
func (s *Snapshot) Get(key []byte, ts uint64) ([]byte, uint64, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, 0, ErrSnapshotClosed
	}
	root := s.root
	s.mu.Unlock()

	return getNode(root, key, ts)
}

// Ts returns the timestamp recorded on the current root: pass it to a
// subsequent Get to observe everything written so far through this
// snapshot.
func (s *Snapshot) Ts() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root.ts()
}

// Close marks the snapshot closed and deregisters it from the owning
// tree, irreversibly. Fails with ErrSnapshotClosed if already closed and
// with ErrSnapshotReadersNotClosed while any reader remains active;
// already-issued readers stay valid either way, since they own a share
// of the node graph.
func (s *Snapshot) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSnapshotClosed
	}
	if len(s.readers) > 0 {
		s.mu.Unlock()
		return ErrSnapshotReadersNotClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.owner.forgetSnapshot(s.id)
	return nil
}

// NewReader issues an iteration pointer pinned to the snapshot's current
// root. Reader ids increase strictly from 0 and are never reused within
// the snapshot's lifetime. The reader counts as active until passed to
// CloseReader. Fails with ErrSnapshotClosed after Close.
func (s *Snapshot) NewReader() (*Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSnapshotClosed
	}
	r := &Reader{id: s.nextReader, root: s.root}
	s.nextReader++
	s.readers[r.id] = r
	return r, nil
}

// ActiveReaders returns the number of issued readers not yet closed.
// Fails with ErrSnapshotClosed after Close.
func (s *Snapshot) ActiveReaders() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSnapshotClosed
	}
	return len(s.readers), nil
}

// CloseReader revokes a previously issued reader. Fails with
// ErrReaderNotFound for an id that was never issued or was already
// closed, and with ErrSnapshotClosed after Close.
func (s *Snapshot) CloseReader(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSnapshotClosed
	}
	if _, ok := s.readers[id]; !ok {
		return ErrReaderNotFound
	}
	delete(s.readers, id)
	return nil
}
