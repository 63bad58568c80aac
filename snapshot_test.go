package vtrie

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func setupTree(t *testing.T, keys ...string) *Tree {
	t.Helper()
	tree := New()
	for _, k := range keys {
		if err := tree.Insert([]byte(k), []byte("1")); err != nil {
			t.Fatalf("seeding %q: %v", k, err)
		}
	}
	return tree
}

func TestSnapshotCreation(t *testing.T) {
	tree := setupTree(t, "key_1", "key_2", "key_3")

	snap := tree.CreateSnapshot()
	if err := snap.Insert([]byte("key_1"), []byte("1")); err != nil {
		t.Fatalf("snapshot insert: %v", err)
	}

	if got, want := snap.Ts(), uint64(4); got != want {
		t.Errorf("snapshot ts = %d, wanted %d", got, want)
	}
	if got, want := tree.Ts(), uint64(3); got != want {
		t.Errorf("tree ts = %d, wanted %d", got, want)
	}
	if got := tree.SnapshotCount(); got != 1 {
		t.Errorf("snapshot count = %d, wanted 1", got)
	}
}

func TestSnapshotTsAdvancesByOnePerInsert(t *testing.T) {
	tree := setupTree(t, "seed")
	snap := tree.CreateSnapshot()

	start := snap.Ts()
	const n = 7
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key_%d", i)
		if err := snap.Insert([]byte(key), []byte("v")); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if got, want := snap.Ts(), start+uint64(i)+1; got != want {
			t.Fatalf("ts after insert %d = %d, wanted %d", i, got, want)
		}
	}
	if got, want := snap.Ts(), start+n; got != want {
		t.Errorf("final ts = %d, wanted %d", got, want)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	tree := New()
	key1 := []byte("key_1")
	key2 := []byte("key_2")
	key3Snap1 := []byte("key_3_snap1")
	key3Snap2 := []byte("key_3_snap2")

	ensure(tree.Insert(key1, []byte("1")))
	initialTs := tree.Ts()

	// Keys inserted before snapshot creation are visible.
	snap1 := tree.CreateSnapshot()
	if snap1.ID() != 0 {
		t.Fatalf("snap1 id = %d, wanted 0", snap1.ID())
	}
	assertGet(t, snap1, key1, initialTs, "1", 1)

	snap2 := tree.CreateSnapshot()
	if snap2.ID() != 1 {
		t.Fatalf("snap2 id = %d, wanted 1", snap2.ID())
	}
	assertGet(t, snap2, key1, initialTs, "1", 1)

	if got := tree.SnapshotCount(); got != 2 {
		t.Fatalf("snapshot count = %d, wanted 2", got)
	}

	// A key inserted into the base store after the fork is invisible to
	// both snapshots at every timestamp.
	ensure(tree.Insert(key2, []byte("1")))
	for _, ts := range []uint64{0, snap1.Ts(), tree.Ts(), 1000} {
		assertNotFound(t, snap1, key2, ts)
		assertNotFound(t, snap2, key2, ts)
	}

	// A key inserted into a snapshot is visible there and nowhere else.
	ensure(snap1.Insert(key3Snap1, []byte("2")))
	assertGet(t, snap1, key3Snap1, snap1.Ts(), "2", 2)

	ensure(snap2.Insert(key3Snap2, []byte("3")))
	assertGet(t, snap2, key3Snap2, snap2.Ts(), "3", 2)

	assertNotFound(t, snap1, key3Snap2, snap1.Ts())
	assertNotFound(t, snap2, key3Snap1, snap2.Ts())
	if _, _, err := tree.Get(key3Snap1, tree.Ts()); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("tree sees snapshot-private key: %v", err)
	}

	ensure(snap1.Close())
	ensure(snap2.Close())

	if got := tree.SnapshotCount(); got != 0 {
		t.Errorf("snapshot count after closes = %d, wanted 0", got)
	}
}

func assertGet(t *testing.T, kv KV, key []byte, ts uint64, wantValue string, wantTs uint64) {
	t.Helper()
	v, commitTs, err := kv.Get(key, ts)
	if err != nil {
		t.Fatalf("get %q@%d: %v", key, ts, err)
	}
	if string(v) != wantValue || commitTs != wantTs {
		t.Errorf("get %q@%d = (%q, %d), wanted (%q, %d)", key, ts, v, commitTs, wantValue, wantTs)
	}
	if commitTs > ts {
		t.Errorf("get %q@%d returned commit ts %d beyond the bound", key, ts, commitTs)
	}
}

func assertNotFound(t *testing.T, kv KV, key []byte, ts uint64) {
	t.Helper()
	if _, _, err := kv.Get(key, ts); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("get %q@%d = %v, wanted ErrKeyNotFound", key, ts, err)
	}
}

func TestSnapshotReaders(t *testing.T) {
	tree := setupTree(t, "key_1", "key_2", "key_3")
	snap := tree.CreateSnapshot()
	ensure(snap.Insert([]byte("key_4"), []byte("1")))

	reader1, err := snap.NewReader()
	if err != nil {
		t.Fatalf("reader 1: %v", err)
	}
	if got := countItems(reader1); got != 4 {
		t.Errorf("reader 1 sees %d items, wanted 4", got)
	}

	reader2, err := snap.NewReader()
	if err != nil {
		t.Fatalf("reader 2: %v", err)
	}
	if got := countItems(reader2); got != 4 {
		t.Errorf("reader 2 sees %d items, wanted 4", got)
	}

	if n := must(snap.ActiveReaders()); n != 2 {
		t.Errorf("active readers = %d, wanted 2", n)
	}
	if err := snap.Close(); !errors.Is(err, ErrSnapshotReadersNotClosed) {
		t.Fatalf("close with active readers = %v, wanted ErrSnapshotReadersNotClosed", err)
	}

	ensure(snap.CloseReader(reader1.ID()))
	if err := snap.Close(); !errors.Is(err, ErrSnapshotReadersNotClosed) {
		t.Fatalf("close with one active reader = %v, wanted ErrSnapshotReadersNotClosed", err)
	}
	ensure(snap.CloseReader(reader2.ID()))
	if err := snap.Close(); err != nil {
		t.Fatalf("close after readers closed: %v", err)
	}
}

func countItems(r *Reader) int {
	n := 0
	for it := r.Iter(); it.Next(); {
		n++
	}
	return n
}

func TestReaderIDsStrictlyIncrease(t *testing.T) {
	tree := setupTree(t, "k")
	snap := tree.CreateSnapshot()

	for want := uint64(0); want < 3; want++ {
		r := must(snap.NewReader())
		if r.ID() != want {
			t.Fatalf("reader id = %d, wanted %d", r.ID(), want)
		}
	}

	// Closing a reader does not recycle its id.
	ensure(snap.CloseReader(1))
	if r := must(snap.NewReader()); r.ID() != 3 {
		t.Errorf("reader id after close = %d, wanted 3", r.ID())
	}
	if n := must(snap.ActiveReaders()); n != 3 {
		t.Errorf("active readers = %d, wanted issued-minus-closed = 3", n)
	}
}

func TestCloseReaderUnknown(t *testing.T) {
	tree := setupTree(t, "k")
	snap := tree.CreateSnapshot()

	if err := snap.CloseReader(42); !errors.Is(err, ErrReaderNotFound) {
		t.Errorf("closing never-issued reader = %v, wanted ErrReaderNotFound", err)
	}

	r := must(snap.NewReader())
	ensure(snap.CloseReader(r.ID()))
	if err := snap.CloseReader(r.ID()); !errors.Is(err, ErrReaderNotFound) {
		t.Errorf("double-closing reader = %v, wanted ErrReaderNotFound", err)
	}
	if n := must(snap.ActiveReaders()); n != 0 {
		t.Errorf("active readers = %d, wanted 0", n)
	}
}

func TestClosedSnapshotRejectsEverything(t *testing.T) {
	tree := setupTree(t, "k")
	snap := tree.CreateSnapshot()
	ensure(snap.Close())

	if err := snap.Insert([]byte("x"), []byte("1")); !errors.Is(err, ErrSnapshotClosed) {
		t.Errorf("Insert = %v, wanted ErrSnapshotClosed", err)
	}
	if _, _, err := snap.Get([]byte("k"), 1); !errors.Is(err, ErrSnapshotClosed) {
		t.Errorf("Get = %v, wanted ErrSnapshotClosed", err)
	}
	if _, err := snap.NewReader(); !errors.Is(err, ErrSnapshotClosed) {
		t.Errorf("NewReader = %v, wanted ErrSnapshotClosed", err)
	}
	if _, err := snap.ActiveReaders(); !errors.Is(err, ErrSnapshotClosed) {
		t.Errorf("ActiveReaders = %v, wanted ErrSnapshotClosed", err)
	}
	if err := snap.CloseReader(0); !errors.Is(err, ErrSnapshotClosed) {
		t.Errorf("CloseReader = %v, wanted ErrSnapshotClosed", err)
	}
	if _, err := snap.Stats(); !errors.Is(err, ErrSnapshotClosed) {
		t.Errorf("Stats = %v, wanted ErrSnapshotClosed", err)
	}
	if err := snap.Close(); !errors.Is(err, ErrSnapshotClosed) {
		t.Errorf("second Close = %v, wanted ErrSnapshotClosed", err)
	}
}

func TestReaderSurvivesSnapshotClose(t *testing.T) {
	tree := setupTree(t, "a", "b")
	snap := tree.CreateSnapshot()

	r := must(snap.NewReader())
	ensure(snap.CloseReader(r.ID()))
	ensure(snap.Close())

	// The reader owns a share of the immutable graph; revocation and even
	// snapshot closure leave its enumeration intact.
	if got := countItems(r); got != 2 {
		t.Errorf("reader after snapshot close sees %d items, wanted 2", got)
	}
}

func TestConcurrentReaderIssuance(t *testing.T) {
	tree := setupTree(t, "a", "b", "c")
	snap := tree.CreateSnapshot()

	const goroutines = 16
	const perGoroutine = 50

	var wg sync.WaitGroup
	ids := make(chan uint64, goroutines*perGoroutine)
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				r, err := snap.NewReader()
				if err != nil {
					t.Errorf("NewReader: %v", err)
					return
				}
				if _, err := snap.ActiveReaders(); err != nil {
					t.Errorf("ActiveReaders: %v", err)
					return
				}
				ids <- r.ID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("reader id %d issued twice", id)
		}
		seen[id] = true
		ensure(snap.CloseReader(id))
	}
	if len(seen) != goroutines*perGoroutine {
		t.Fatalf("issued %d ids, wanted %d", len(seen), goroutines*perGoroutine)
	}

	if n := must(snap.ActiveReaders()); n != 0 {
		t.Fatalf("active readers = %d, wanted 0", n)
	}
	if err := snap.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
