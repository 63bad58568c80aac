package vtrie

// Reader is an iteration pointer pinned to the node graph that was
// current in its snapshot at the moment of issue. The pin is permanent:
// later writes through the snapshot replace nodes instead of mutating
// them, so the reader keeps enumerating exactly the key set it was born
// with. A Reader is released only by Snapshot.CloseReader; letting it go
// out of scope does not release it.
type Reader struct {
	id   uint64
	root *node
}

// ID returns the identity CloseReader expects; ids are issued strictly
// increasing from 0 within a snapshot and never reused.
func (r *Reader) ID() uint64 {
	return r.id
}

// Iter starts a fresh lexicographic traversal over the pinned graph.
// Each call restarts from the first key; the sequence is finite and
// unaffected by snapshot writes made after the reader was issued.
func (r *Reader) Iter() *Iterator {
	return newIterator(r.root)
}

// Iterator walks a fixed trie in lexicographic key order:
//
//	it := r.Iter()
//	for it.Next() {
//	    use(it.Key(), it.Value(), it.Ts())
//	}
//
// Key returns a buffer reused by the next Next call; copy it to retain.
type Iterator struct {
	stack []iterFrame
	key   []byte
	value []byte
	ts    uint64
}

type iterFrame struct {
	n        *node
	nextEdge int
	keyStart int // length of the key buffer before this node's prefix
	leafDone bool
}

func newIterator(root *node) *Iterator {
	it := &Iterator{}
	if root != nil {
		it.key = append(it.key, root.prefix...)
		it.stack = append(it.stack, iterFrame{n: root})
	}
	return it
}

// Next advances to the next entry, returning false when the traversal is
// exhausted.
func (it *Iterator) Next() bool {
	for len(it.stack) > 0 {
		f := &it.stack[len(it.stack)-1]
		if !f.leafDone {
			f.leafDone = true
			if f.n.leaf != nil {
				it.value = f.n.leaf.value
				it.ts = f.n.leaf.ts
				return true
			}
		}
		if f.nextEdge < len(f.n.edges) {
			child := f.n.edges[f.nextEdge].child
			f.nextEdge++
			start := len(it.key)
			it.key = append(it.key, child.prefix...)
			it.stack = append(it.stack, iterFrame{n: child, keyStart: start})
			continue
		}
		it.key = it.key[:f.keyStart]
		it.stack = it.stack[:len(it.stack)-1]
	}
	return false
}

// Key returns the current entry's key. The buffer is only valid until
// the next call to Next.
func (it *Iterator) Key() []byte {
	return it.key
}

// Value returns the current entry's value. Values are shared with the
// trie and must not be modified.
func (it *Iterator) Value() []byte {
	return it.value
}

// Ts returns the commit timestamp of the current entry.
func (it *Iterator) Ts() uint64 {
	return it.ts
}
