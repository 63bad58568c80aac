package vtrie

import (
	"bytes"
	"sort"
)

// node is a vertex of a compressed radix trie. Nodes are immutable after
// construction and multiply owned: any number of roots (the tree's, each
// snapshot's, each pinned reader's) may reference the same node. Writes
// clone the path they touch and leave everything else shared.
type node struct {
	// prefix is the compressed key fragment leading into this node. For a
	// non-root node its first byte doubles as the edge label in the parent.
	prefix []byte

	// leaf holds the entry whose key ends exactly at this node, if any.
	leaf *leaf

	// edges are the children, sorted by their first prefix byte. No two
	// edges share a first byte.
	edges []edge

	// maxTs is the highest commit timestamp reachable in this subtree.
	maxTs uint64
}

type edge struct {
	label byte
	child *node
}

type leaf struct {
	value []byte
	ts    uint64
}

// ts reports the highest commit timestamp reachable from n, 0 for an
// empty tree.
func (n *node) ts() uint64 {
	if n == nil {
		return 0
	}
	return n.maxTs
}

// clone returns a shallow copy of n that can be modified before being
// published. The edges slice is copied so the original stays frozen; the
// children themselves remain shared.
func (n *node) clone() *node {
	c := &node{
		prefix: n.prefix,
		leaf:   n.leaf,
		maxTs:  n.maxTs,
	}
	if len(n.edges) > 0 {
		c.edges = make([]edge, len(n.edges))
		copy(c.edges, n.edges)
	}
	return c
}

func (n *node) findEdge(label byte) (int, bool) {
	i := sort.Search(len(n.edges), func(i int) bool {
		return n.edges[i].label >= label
	})
	if i < len(n.edges) && n.edges[i].label == label {
		return i, true
	}
	return i, false
}

func commonPrefixLen(a, b []byte) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// insertNode adds or replaces key in the trie rooted at n, committing at
// ts, and returns the root of the rebuilt path. Nothing reachable from n
// is modified; untouched subtrees are shared between the old and the new
// root. A nil n stands for an empty tree.
func insertNode(n *node, key, value []byte, ts uint64) *node {
	if n == nil {
		return &node{
			prefix: bytes.Clone(key),
			leaf:   &leaf{value: value, ts: ts},
			maxTs:  ts,
		}
	}

	common := commonPrefixLen(n.prefix, key)

	if common < len(n.prefix) {
		// The key diverges inside this node's compressed fragment: split the
		// fragment and hang the old node below the split point.
		lower := n.clone()
		lower.prefix = n.prefix[common:]

		branch := &node{
			prefix: bytes.Clone(n.prefix[:common]),
			maxTs:  max(n.maxTs, ts),
		}
		if common == len(key) {
			branch.leaf = &leaf{value: value, ts: ts}
			branch.edges = []edge{{lower.prefix[0], lower}}
		} else {
			sibling := &node{
				prefix: bytes.Clone(key[common:]),
				leaf:   &leaf{value: value, ts: ts},
				maxTs:  ts,
			}
			a, b := edge{lower.prefix[0], lower}, edge{sibling.prefix[0], sibling}
			if a.label > b.label {
				a, b = b, a
			}
			branch.edges = []edge{a, b}
		}
		return branch
	}

	rest := key[common:]
	c := n.clone()
	c.maxTs = max(c.maxTs, ts)

	if len(rest) == 0 {
		c.leaf = &leaf{value: value, ts: ts}
		return c
	}

	if i, ok := c.findEdge(rest[0]); ok {
		c.edges[i].child = insertNode(c.edges[i].child, rest, value, ts)
	} else {
		child := &node{
			prefix: bytes.Clone(rest),
			leaf:   &leaf{value: value, ts: ts},
			maxTs:  ts,
		}
		c.edges = append(c.edges, edge{})
		copy(c.edges[i+1:], c.edges[i:])
		c.edges[i] = edge{rest[0], child}
	}
	return c
}

// getNode looks key up in the trie rooted at n, observing only writes
// committed at or before maxTs.
func getNode(n *node, key []byte, maxTs uint64) ([]byte, uint64, error) {
	for n != nil {
		if !bytes.HasPrefix(key, n.prefix) {
			break
		}
		key = key[len(n.prefix):]
		if len(key) == 0 {
			if n.leaf == nil || n.leaf.ts > maxTs {
				break
			}
			return n.leaf.value, n.leaf.ts, nil
		}
		i, ok := n.findEdge(key[0])
		if !ok {
			break
		}
		n = n.edges[i].child
	}
	return nil, 0, ErrKeyNotFound
}

// countNodes reports the number of nodes, the number of leaves, and the
// deepest node chain in the subtree.
func countNodes(n *node) (nodes, keys, depth int) {
	if n == nil {
		return 0, 0, 0
	}
	nodes = 1
	if n.leaf != nil {
		keys = 1
	}
	for _, e := range n.edges {
		cn, ck, cd := countNodes(e.child)
		nodes += cn
		keys += ck
		depth = max(depth, cd)
	}
	return nodes, keys, depth + 1
}
