package vtrie

// TreeStats describes the shape of a node graph at one instant.
type TreeStats struct {
	Keys     int
	Nodes    int
	MaxDepth int
	Ts       uint64
}

// Stats walks the current base root. Because the graph is immutable the
// walk needs no lock beyond capturing the root.
func (t *Tree) Stats() TreeStats {
	t.mu.Lock()
	root := t.root
	t.mu.Unlock()
	return statsOf(root)
}

// Stats walks the snapshot's current root. Fails with ErrSnapshotClosed
// after Close.
func (s *Snapshot) Stats() (TreeStats, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return TreeStats{}, ErrSnapshotClosed
	}
	root := s.root
	s.mu.Unlock()
	return statsOf(root), nil
}

func statsOf(root *node) TreeStats {
	nodes, keys, depth := countNodes(root)
	return TreeStats{
		Keys:     keys,
		Nodes:    nodes,
		MaxDepth: depth,
		Ts:       root.ts(),
	}
}
