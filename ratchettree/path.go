package ratchettree

// DirectPathFrom returns the ordered list of ancestor node indices
// from leaf (exclusive) to the root, for a tree of the current leaf
// count, re-exported here so callers outside the package need not
// import the index arithmetic directly.
func (t *RatchetTree) DirectPathFrom(idx LeafIndex) []NodeIndex {
	return DirectPath(idx.ToNodeIndex(), t.LeafCount())
}

// CopathFrom returns idx's copath, parallel in order to DirectPathFrom.
func (t *RatchetTree) CopathFrom(idx LeafIndex) []NodeIndex {
	return Copath(idx.ToNodeIndex(), t.LeafCount())
}

// Resolution computes the resolution of node n: the set of non-blank
// node indices that collectively cover n's subtree, used to choose
// which members' keys an UpdatePath's path secrets must be encrypted
// to (RFC 9420 §7.9). A non-blank node resolves to itself plus any
// leaves recorded in its unmerged-leaves set (their secrets were not
// yet derived from this node, so they need their own ciphertext). A
// blank node resolves to the concatenation of its children's
// resolutions; a blank leaf resolves to nothing.
func (t *RatchetTree) Resolution(n NodeIndex) []NodeIndex {
	if n.IsLeaf() {
		idx := n.ToLeafIndex()
		if t.leaves[idx].IsBlank() {
			return nil
		}
		return []NodeIndex{n}
	}

	parent := *t.parentAt(n)
	if parent == nil {
		return append(t.Resolution(Left(n)), t.Resolution(Right(n))...)
	}

	res := []NodeIndex{n}
	for _, u := range parent.UnmergedLeaves {
		res = append(res, u.ToNodeIndex())
	}
	return res
}
