/*
Package ratchettree implements the left-balanced binary ratchet tree
(TreeKEM) that holds per-member key material: leaves for members,
parent nodes for intermediate public keys and unmerged-leaf tracking.
Node relations are pure functions of an integer index, the same
dense-array-plus-index-arithmetic approach nochat.io's sparse Merkle
tree uses for its transparency log (internal/transparency/merkle.go),
adapted here from a 256-level sparse bit-path tree to a log2(n)-level
left-balanced tree sized to the group.
*/
package ratchettree

// LeafIndex identifies a leaf slot. Stable for the member's lifetime
// in the group; freed slots are reused by later Adds.
type LeafIndex uint32

// NodeIndex is derived from LeafIndex: even indices are leaves (2*i),
// odd indices are parents. All structural relations are pure
// functions of the index, so the tree itself is stored as a flat
// array with no pointers.
type NodeIndex uint32

// LeafCount is the number of leaf slots a tree currently has.
type LeafCount uint32

// ToNodeIndex converts a leaf index to its node-array position.
func (l LeafIndex) ToNodeIndex() NodeIndex { return NodeIndex(2 * uint32(l)) }

// IsLeaf reports whether n occupies a leaf slot.
func (n NodeIndex) IsLeaf() bool { return n%2 == 0 }

// ToLeafIndex converts a leaf-slot node index back to a LeafIndex. The
// caller must already know n.IsLeaf().
func (n NodeIndex) ToLeafIndex() LeafIndex { return LeafIndex(n / 2) }

// nodeWidth returns the number of node-array slots (2n-1) for a tree
// with leafCount leaves.
func nodeWidth(leafCount LeafCount) uint32 {
	n := uint32(leafCount)
	if n == 0 {
		return 0
	}
	return 2*(n-1) + 1
}

// log2 returns the floor of log2(x), for x > 0.
func log2(x uint32) uint32 {
	if x == 0 {
		return 0
	}
	k := uint32(0)
	for (x >> k) > 0 {
		k++
	}
	return k - 1
}

// level returns a node's level in the tree: 0 for leaves, and for a
// parent, the number of trailing one-bits in its index.
func level(x NodeIndex) uint32 {
	ux := uint32(x)
	if ux&1 == 0 {
		return 0
	}
	k := uint32(0)
	for (ux>>k)&1 == 1 {
		k++
	}
	return k
}

// root returns the root node index of a tree with the given leaf
// count.
func root(leafCount LeafCount) NodeIndex {
	w := nodeWidth(leafCount)
	if w == 0 {
		return 0
	}
	return NodeIndex((uint32(1) << log2(w)) - 1)
}

// Root returns the root node index of a tree with the given leaf
// count.
func Root(leafCount LeafCount) NodeIndex { return root(leafCount) }

// IsRoot reports whether x is the root of a tree with the given leaf
// count.
func IsRoot(x NodeIndex, leafCount LeafCount) bool { return x == root(leafCount) }

// Left returns a parent node's left child. Undefined for a leaf.
func Left(x NodeIndex) NodeIndex {
	k := level(x)
	if k == 0 {
		return x
	}
	return NodeIndex(uint32(x) ^ (1 << (k - 1)))
}

// Right returns a parent node's right child. Undefined for a leaf.
func Right(x NodeIndex) NodeIndex {
	k := level(x)
	if k == 0 {
		return x
	}
	return NodeIndex(uint32(x) ^ (3 << (k - 1)))
}

// parentStep computes the immediate algebraic parent of x, without
// regard to whether that index actually lies within a tree of a given
// width. Parent climbs past out-of-tree results for unbalanced trees.
func parentStep(x NodeIndex) NodeIndex {
	k := level(x)
	ux := uint32(x)
	b := (ux >> (k + 1)) & 1
	return NodeIndex((ux | (1 << k)) ^ (b << (k + 1)))
}

// Parent returns x's parent node index within a tree of the given leaf
// count. Callers must check IsRoot first; calling Parent on the root
// returns x unchanged.
func Parent(x NodeIndex, leafCount LeafCount) NodeIndex {
	rt := root(leafCount)
	if x == rt {
		return x
	}
	w := nodeWidth(leafCount)
	p := parentStep(x)
	for uint32(p) >= w {
		p = parentStep(p)
	}
	return p
}

// Sibling returns x's sibling node index within a tree of the given
// leaf count. Undefined at the root.
func Sibling(x NodeIndex, leafCount LeafCount) NodeIndex {
	p := Parent(x, leafCount)
	if x < p {
		return Right(p)
	}
	return Left(p)
}

// DirectPath returns the sequence of ancestor node indices from x
// (exclusive) up to and including the root, in that order.
func DirectPath(x NodeIndex, leafCount LeafCount) []NodeIndex {
	var path []NodeIndex
	rt := root(leafCount)
	cur := x
	for cur != rt {
		cur = Parent(cur, leafCount)
		path = append(path, cur)
	}
	return path
}

// Copath returns the sibling of each node on x's direct path,
// including x's own sibling first. Parallel in length and order to
// DirectPath.
func Copath(x NodeIndex, leafCount LeafCount) []NodeIndex {
	if IsRoot(x, leafCount) {
		return nil
	}
	copath := []NodeIndex{Sibling(x, leafCount)}
	for _, p := range DirectPath(x, leafCount) {
		if IsRoot(p, leafCount) {
			break
		}
		copath = append(copath, Sibling(p, leafCount))
	}
	return copath
}

// IsAncestor reports whether ancestor lies on descendant's direct path
// (or is descendant itself).
func IsAncestor(ancestor, descendant NodeIndex, leafCount LeafCount) bool {
	if ancestor == descendant {
		return true
	}
	for _, n := range DirectPath(descendant, leafCount) {
		if n == ancestor {
			return true
		}
	}
	return false
}
