package ratchettree

import (
	"sort"

	"github.com/kindlyrobotics/nochat-mls/leafnode"
)

// ParentNode is the public key material and membership bookkeeping
// held at an internal tree node. UnmergedLeaves tracks members who
// were added under this node before it last received a fresh path
// secret — their ratchet state is not yet derived from this node's
// key and callers must route around them when encrypting to it.
type ParentNode struct {
	HPKEPublicKey   []byte
	ParentHash      []byte
	UnmergedLeaves  []LeafIndex
}

// AddUnmergedLeaf inserts idx into the unmerged-leaf set, keeping it
// sorted and free of duplicates the way the RFC 9420 wire encoding
// requires.
func (p *ParentNode) AddUnmergedLeaf(idx LeafIndex) {
	i := sort.Search(len(p.UnmergedLeaves), func(i int) bool { return p.UnmergedLeaves[i] >= idx })
	if i < len(p.UnmergedLeaves) && p.UnmergedLeaves[i] == idx {
		return
	}
	p.UnmergedLeaves = append(p.UnmergedLeaves, 0)
	copy(p.UnmergedLeaves[i+1:], p.UnmergedLeaves[i:])
	p.UnmergedLeaves[i] = idx
}

// Clone returns a deep copy of p, used by RatchetTree.Clone when a
// scratch copy of the tree is made.
func (p *ParentNode) Clone() *ParentNode {
	if p == nil {
		return nil
	}
	c := &ParentNode{
		HPKEPublicKey: append([]byte(nil), p.HPKEPublicKey...),
		ParentHash:    append([]byte(nil), p.ParentHash...),
	}
	c.UnmergedLeaves = append([]LeafIndex(nil), p.UnmergedLeaves...)
	return c
}

// LeafNodeSlot wraps the leaf-level state held at a leaf node-array
// position: nil when the slot is blank (a removed or never-occupied
// leaf), populated when a member occupies it.
type LeafNodeSlot struct {
	Node *leafnode.LeafNode
}

// Clone returns a deep-enough copy of the slot for scratch-tree
// editing; the wrapped LeafNode itself is treated as immutable once
// validated, so it is shared rather than deep-copied.
func (s LeafNodeSlot) Clone() LeafNodeSlot {
	return s
}

// IsBlank reports whether the slot holds no member.
func (s LeafNodeSlot) IsBlank() bool { return s.Node == nil }
