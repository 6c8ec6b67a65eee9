package ratchettree

import (
	"context"
	"fmt"

	"github.com/kindlyrobotics/nochat-mls/ciphersuite"
	"github.com/kindlyrobotics/nochat-mls/identity"
	"github.com/kindlyrobotics/nochat-mls/leafnode"
)

// RatchetTree holds one group's member key material: a flat array of
// leaf slots and a flat array of parent slots, sized and addressed via
// the pure index functions in index.go. Blank slots (nil) represent
// either a never-occupied position or a removed member/collapsed
// parent.
type RatchetTree struct {
	leaves  []LeafNodeSlot
	parents []*ParentNode
}

// NewEmpty returns a tree with no leaves, ready for Derive or
// AddLeaves to populate.
func NewEmpty() *RatchetTree {
	return &RatchetTree{}
}

// LeafCount returns the number of leaf slots the tree currently has
// (occupied or blank).
func (t *RatchetTree) LeafCount() LeafCount { return LeafCount(len(t.leaves)) }

// Clone returns a deep copy, used by group.Applier to stage edits
// against a scratch tree before the caller decides to keep them.
func (t *RatchetTree) Clone() *RatchetTree {
	c := &RatchetTree{
		leaves:  make([]LeafNodeSlot, len(t.leaves)),
		parents: make([]*ParentNode, len(t.parents)),
	}
	copy(c.leaves, t.leaves)
	for i, p := range t.parents {
		c.parents[i] = p.Clone()
	}
	return c
}

func (t *RatchetTree) parentAt(n NodeIndex) **ParentNode {
	idx := (uint32(n) - 1) / 2
	return &t.parents[idx]
}

// Derive builds a fresh one-member tree: the founder's own leaf
// occupies LeafIndex 0.
func Derive(leaf leafnode.LeafNode) *RatchetTree {
	return &RatchetTree{
		leaves: []LeafNodeSlot{{Node: &leaf}},
	}
}

// GetLeafNode returns the leaf occupying idx, or ErrBlankLeaf /
// ErrLeafOutOfRange.
func (t *RatchetTree) GetLeafNode(idx LeafIndex) (*leafnode.LeafNode, error) {
	if uint32(idx) >= uint32(len(t.leaves)) {
		return nil, &ErrLeafOutOfRange{Index: idx, Count: t.LeafCount()}
	}
	slot := t.leaves[idx]
	if slot.IsBlank() {
		return nil, &ErrBlankLeaf{Index: idx}
	}
	return slot.Node, nil
}

// NonEmptyLeaves returns the indices of every occupied leaf, in
// ascending order.
func (t *RatchetTree) NonEmptyLeaves() []LeafIndex {
	var out []LeafIndex
	for i, slot := range t.leaves {
		if !slot.IsBlank() {
			out = append(out, LeafIndex(i))
		}
	}
	return out
}

// CanSupportProposal reports whether every current member's
// capabilities advertise support for MLS proposal type t, the check
// spec §4.A requires before a proposal of a non-default type may be
// applied against the tree.
func (t *RatchetTree) CanSupportProposal(proposalType uint16) bool {
	for _, slot := range t.leaves {
		if slot.IsBlank() {
			continue
		}
		if !slot.Node.Capabilities.SupportsProposalType(proposalType) {
			return false
		}
	}
	return true
}

// blankLeaf clears a leaf slot.
func (t *RatchetTree) blankLeaf(idx LeafIndex) {
	t.leaves[idx] = LeafNodeSlot{}
}

// setLeaf installs leaf at idx, growing the tree if idx is beyond the
// current leaf count (always extending to a power of two, as
// left-balanced trees require).
func (t *RatchetTree) setLeaf(idx LeafIndex, leaf leafnode.LeafNode) {
	t.growTo(idx)
	t.leaves[idx] = LeafNodeSlot{Node: &leaf}
}

// growTo ensures the tree has at least idx+1 leaf slots, extending the
// leaf and parent arrays and rounding the leaf count up to the next
// power of two above idx, per the left-balanced tree's shape
// invariant.
func (t *RatchetTree) growTo(idx LeafIndex) {
	need := uint32(idx) + 1
	cur := uint32(len(t.leaves))
	if need <= cur {
		return
	}
	newCount := cur
	if newCount == 0 {
		newCount = 1
	}
	for newCount < need {
		newCount *= 2
	}
	grownLeaves := make([]LeafNodeSlot, newCount)
	copy(grownLeaves, t.leaves)
	grownParents := make([]*ParentNode, newCount-1)
	copy(grownParents, t.parents)
	t.leaves = grownLeaves
	t.parents = grownParents
}

// firstBlankLeaf returns the lowest blank leaf index, if any.
func (t *RatchetTree) firstBlankLeaf() (LeafIndex, bool) {
	for i, slot := range t.leaves {
		if slot.IsBlank() {
			return LeafIndex(i), true
		}
	}
	return 0, false
}

// AddLeaves installs each of leaves into the lowest available blank
// slot, extending the tree when none remain, and returns the assigned
// LeafIndex for each in the same order. Every non-blank ancestor of a
// newly occupied leaf records it as an unmerged leaf, since that
// ancestor's path secret predates the new member (spec §4.A, the
// unmerged-leaves bookkeeping RFC 9420 §7.7 requires).
//
// idp is consulted to reject an add whose identity already occupies a
// non-blank leaf; this mirrors aws-mls's duplicate-identity tree
// check, which runs at Add-application time rather than proposal-
// validation time. An add whose HPKE public key already occupies a
// non-blank leaf is rejected the same way.
func (t *RatchetTree) AddLeaves(ctx context.Context, idp identity.Provider, leaves []leafnode.LeafNode) ([]LeafIndex, error) {
	existingIdentities := make(map[string]LeafIndex, len(t.leaves))
	existingKeys := make(map[string]LeafIndex, len(t.leaves))
	for i, slot := range t.leaves {
		if slot.IsBlank() {
			continue
		}
		id, err := idp.Identity(ctx, slot.Node.SigningIdentity)
		if err != nil {
			return nil, fmt.Errorf("resolving existing leaf %d identity: %w", i, err)
		}
		existingIdentities[string(id)] = LeafIndex(i)
		existingKeys[string(slot.Node.HPKEPublicKey)] = LeafIndex(i)
	}

	assigned := make([]LeafIndex, 0, len(leaves))
	for _, leaf := range leaves {
		id, err := idp.Identity(ctx, leaf.SigningIdentity)
		if err != nil {
			return nil, fmt.Errorf("resolving new leaf identity: %w", err)
		}
		if dup, ok := existingIdentities[string(id)]; ok {
			return nil, &ErrDuplicateIdentity{Index: dup}
		}
		if dup, ok := existingKeys[string(leaf.HPKEPublicKey)]; ok {
			return nil, &ErrDuplicateHPKEKey{Index: dup}
		}

		var idx LeafIndex
		if blank, ok := t.firstBlankLeaf(); ok {
			idx = blank
			t.leaves[idx] = LeafNodeSlot{Node: &leaf}
		} else {
			idx = LeafIndex(len(t.leaves))
			t.setLeaf(idx, leaf)
		}
		existingIdentities[string(id)] = idx
		existingKeys[string(leaf.HPKEPublicKey)] = idx
		t.markUnmergedAncestors(idx)
		assigned = append(assigned, idx)
	}
	return assigned, nil
}

// markUnmergedAncestors records idx as an unmerged leaf on every
// non-blank parent along its direct path.
func (t *RatchetTree) markUnmergedAncestors(idx LeafIndex) {
	n := idx.ToNodeIndex()
	for _, p := range DirectPath(n, t.LeafCount()) {
		parent := *t.parentAt(p)
		if parent != nil {
			parent.AddUnmergedLeaf(idx)
		}
	}
}

// UpdateLeaf replaces the leaf at idx with a freshly generated one
// (from an Update proposal or the committer's own path) and blanks
// every node on its direct path, since the replaced leaf's secret no
// longer derives any of them.
func (t *RatchetTree) UpdateLeaf(idx LeafIndex, leaf leafnode.LeafNode) error {
	if uint32(idx) >= uint32(len(t.leaves)) {
		return &ErrLeafOutOfRange{Index: idx, Count: t.LeafCount()}
	}
	t.leaves[idx] = LeafNodeSlot{Node: &leaf}
	t.blankDirectPath(idx)
	return nil
}

// RemoveLeaf blanks the leaf at idx and every node on its direct path.
func (t *RatchetTree) RemoveLeaf(idx LeafIndex) error {
	if uint32(idx) >= uint32(len(t.leaves)) {
		return &ErrLeafOutOfRange{Index: idx, Count: t.LeafCount()}
	}
	t.blankLeaf(idx)
	t.blankDirectPath(idx)
	return nil
}

func (t *RatchetTree) blankDirectPath(idx LeafIndex) {
	for _, p := range DirectPath(idx.ToNodeIndex(), t.LeafCount()) {
		*t.parentAt(p) = nil
	}
}

// MergePath installs a fresh parent key (and clears its unmerged
// leaves) at every node on sender's direct path, the update a
// committer's own UpdatePath applies once its commit lands. pathNodes
// must be ordered leaf-to-root exactly as DirectPath(sender) returns.
func (t *RatchetTree) MergePath(sender LeafIndex, pathNodes []ParentNode) error {
	direct := DirectPath(sender.ToNodeIndex(), t.LeafCount())
	if len(pathNodes) != len(direct) {
		return fmt.Errorf("path length %d does not match direct path length %d", len(pathNodes), len(direct))
	}
	for i, n := range direct {
		node := pathNodes[i]
		*t.parentAt(n) = &node
	}
	return nil
}

// TreeHash computes the root tree hash binding every member's public
// key and the tree's shape into a single digest, following the same
// leaf/internal domain-separated hashing idiom nochat.io's sparse
// Merkle transparency log uses (internal/transparency/merkle.go),
// adapted to the left-balanced tree's recursive structure (RFC 9420
// §7.8): a leaf's hash covers its occupant (or is a fixed empty-leaf
// hash when blank), and a parent's hash covers its own key material
// plus both children's hashes.
func (t *RatchetTree) TreeHash(suite ciphersuite.Provider) ([]byte, error) {
	if len(t.leaves) == 0 {
		return suite.Hash([]byte{0x00}), nil
	}
	return t.subtreeHash(suite, root(t.LeafCount())), nil
}

func (t *RatchetTree) subtreeHash(suite ciphersuite.Provider, n NodeIndex) []byte {
	if n.IsLeaf() {
		return t.leafHash(suite, n.ToLeafIndex())
	}
	left := t.subtreeHash(suite, Left(n))
	right := t.subtreeHash(suite, Right(n))
	parent := *t.parentAt(n)
	return parentHash(suite, parent, left, right)
}

func (t *RatchetTree) leafHash(suite ciphersuite.Provider, idx LeafIndex) []byte {
	slot := t.leaves[idx]
	if slot.IsBlank() {
		return suite.Hash(append([]byte{0x00}, encodeUint32(uint32(idx))...))
	}
	leaf := slot.Node
	data := append([]byte{0x01}, encodeUint32(uint32(idx))...)
	data = append(data, leaf.SigningIdentity.SignaturePublicKey...)
	data = append(data, leaf.HPKEPublicKey...)
	return suite.Hash(data)
}

func parentHash(suite ciphersuite.Provider, parent *ParentNode, left, right []byte) []byte {
	var data []byte
	if parent == nil {
		data = []byte{0x02}
	} else {
		data = append([]byte{0x03}, parent.HPKEPublicKey...)
		for _, u := range parent.UnmergedLeaves {
			data = append(data, encodeUint32(uint32(u))...)
		}
	}
	data = append(data, left...)
	data = append(data, right...)
	return suite.Hash(data)
}

func encodeUint32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
