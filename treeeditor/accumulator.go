/*
Package treeeditor implements the batch tree editor (component E; spec
§4.E): it applies a filtered bundle's Update, Remove, and Add
proposals to a ratchet tree in that fixed order, routing each
individual success or failure through an Accumulator the way aws-mls's
TreeBatchEditAccumulator does in filtering.rs — so a strategy that
tolerates a stale by-reference proposal can drop just that one
proposal's effect rather than aborting the whole commit.
*/
package treeeditor

import (
	"github.com/kindlyrobotics/nochat-mls/leafnode"
	"github.com/kindlyrobotics/nochat-mls/proposal"
	"github.com/kindlyrobotics/nochat-mls/proposalfilter"
	"github.com/kindlyrobotics/nochat-mls/ratchettree"
)

// RemovedLeaf pairs a removed leaf's former index with the LeafNode
// that occupied it, the way a caller needs it to tear down that
// member's ratchet secrets.
type RemovedLeaf struct {
	Index ratchettree.LeafIndex
	Leaf  leafnode.LeafNode
}

// Accumulator receives the outcome of each proposal the Editor
// applies to the tree. OnUpdate/OnRemove/OnAdd are called once per
// proposal of that kind, in application order; Finish is called once
// after every proposal has been processed, or not at all if the
// editor aborted early because a callback returned a non-nil error.
type Accumulator interface {
	OnUpdate(index int, leafIndex ratchettree.LeafIndex, applyErr error) error
	OnRemove(index int, leafIndex ratchettree.LeafIndex, leaf *leafnode.LeafNode, applyErr error) error
	OnAdd(index int, leafIndex ratchettree.LeafIndex, applyErr error) error
	Finish() error
}

// DefaultAccumulator is the Accumulator the group package's Applier
// uses: it consults a proposalfilter.Strategy to decide whether an
// individual proposal's failure should drop just that proposal
// (continue processing the rest of the batch) or abort the whole
// commit, and records the resulting bookkeeping the caller needs to
// finish applying the commit (new members' indexes, removed leaves,
// which input indexes turned out invalid).
type DefaultAccumulator struct {
	Strategy proposalfilter.Strategy
	Updates  []proposal.Info
	Removes  []proposal.Info
	Adds     []proposal.Info

	NewLeafIndexes  []ratchettree.LeafIndex
	RemovedLeaves   []RemovedLeaf
	InvalidUpdates  map[int]bool
	InvalidRemovals map[int]bool
	InvalidAdds     map[int]bool
}

// NewDefaultAccumulator constructs a DefaultAccumulator over the
// proposal infos the Editor will apply, in the same order they will
// be passed to Apply.
func NewDefaultAccumulator(strategy proposalfilter.Strategy, updates, removes, adds []proposal.Info) *DefaultAccumulator {
	return &DefaultAccumulator{
		Strategy:        strategy,
		Updates:         updates,
		Removes:         removes,
		Adds:            adds,
		InvalidUpdates:  map[int]bool{},
		InvalidRemovals: map[int]bool{},
		InvalidAdds:     map[int]bool{},
	}
}

func (a *DefaultAccumulator) applyStrategy(info proposal.Info, err error) error {
	if err == nil {
		return nil
	}
	if a.Strategy.Ignore(info) {
		return nil
	}
	return err
}

func (a *DefaultAccumulator) OnUpdate(index int, leafIndex ratchettree.LeafIndex, applyErr error) error {
	if applyErr != nil {
		a.InvalidUpdates[index] = true
	}
	return a.applyStrategy(a.Updates[index], applyErr)
}

func (a *DefaultAccumulator) OnRemove(index int, leafIndex ratchettree.LeafIndex, leaf *leafnode.LeafNode, applyErr error) error {
	if applyErr != nil {
		a.InvalidRemovals[index] = true
	} else {
		a.RemovedLeaves = append(a.RemovedLeaves, RemovedLeaf{Index: leafIndex, Leaf: *leaf})
	}
	return a.applyStrategy(a.Removes[index], applyErr)
}

func (a *DefaultAccumulator) OnAdd(index int, leafIndex ratchettree.LeafIndex, applyErr error) error {
	if applyErr != nil {
		a.InvalidAdds[index] = true
	} else {
		a.NewLeafIndexes = append(a.NewLeafIndexes, leafIndex)
	}
	return a.applyStrategy(a.Adds[index], applyErr)
}

func (a *DefaultAccumulator) Finish() error { return nil }
