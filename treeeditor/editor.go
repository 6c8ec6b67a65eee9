package treeeditor

import (
	"context"
	"fmt"

	"github.com/kindlyrobotics/nochat-mls/identity"
	"github.com/kindlyrobotics/nochat-mls/leafnode"
	"github.com/kindlyrobotics/nochat-mls/mlserr"
	"github.com/kindlyrobotics/nochat-mls/proposal"
	"github.com/kindlyrobotics/nochat-mls/ratchettree"
)

// Apply applies a filtered proposal bundle's Update, Remove, and Add
// proposals to tree, in that fixed order: Updates must land before
// Removes blank any of the same leaves' ancestors, and Adds must see
// the tree's final blank-slot layout after removes free slots for
// reuse. Apply routes each individual result through acc, so an
// Accumulator like DefaultAccumulator can decide per-proposal whether
// a failure drops that one proposal or aborts the batch. It returns
// the first error acc's callbacks produce (an abort), or the result of
// acc.Finish() once every proposal has been processed.
func Apply(ctx context.Context, tree *ratchettree.RatchetTree, idp identity.Provider, updates, removes, adds []proposal.Info, acc Accumulator) error {
	for i, info := range updates {
		leaf := info.Proposal.Update.LeafNode
		leafIndex := ratchettree.LeafIndex(info.Sender.Index)
		err := tree.UpdateLeaf(leafIndex, leaf)
		if err != nil {
			err = &mlserr.RatchetTreeError{Inner: err}
		}
		if cbErr := acc.OnUpdate(i, leafIndex, err); cbErr != nil {
			return cbErr
		}
	}

	for i, info := range removes {
		leafIndex := ratchettree.LeafIndex(info.Proposal.Remove.RemovedIndex)
		leaf, getErr := tree.GetLeafNode(leafIndex)
		var applyErr error
		if getErr != nil {
			applyErr = &mlserr.RatchetTreeError{Inner: getErr}
		} else if removeErr := tree.RemoveLeaf(leafIndex); removeErr != nil {
			applyErr = &mlserr.RatchetTreeError{Inner: removeErr}
		}
		if cbErr := acc.OnRemove(i, leafIndex, leaf, applyErr); cbErr != nil {
			return cbErr
		}
	}

	for i, info := range adds {
		leaf := info.Proposal.Add.KeyPackage.LeafNode
		assigned, err := tree.AddLeaves(ctx, idp, []leafnode.LeafNode{leaf})
		var leafIndex ratchettree.LeafIndex
		var applyErr error
		if err != nil {
			applyErr = &mlserr.RatchetTreeError{Inner: err}
		} else {
			leafIndex = assigned[0]
		}
		if cbErr := acc.OnAdd(i, leafIndex, applyErr); cbErr != nil {
			return cbErr
		}
	}

	if err := acc.Finish(); err != nil {
		return fmt.Errorf("finishing batch tree edit: %w", err)
	}
	return nil
}
