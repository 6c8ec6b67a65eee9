package group

import (
	"github.com/kindlyrobotics/nochat-mls/proposal"
	"github.com/kindlyrobotics/nochat-mls/ratchettree"
	"github.com/kindlyrobotics/nochat-mls/treeeditor"
)

// ProposalState is the accumulated result of applying a commit's
// proposal bundle: the edited tree, the surviving proposals (after
// every filter pass has dropped what it rejected), and bookkeeping the
// caller needs to finish the commit — which leaf indexes are new
// members, which leaves and their prior occupants were removed, and
// the external-commit joiner's own assigned leaf index, if any.
type ProposalState struct {
	Tree              *ratchettree.RatchetTree
	Proposals         *proposal.Bundle
	AddedIndexes      []ratchettree.LeafIndex
	RemovedLeaves     []treeeditor.RemovedLeaf
	ExternalLeafIndex *ratchettree.LeafIndex
}

func newProposalState(tree *ratchettree.RatchetTree, proposals *proposal.Bundle) *ProposalState {
	return &ProposalState{Tree: tree, Proposals: proposals}
}

// Clone deep-copies the tree and shallow-copies the proposal bundle,
// used when the group-context-extensions flow needs to try applying
// tree changes under two different capability sets without the first
// attempt's edits leaking into the fallback attempt.
func (s *ProposalState) Clone() *ProposalState {
	return &ProposalState{
		Tree:              s.Tree.Clone(),
		Proposals:         s.Proposals.Clone(),
		AddedIndexes:      append([]ratchettree.LeafIndex(nil), s.AddedIndexes...),
		RemovedLeaves:     append([]treeeditor.RemovedLeaf(nil), s.RemovedLeaves...),
		ExternalLeafIndex: s.ExternalLeafIndex,
	}
}
