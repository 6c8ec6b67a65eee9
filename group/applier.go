package group

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kindlyrobotics/nochat-mls/ciphersuite"
	"github.com/kindlyrobotics/nochat-mls/identity"
	"github.com/kindlyrobotics/nochat-mls/leafnode"
	"github.com/kindlyrobotics/nochat-mls/mlserr"
	"github.com/kindlyrobotics/nochat-mls/proposal"
	"github.com/kindlyrobotics/nochat-mls/proposalfilter"
	"github.com/kindlyrobotics/nochat-mls/ratchettree"
	"github.com/kindlyrobotics/nochat-mls/treeeditor"
)

// Applier runs a commit's proposal bundle through every rule in
// proposalfilter and hands the survivors to treeeditor, producing the
// ProposalState the caller needs to finish applying the commit. It is
// the orchestration layer aws-mls's ProposalApplier plays in
// filtering.rs: this package owns no cryptography of its own, only the
// control flow deciding which proposals are even allowed to reach the
// tree.
type Applier struct {
	OriginalTree                 *ratchettree.RatchetTree
	ProtocolVersion              uint16
	Suite                        ciphersuite.Provider
	GroupID                      []byte
	OriginalGroupExtensions      leafnode.ExtensionList
	OriginalRequiredCapabilities *leafnode.RequiredCapabilities

	// ExternalLeaf is the joining member's own leaf node, set only when
	// Applier is processing an external commit.
	ExternalLeaf *leafnode.LeafNode

	// ExternalSenders lists the identities currently authorized to send
	// proposals from outside the group, parsed from the group's own
	// external_senders extension.
	ExternalSenders []identity.SigningIdentity

	IdentityProvider       identity.Provider
	ExternalPskIdValidator identity.ExternalPskIdValidator

	// Logger receives one structured line per Update, Remove or Add
	// proposal the tree editor drops and one per completed batch.
	// Proposals dropped by a proposalfilter rule are not logged. A nil
	// Logger disables logging entirely.
	Logger *logrus.Logger
}

func (a *Applier) logFields() logrus.Fields {
	return logrus.Fields{"group_id": hex.EncodeToString(a.GroupID)}
}

func (a *Applier) logDropped(proposalType proposal.Type, reason string) {
	if a.Logger == nil {
		return
	}
	fields := a.logFields()
	fields["proposal_type"] = proposalType.String()
	fields["reason"] = reason
	a.Logger.WithFields(fields).Info("proposal dropped from commit")
}

func (a *Applier) logBatchOutcome(state *ProposalState) {
	if a.Logger == nil {
		return
	}
	fields := a.logFields()
	fields["added"] = len(state.AddedIndexes)
	fields["removed"] = len(state.RemovedLeaves)
	a.Logger.WithFields(fields).Info("proposal batch applied")
}

// ApplyProposals validates and applies proposals against the group's
// current tree, dispatching on who sent the commit, and returns the
// resulting ProposalState.
func (a *Applier) ApplyProposals(ctx context.Context, strategy proposalfilter.Strategy, commitSender proposal.Sender, proposals *proposal.Bundle, commitTime *int64) (*ProposalState, error) {
	var state *ProposalState
	var err error

	switch commitSender.Kind {
	case proposal.SenderMember:
		state, err = a.applyProposalsFromMember(ctx, strategy, commitSender.Index, proposals, commitTime)
	case proposal.SenderNewMemberCommit:
		state, err = a.applyProposalsFromNewMember(ctx, proposals, commitTime)
	default:
		return nil, mlserr.ErrExternalSenderCannotCommit
	}
	if err != nil {
		return nil, err
	}

	if err := proposalfilter.FilterOutUnsupportedCustomProposals(strategy, state.Tree.CanSupportProposal, state.Proposals); err != nil {
		return nil, err
	}
	a.logBatchOutcome(state)
	return state, nil
}

// applyProposalsFromMember runs the full member-commit rule set: every
// proposer must be authorized, the committer may not target its own
// leaf with an Update or Remove, at most one proposal may touch a
// given leaf, ReInit and group-context-extensions proposals obey their
// exclusivity rules, and ExternalInit is rejected outright since it
// only belongs in an external commit.
func (a *Applier) applyProposalsFromMember(ctx context.Context, strategy proposalfilter.Strategy, commitSender uint32, proposals *proposal.Bundle, commitTime *int64) (*ProposalState, error) {
	bundle := proposals.Clone()

	if err := proposalfilter.FilterOutUpdateForCommitter(strategy, commitSender, bundle); err != nil {
		return nil, err
	}

	leafExists := func(idx uint32) bool {
		_, err := a.OriginalTree.GetLeafNode(ratchettree.LeafIndex(idx))
		return err == nil
	}
	for _, t := range proposalfilter.AllProposalTypes {
		if err := proposalfilter.ValidateProposers(strategy, t, leafExists, len(a.ExternalSenders), bundle); err != nil {
			return nil, err
		}
	}

	if err := proposalfilter.FilterOutRemovalOfCommitter(strategy, commitSender, bundle); err != nil {
		return nil, err
	}
	if err := proposalfilter.FilterOutExtraRemovalOrUpdateForSameLeaf(strategy, bundle); err != nil {
		return nil, err
	}
	if err := proposalfilter.FilterOutInvalidPsks(ctx, strategy, a.Suite, a.ExternalPskIdValidator, bundle); err != nil {
		return nil, err
	}
	if err := proposalfilter.FilterOutInvalidGroupExtensions(ctx, strategy, a.IdentityProvider, commitTime, bundle); err != nil {
		return nil, err
	}
	if err := proposalfilter.FilterOutExtraGroupContextExtensions(strategy, bundle); err != nil {
		return nil, err
	}
	if err := proposalfilter.FilterOutInvalidReInit(strategy, a.ProtocolVersion, bundle); err != nil {
		return nil, err
	}
	if err := proposalfilter.FilterOutReinitIfOtherProposals(strategy, bundle); err != nil {
		return nil, err
	}
	if err := proposalfilter.FilterOutExternalInit(strategy, commitSender, bundle); err != nil {
		return nil, err
	}

	state := newProposalState(a.OriginalTree.Clone(), bundle)
	return a.applyProposalChanges(ctx, strategy, state, commitTime)
}

// applyProposalsFromNewMember runs the external-commit rule set: the
// bundle must carry exactly one ExternalInit, at most one Remove (a
// same-identity rejoin), nothing else, entirely by value, validated
// under FailInvalidProposal regardless of the caller's usual strategy
// since an external commit has no pending-proposals cache to excuse a
// stale reference.
func (a *Applier) applyProposalsFromNewMember(ctx context.Context, proposals *proposal.Bundle, commitTime *int64) (*ProposalState, error) {
	if a.ExternalLeaf == nil {
		return nil, mlserr.ErrExternalCommitMustHaveNewLeaf
	}

	bundle := proposals.Clone()
	fail := proposalfilter.FailInvalidProposal{}

	if err := proposalfilter.EnsureExactlyOneExternalInit(bundle); err != nil {
		return nil, err
	}
	if err := proposalfilter.EnsureProposalsInExternalCommitAreAllowed(bundle); err != nil {
		return nil, err
	}
	if err := proposalfilter.EnsureNoProposalByRef(bundle); err != nil {
		return nil, err
	}

	resolve := func(idx uint32) (identity.SigningIdentity, error) {
		leaf, err := a.OriginalTree.GetLeafNode(ratchettree.LeafIndex(idx))
		if err != nil {
			return identity.SigningIdentity{}, err
		}
		return leaf.SigningIdentity, nil
	}
	if err := proposalfilter.EnsureAtMostOneRemovalForSelf(ctx, a.IdentityProvider, resolve, a.ExternalLeaf.SigningIdentity, bundle); err != nil {
		return nil, err
	}

	leafExists := func(idx uint32) bool {
		_, err := a.OriginalTree.GetLeafNode(ratchettree.LeafIndex(idx))
		return err == nil
	}
	for _, t := range []proposal.Type{proposal.TypeExternalInit, proposal.TypeRemove, proposal.TypePreSharedKey} {
		if err := proposalfilter.ValidateProposers(fail, t, leafExists, len(a.ExternalSenders), bundle); err != nil {
			return nil, err
		}
	}
	if err := proposalfilter.FilterOutInvalidPsks(ctx, fail, a.Suite, a.ExternalPskIdValidator, bundle); err != nil {
		return nil, err
	}

	state := newProposalState(a.OriginalTree.Clone(), bundle)
	state, err := a.applyProposalChanges(ctx, fail, state, commitTime)
	if err != nil {
		return nil, err
	}

	assigned, err := state.Tree.AddLeaves(ctx, a.IdentityProvider, []leafnode.LeafNode{*a.ExternalLeaf})
	if err != nil {
		return nil, &mlserr.RatchetTreeError{Inner: err}
	}
	idx := assigned[0]
	state.ExternalLeafIndex = &idx
	state.AddedIndexes = append(state.AddedIndexes, idx)
	return state, nil
}

// applyProposalChanges dispatches to the group-context-extensions
// try-new-capabilities flow when the bundle carries one, or applies
// tree changes directly under the group's current extensions and
// required-capabilities floor otherwise.
func (a *Applier) applyProposalChanges(ctx context.Context, strategy proposalfilter.Strategy, state *ProposalState, commitTime *int64) (*ProposalState, error) {
	if gce, ok := state.Proposals.GroupContextExtensionsProposal(); ok {
		return a.applyProposalsWithNewCapabilities(ctx, strategy, state, gce, commitTime)
	}
	if err := a.applyTreeChanges(ctx, strategy, state, a.OriginalGroupExtensions, a.OriginalRequiredCapabilities, commitTime); err != nil {
		return nil, err
	}
	return state, nil
}

// applyProposalsWithNewCapabilities implements the try-new-capabilities
// -then-fall-back flow (spec's group-context-extensions negotiation):
// it speculatively applies every Update/Remove/Add proposal with no
// extension or required-capabilities floor in force, then checks the
// resulting tree actually satisfies the newly proposed
// required-capabilities and every proposed non-default extension.
// When it does not, a strategy that tolerates dropping the
// group-context-extensions proposal falls back to reapplying the tree
// changes under the group's original floor instead of failing the
// whole commit.
func (a *Applier) applyProposalsWithNewCapabilities(ctx context.Context, strategy proposalfilter.Strategy, state *ProposalState, gce proposal.Info, commitTime *int64) (*ProposalState, error) {
	trial := state.Clone()
	ext := gce.Proposal.GroupContextExtensions

	if err := a.applyTreeChanges(ctx, strategy, trial, nil, nil, commitTime); err != nil {
		return nil, err
	}

	validateErr := validateNewCapabilities(trial.Tree, ext)
	if validateErr == nil {
		return trial, nil
	}

	if _, propagate := proposalfilter.Apply(strategy, gce, validateErr); propagate != nil {
		return nil, propagate
	}

	state.Proposals.ClearGroupContextExtensions()
	trial.Proposals.ClearGroupContextExtensions()
	if len(a.OriginalGroupExtensions) == 0 && a.OriginalRequiredCapabilities == nil {
		return trial, nil
	}
	if err := a.applyTreeChanges(ctx, strategy, state, a.OriginalGroupExtensions, a.OriginalRequiredCapabilities, commitTime); err != nil {
		return nil, err
	}
	return state, nil
}

// validateNewCapabilities checks every occupied leaf in tree against a
// proposed GroupContextExtensions' required_capabilities (if any) and
// every non-default extension type the proposal's extension list
// names.
func validateNewCapabilities(tree *ratchettree.RatchetTree, ext proposal.GroupContextExtensions) error {
	for _, idx := range tree.NonEmptyLeaves() {
		leaf, err := tree.GetLeafNode(idx)
		if err != nil {
			return &mlserr.RatchetTreeError{Inner: err}
		}
		if rc := ext.RequiredCapabilities; rc != nil {
			for _, et := range rc.ExtensionTypes {
				if !leaf.Capabilities.SupportsExtension(et) {
					return &mlserr.UnsupportedGroupExtension{ExtensionType: uint16(et)}
				}
			}
			for _, pt := range rc.ProposalTypes {
				if !leaf.Capabilities.SupportsProposalType(pt) {
					return &mlserr.UnsupportedGroupExtension{ExtensionType: pt}
				}
			}
		}
		for _, e := range ext.Extensions {
			if e.Type.IsDefault() {
				continue
			}
			if !leaf.Capabilities.SupportsExtension(e.Type) {
				return &mlserr.UnsupportedGroupExtension{ExtensionType: uint16(e.Type)}
			}
		}
	}
	return nil
}

// applyTreeChanges validates every new or updated leaf node against
// groupExtensions/requiredCapabilities, then hands the bundle's
// Update/Remove/Add proposals to treeeditor in a single batch,
// recording the accumulator's bookkeeping into state and pruning
// whichever proposals the accumulator flagged invalid.
func (a *Applier) applyTreeChanges(ctx context.Context, strategy proposalfilter.Strategy, state *ProposalState, groupExtensions leafnode.ExtensionList, requiredCapabilities *leafnode.RequiredCapabilities, commitTime *int64) error {
	validator := leafnode.NewValidator(a.Suite, a.IdentityProvider, requiredCapabilities, groupExtensions)

	if err := a.validateNewUpdateNodes(ctx, strategy, validator, state.Proposals); err != nil {
		return err
	}
	if err := a.validateNewKeyPackages(ctx, strategy, validator, state.Proposals, commitTime); err != nil {
		return err
	}

	updates := state.Proposals.ByType(proposal.TypeUpdate)
	removes := state.Proposals.ByType(proposal.TypeRemove)
	adds := state.Proposals.ByType(proposal.TypeAdd)

	acc := treeeditor.NewDefaultAccumulator(strategy, updates, removes, adds)
	if err := treeeditor.Apply(ctx, state.Tree, a.IdentityProvider, updates, removes, adds, acc); err != nil {
		return fmt.Errorf("applying batch tree edit: %w", err)
	}

	state.AddedIndexes = append(state.AddedIndexes, acc.NewLeafIndexes...)
	state.RemovedLeaves = append(state.RemovedLeaves, acc.RemovedLeaves...)

	if len(acc.InvalidUpdates) > 0 {
		i := -1
		state.Proposals.RetainByType(proposal.TypeUpdate, func(proposal.Info) bool {
			i++
			if acc.InvalidUpdates[i] {
				a.logDropped(proposal.TypeUpdate, "rejected by tree accumulator")
				return false
			}
			return true
		})
	}
	if len(acc.InvalidRemovals) > 0 {
		i := -1
		state.Proposals.RetainByType(proposal.TypeRemove, func(proposal.Info) bool {
			i++
			if acc.InvalidRemovals[i] {
				a.logDropped(proposal.TypeRemove, "rejected by tree accumulator")
				return false
			}
			return true
		})
	}
	if len(acc.InvalidAdds) > 0 {
		i := -1
		state.Proposals.RetainByType(proposal.TypeAdd, func(proposal.Info) bool {
			i++
			if acc.InvalidAdds[i] {
				a.logDropped(proposal.TypeAdd, "rejected by tree accumulator")
				return false
			}
			return true
		})
	}
	return nil
}

// validateNewUpdateNodes checks every Update proposal's LeafNode
// against validator under UpdateContext, dropping (or failing on)
// whichever one fails.
func (a *Applier) validateNewUpdateNodes(ctx context.Context, strategy proposalfilter.Strategy, validator *leafnode.Validator, bundle *proposal.Bundle) error {
	return proposalfilter.FilterByType(strategy, bundle, proposal.TypeUpdate, func(info proposal.Info) error {
		vctx := leafnode.UpdateContext{GroupID: a.GroupID, SenderIndex: info.Sender.Index}
		return validator.CheckLeaf(ctx, info.Proposal.Update.LeafNode, vctx)
	})
}

// validateNewKeyPackages checks every Add proposal's KeyPackage
// against validator, dropping (or failing on) whichever one fails.
func (a *Applier) validateNewKeyPackages(ctx context.Context, strategy proposalfilter.Strategy, validator *leafnode.Validator, bundle *proposal.Bundle, commitTime *int64) error {
	return proposalfilter.FilterByType(strategy, bundle, proposal.TypeAdd, func(info proposal.Info) error {
		return validator.CheckKeyPackage(ctx, info.Proposal.Add.KeyPackage, commitTime)
	})
}
