package proposalfilter

import (
	"context"

	"github.com/kindlyrobotics/nochat-mls/identity"
	"github.com/kindlyrobotics/nochat-mls/mlserr"
	"github.com/kindlyrobotics/nochat-mls/proposal"
)

// EnsureExactlyOneExternalInit enforces that an external commit's
// bundle carries precisely one ExternalInit proposal.
func EnsureExactlyOneExternalInit(b *proposal.Bundle) error {
	if b.CountByType(proposal.TypeExternalInit) != 1 {
		return mlserr.ErrExternalCommitMustHaveExactlyOneExternalInit
	}
	return nil
}

// EnsureProposalsInExternalCommitAreAllowed enforces that an external
// commit's bundle contains only ExternalInit, Remove, and PreSharedKey
// proposals.
func EnsureProposalsInExternalCommitAreAllowed(b *proposal.Bundle) error {
	for _, t := range b.ProposalTypes() {
		if t != proposal.TypeExternalInit && t != proposal.TypeRemove && t != proposal.TypePreSharedKey {
			return &mlserr.InvalidProposalTypeInExternalCommit{ProposalType: t.String()}
		}
	}
	return nil
}

// EnsureNoProposalByRef enforces that every proposal in the bundle
// arrived by value: only group members may reference a cached
// proposal by hash, and an external-commit joiner is not yet a
// member.
func EnsureNoProposalByRef(b *proposal.Bundle) error {
	for _, info := range b.All() {
		if info.Source == proposal.SourceByRef {
			return mlserr.ErrOnlyMembersCanCommitProposalsByRef
		}
	}
	return nil
}

// LeafIdentityResolver answers the signing identity currently
// occupying a member leaf, used to authorize an external commit's
// single allowed Remove as a same-identity rejoin.
type LeafIdentityResolver func(leafIndex uint32) (identity.SigningIdentity, error)

// EnsureAtMostOneRemovalForSelf enforces that an external commit
// carries at most one Remove proposal, and when present, that it
// targets a leaf whose identity the joining identity is a valid
// successor of (the "replace my old device" rejoin flow).
func EnsureAtMostOneRemovalForSelf(ctx context.Context, idp identity.Provider, resolve LeafIdentityResolver, joiner identity.SigningIdentity, b *proposal.Bundle) error {
	removals := b.ByType(proposal.TypeRemove)
	switch len(removals) {
	case 0:
		return nil
	case 1:
		existing, err := resolve(removals[0].Proposal.Remove.RemovedIndex)
		if err != nil {
			return &mlserr.RatchetTreeError{Inner: err}
		}
		ok, err := idp.ValidSuccessor(ctx, existing, joiner)
		if err != nil {
			return &mlserr.IdentityProviderError{Inner: err}
		}
		if !ok {
			return mlserr.ErrExternalCommitRemovesOtherIdentity
		}
		return nil
	default:
		return mlserr.ErrExternalCommitWithMoreThanOneRemove
	}
}
