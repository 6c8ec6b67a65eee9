package proposalfilter

import (
	"context"
	"strconv"

	"github.com/kindlyrobotics/nochat-mls/ciphersuite"
	"github.com/kindlyrobotics/nochat-mls/identity"
	"github.com/kindlyrobotics/nochat-mls/mlserr"
	"github.com/kindlyrobotics/nochat-mls/proposal"
)

// FilterByType runs check against every proposal of type t, in order,
// removing any for which check returns an error that strategy agrees
// to ignore, and stopping at the first error strategy does not ignore.
func FilterByType(strategy Strategy, b *proposal.Bundle, t proposal.Type, check func(proposal.Info) error) error {
	var firstErr error
	b.RetainByType(t, func(info proposal.Info) bool {
		if firstErr != nil {
			return true
		}
		keep, err := Apply(strategy, info, check(info))
		if err != nil {
			firstErr = err
			return true
		}
		return keep
	})
	return firstErr
}

// FilterOutUpdateForCommitter drops (or fails on) an Update proposal
// sent by the committer itself: the committer refreshes its own leaf
// via its commit path, not a separate Update proposal.
func FilterOutUpdateForCommitter(strategy Strategy, commitSender uint32, b *proposal.Bundle) error {
	return FilterByType(strategy, b, proposal.TypeUpdate, func(info proposal.Info) error {
		if info.Sender.Kind == proposal.SenderMember && info.Sender.Index == commitSender {
			return mlserr.ErrInvalidCommitSelfUpdate
		}
		return nil
	})
}

// FilterOutRemovalOfCommitter drops (or fails on) a Remove proposal
// targeting the committer's own leaf.
func FilterOutRemovalOfCommitter(strategy Strategy, commitSender uint32, b *proposal.Bundle) error {
	return FilterByType(strategy, b, proposal.TypeRemove, func(info proposal.Info) error {
		if info.Proposal.Remove.RemovedIndex == commitSender {
			return mlserr.ErrCommitterSelfRemoval
		}
		return nil
	})
}

// FilterOutExtraRemovalOrUpdateForSameLeaf enforces that at most one
// proposal (a Remove or the single surviving Update) targets a given
// leaf: earlier Updates for a leaf that is updated more than once are
// superseded by its last Update, and a leaf targeted by both a Remove
// and an Update is in conflict either way.
func FilterOutExtraRemovalOrUpdateForSameLeaf(strategy Strategy, b *proposal.Bundle) error {
	touched := map[uint32]bool{}

	if err := FilterByType(strategy, b, proposal.TypeRemove, func(info proposal.Info) error {
		idx := info.Proposal.Remove.RemovedIndex
		if touched[idx] {
			return &mlserr.MoreThanOneProposalForLeaf{LeafIndex: idx}
		}
		touched[idx] = true
		return nil
	}); err != nil {
		return err
	}

	lastUpdateIndex := map[uint32]int{}
	for i, info := range b.ByType(proposal.TypeUpdate) {
		if info.Sender.Kind == proposal.SenderMember {
			lastUpdateIndex[info.Sender.Index] = i
		}
	}

	i := -1
	return FilterByType(strategy, b, proposal.TypeUpdate, func(info proposal.Info) error {
		i++
		if info.Sender.Kind != proposal.SenderMember {
			return nil
		}
		leafIdx := info.Sender.Index
		isLast := lastUpdateIndex[leafIdx] == i
		if !isLast || touched[leafIdx] {
			return &mlserr.MoreThanOneProposalForLeaf{LeafIndex: leafIdx}
		}
		touched[leafIdx] = true
		return nil
	})
}

// FilterOutInvalidGroupExtensions validates a GroupContextExtensions
// proposal's embedded external_senders entries (if any) against the
// identity provider, the same check RFC 9420 requires before a group
// adopts a new external_senders list.
func FilterOutInvalidGroupExtensions(ctx context.Context, strategy Strategy, idp identity.Provider, commitTime *int64, b *proposal.Bundle) error {
	return FilterByType(strategy, b, proposal.TypeGroupContextExtensions, func(info proposal.Info) error {
		gce := info.Proposal.GroupContextExtensions
		for _, si := range gce.ExternalSenders {
			if err := idp.Validate(ctx, si, commitTime); err != nil {
				return &mlserr.IdentityProviderError{Inner: err}
			}
		}
		return nil
	})
}

// FilterOutExtraGroupContextExtensions keeps at most one
// GroupContextExtensions proposal in the bundle.
func FilterOutExtraGroupContextExtensions(strategy Strategy, b *proposal.Bundle) error {
	found := false
	return FilterByType(strategy, b, proposal.TypeGroupContextExtensions, func(proposal.Info) error {
		if found {
			return mlserr.ErrMoreThanOneGroupContextExtensions
		}
		found = true
		return nil
	})
}

// FilterOutInvalidReInit drops (or fails on) a ReInit proposal whose
// protocol version regresses the group's current one.
func FilterOutInvalidReInit(strategy Strategy, currentProtocolVersion uint16, b *proposal.Bundle) error {
	return FilterByType(strategy, b, proposal.TypeReInit, func(info proposal.Info) error {
		proposed := info.Proposal.ReInit.ProtocolVersion
		if proposed < currentProtocolVersion {
			return &mlserr.InvalidProtocolVersionInReInit{Proposed: proposed, Original: currentProtocolVersion}
		}
		return nil
	})
}

// FilterOutReinitIfOtherProposals enforces that a ReInit proposal may
// only appear in a commit that contains nothing else, and that at most
// one ReInit appears.
func FilterOutReinitIfOtherProposals(strategy Strategy, b *proposal.Bundle) error {
	hasOnlyReinit := true
	for _, t := range b.ProposalTypes() {
		if t != proposal.TypeReInit {
			hasOnlyReinit = false
			break
		}
	}

	found := false
	return FilterByType(strategy, b, proposal.TypeReInit, func(proposal.Info) error {
		if !hasOnlyReinit || found {
			return mlserr.ErrOtherProposalWithReInit
		}
		found = true
		return nil
	})
}

// FilterOutExternalInit drops (or fails on) an ExternalInit proposal
// found in a member commit's bundle; ExternalInit is only meaningful
// in an external commit, which processes it through a separate path
// (group.Applier's external-commit flow) rather than this rule.
func FilterOutExternalInit(strategy Strategy, commitSender uint32, b *proposal.Bundle) error {
	return FilterByType(strategy, b, proposal.TypeExternalInit, func(info proposal.Info) error {
		return &mlserr.InvalidProposalTypeForSender{
			ProposalType: proposal.TypeExternalInit.String(),
			Sender:       proposal.SenderMember.String(),
			ByRef:        info.Source == proposal.SourceByRef,
		}
	})
}

// FilterOutInvalidPsks validates every PreSharedKey proposal's key
// type, nonce length, external id (via externalValidator), and
// uniqueness within the bundle.
func FilterOutInvalidPsks(ctx context.Context, strategy Strategy, suite ciphersuite.Provider, externalValidator identity.ExternalPskIdValidator, b *proposal.Bundle) error {
	seen := map[string]bool{}
	nonceLen := suite.KDFExtractSize()

	return FilterByType(strategy, b, proposal.TypePreSharedKey, func(info proposal.Info) error {
		psk := info.Proposal.PreSharedKey.PSK

		validKind := psk.Type == proposal.PSKTypeExternal ||
			(psk.Type == proposal.PSKTypeResumption && psk.Resumption != nil && psk.Resumption.Usage == proposal.PSKUsageApplication)
		if !validKind {
			return mlserr.ErrInvalidTypeOrUsageInPreSharedKeyProposal
		}

		if len(psk.Nonce) != nonceLen {
			return &mlserr.InvalidPskNonceLength{Expected: nonceLen, Found: len(psk.Nonce)}
		}

		key := pskIDKey(psk)
		if seen[key] {
			return mlserr.ErrDuplicatePskIds
		}
		seen[key] = true

		if psk.Type == proposal.PSKTypeExternal && externalValidator != nil {
			if err := externalValidator.Validate(ctx, psk.External.PSKID); err != nil {
				return &mlserr.PskIdValidationError{Inner: err}
			}
		}
		return nil
	})
}

func pskIDKey(id proposal.PreSharedKeyID) string {
	switch id.Type {
	case proposal.PSKTypeExternal:
		return "ext:" + string(id.External.PSKID)
	case proposal.PSKTypeResumption:
		return "res:" + string(id.Resumption.GroupID) + ":" + strconv.FormatUint(id.Resumption.Epoch, 10)
	default:
		return ""
	}
}

// ValidateProposers enforces the proposer-authorization table (spec
// §4.D) and that the sender itself is legitimate (a non-blank member
// leaf, or a registered external-senders index) for every proposal of
// type t in the bundle.
func ValidateProposers(strategy Strategy, t proposal.Type, leafExists func(leafIndex uint32) bool, externalSenderCount int, b *proposal.Bundle) error {
	return FilterByType(strategy, b, t, func(info proposal.Info) error {
		byRef := info.Source == proposal.SourceByRef
		if !ProposerCanPropose(info.Sender.Kind, t, byRef) {
			return &mlserr.InvalidProposalTypeForSender{ProposalType: t.String(), Sender: info.Sender.Kind.String(), ByRef: byRef}
		}
		return validateSender(info.Sender, leafExists, externalSenderCount)
	})
}

func validateSender(sender proposal.Sender, leafExists func(uint32) bool, externalSenderCount int) error {
	switch sender.Kind {
	case proposal.SenderMember:
		if !leafExists(sender.Index) {
			return &mlserr.InvalidMemberProposer{LeafIndex: sender.Index}
		}
		return nil
	case proposal.SenderExternal:
		if externalSenderCount == 0 {
			return mlserr.ErrExternalSenderWithoutExternalSendersExtension
		}
		if sender.Index >= uint32(externalSenderCount) {
			return &mlserr.InvalidExternalSenderIndex{Index: sender.Index}
		}
		return nil
	default:
		return nil
	}
}

// AllProposalTypes enumerates every default proposal type
// ValidateProposers must be run against for a full proposer-
// authorization pass over a bundle.
var AllProposalTypes = []proposal.Type{
	proposal.TypeAdd,
	proposal.TypeUpdate,
	proposal.TypeRemove,
	proposal.TypePreSharedKey,
	proposal.TypeReInit,
	proposal.TypeExternalInit,
	proposal.TypeGroupContextExtensions,
}

// FilterOutUnsupportedCustomProposals drops (or fails on) a custom
// proposal type that the resulting tree's members do not all
// advertise support for.
func FilterOutUnsupportedCustomProposals(strategy Strategy, canSupport func(proposalType uint16) bool, b *proposal.Bundle) error {
	var firstErr error
	b.RetainCustom(func(info proposal.Info) bool {
		if firstErr != nil {
			return true
		}
		var err error
		if !canSupport(uint16(info.Proposal.Type)) {
			err = &mlserr.UnsupportedCustomProposal{ProposalType: uint16(info.Proposal.Type)}
		}
		keep, propagate := Apply(strategy, info, err)
		if propagate != nil {
			firstErr = propagate
			return true
		}
		return keep
	})
	return firstErr
}
