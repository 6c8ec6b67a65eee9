// Package mlserr holds the tagged error taxonomy shared by the proposal
// filter, batch tree editor, and proposal applier. Those packages
// return these types and sentinels, matchable with errors.Is and
// errors.As; leafnode and identity report failures with their own
// error types.
package mlserr

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that carry no payload beyond their
// meaning.
var (
	ErrExternalSenderCannotCommit         = errors.New("external sender cannot commit")
	ErrOnlyMembersCanCommitProposalsByRef = errors.New("only members can commit proposals by reference")
	ErrInvalidCommitSelfUpdate            = errors.New("committer may not update its own leaf")
	ErrCommitterSelfRemoval               = errors.New("committer may not remove itself")
	ErrMoreThanOneGroupContextExtensions  = errors.New("more than one group context extensions proposal in batch")
	ErrOtherProposalWithReInit            = errors.New("reinit must be the only proposal in the batch")
	ErrExternalCommitMustHaveNewLeaf      = errors.New("external commit requires a new leaf")
	ErrExternalCommitMustHaveExactlyOneExternalInit = errors.New("external commit must have exactly one external-init proposal")
	ErrExternalCommitWithMoreThanOneRemove          = errors.New("external commit may include at most one remove proposal")
	ErrExternalCommitRemovesOtherIdentity           = errors.New("external commit's remove target is not a valid predecessor identity")
	ErrInvalidTypeOrUsageInPreSharedKeyProposal      = errors.New("pre-shared key proposal has an invalid key type or usage")
	ErrDuplicatePskIds                               = errors.New("duplicate pre-shared key ids in batch")
)

// InvalidProposalTypeForSender reports that a (sender kind, by-ref,
// proposal type) triple is not in the authorization table.
type InvalidProposalTypeForSender struct {
	ProposalType string
	Sender       string
	ByRef        bool
}

func (e *InvalidProposalTypeForSender) Error() string {
	mode := "by value"
	if e.ByRef {
		mode = "by reference"
	}
	return fmt.Sprintf("sender %s may not propose %s (%s)", e.Sender, e.ProposalType, mode)
}

// InvalidMemberProposer reports a Member(i) sender whose leaf is blank.
type InvalidMemberProposer struct{ LeafIndex uint32 }

func (e *InvalidMemberProposer) Error() string {
	return fmt.Sprintf("member proposer at leaf %d does not resolve to a non-blank leaf", e.LeafIndex)
}

// InvalidExternalSenderIndex reports an External(i) sender outside the
// group's external_senders extension.
type InvalidExternalSenderIndex struct{ Index uint32 }

func (e *InvalidExternalSenderIndex) Error() string {
	return fmt.Sprintf("external sender index %d out of range for external_senders extension", e.Index)
}

// ErrExternalSenderWithoutExternalSendersExtension reports an
// External(i) sender when the group carries no external_senders
// extension at all.
var ErrExternalSenderWithoutExternalSendersExtension = errors.New("external sender present but group has no external_senders extension")

// MoreThanOneProposalForLeaf reports a leaf touched by more than one
// effective Remove, or more than one surviving Update.
type MoreThanOneProposalForLeaf struct{ LeafIndex uint32 }

func (e *MoreThanOneProposalForLeaf) Error() string {
	return fmt.Sprintf("leaf %d is the target of more than one proposal", e.LeafIndex)
}

// InvalidProtocolVersionInReInit reports a ReInit proposing a protocol
// version older than the group's current one.
type InvalidProtocolVersionInReInit struct {
	Proposed uint16
	Original uint16
}

func (e *InvalidProtocolVersionInReInit) Error() string {
	return fmt.Sprintf("reinit protocol version %d is older than current version %d", e.Proposed, e.Original)
}

// InvalidProposalTypeInExternalCommit reports a proposal type other
// than {ExternalInit, Remove, PSK} inside an external commit.
type InvalidProposalTypeInExternalCommit struct{ ProposalType string }

func (e *InvalidProposalTypeInExternalCommit) Error() string {
	return fmt.Sprintf("proposal type %s is not allowed in an external commit", e.ProposalType)
}

// InvalidPskNonceLength reports a PSK nonce whose length does not
// match the ciphersuite's KDF-extract size.
type InvalidPskNonceLength struct {
	Expected int
	Found    int
}

func (e *InvalidPskNonceLength) Error() string {
	return fmt.Sprintf("psk nonce length %d does not match expected kdf-extract size %d", e.Found, e.Expected)
}

// PskIdValidationError wraps a failure from the external PSK id
// validator adapter.
type PskIdValidationError struct{ Inner error }

func (e *PskIdValidationError) Error() string { return fmt.Sprintf("external psk id rejected: %v", e.Inner) }
func (e *PskIdValidationError) Unwrap() error  { return e.Inner }

// UnsupportedGroupExtension reports a leaf that does not advertise a
// non-default extension required by the group.
type UnsupportedGroupExtension struct{ ExtensionType uint16 }

func (e *UnsupportedGroupExtension) Error() string {
	return fmt.Sprintf("extension type %d is not supported by every member", e.ExtensionType)
}

// UnsupportedCustomProposal reports a custom proposal type not
// supported by every leaf in the resulting tree.
type UnsupportedCustomProposal struct{ ProposalType uint16 }

func (e *UnsupportedCustomProposal) Error() string {
	return fmt.Sprintf("custom proposal type %d is not supported by every leaf", e.ProposalType)
}

// RatchetTreeError wraps a failure surfaced by the ratchettree package.
type RatchetTreeError struct{ Inner error }

func (e *RatchetTreeError) Error() string { return fmt.Sprintf("ratchet tree error: %v", e.Inner) }
func (e *RatchetTreeError) Unwrap() error  { return e.Inner }

// IdentityProviderError wraps a failure surfaced by an identity.Provider.
type IdentityProviderError struct{ Inner error }

func (e *IdentityProviderError) Error() string { return fmt.Sprintf("identity provider error: %v", e.Inner) }
func (e *IdentityProviderError) Unwrap() error  { return e.Inner }

// Wrap attaches a contextual message to err via fmt.Errorf's %w, e.g.
// mlserr.Wrap(err, "apply update proposal"); it returns nil for a nil err.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}
