/*
Package proposal defines the wire-level proposal variants a commit can
carry or reference, and Bundle, the typed collection the proposal
filter and batch tree editor operate on (component C; spec §4.C). A
Bundle groups proposals by type the way aws-mls's ProposalBundle does
in filtering.rs, so downstream passes can pull out "all the Updates"
or "all the Removes" without a type switch at every call site.
*/
package proposal

import (
	"github.com/kindlyrobotics/nochat-mls/identity"
	"github.com/kindlyrobotics/nochat-mls/leafnode"
)

// Type is a registered MLS proposal type codepoint.
type Type uint16

const (
	TypeAdd                     Type = 1
	TypeUpdate                  Type = 2
	TypeRemove                  Type = 3
	TypePreSharedKey            Type = 4
	TypeReInit                  Type = 5
	TypeExternalInit            Type = 6
	TypeGroupContextExtensions  Type = 7
)

func (t Type) String() string {
	switch t {
	case TypeAdd:
		return "add"
	case TypeUpdate:
		return "update"
	case TypeRemove:
		return "remove"
	case TypePreSharedKey:
		return "psk"
	case TypeReInit:
		return "reinit"
	case TypeExternalInit:
		return "external_init"
	case TypeGroupContextExtensions:
		return "group_context_extensions"
	default:
		return "custom"
	}
}

// IsDefault reports whether t is one of the seven proposal types RFC
// 9420 defines; everything else is a custom proposal type that must be
// looked up against members' advertised capabilities before use.
func (t Type) IsDefault() bool { return t >= TypeAdd && t <= TypeGroupContextExtensions }

// SenderKind tags who originated a proposal or commit.
type SenderKind uint8

const (
	SenderMember SenderKind = iota + 1
	SenderExternal
	SenderNewMemberCommit
	SenderNewMemberProposal
)

func (s SenderKind) String() string {
	switch s {
	case SenderMember:
		return "member"
	case SenderExternal:
		return "external"
	case SenderNewMemberCommit:
		return "new_member_commit"
	case SenderNewMemberProposal:
		return "new_member_proposal"
	default:
		return "unknown"
	}
}

// Sender identifies who sent a proposal. Index is only meaningful for
// SenderMember (the leaf index) and SenderExternal (the index into the
// group's external_senders extension).
type Sender struct {
	Kind  SenderKind
	Index uint32
}

// Add proposes adding a new member via the enclosed key package.
type Add struct {
	KeyPackage leafnode.KeyPackage
}

// Update proposes refreshing the sender's own leaf.
type Update struct {
	LeafNode leafnode.LeafNode
}

// Remove proposes removing the member occupying RemovedIndex.
type Remove struct {
	RemovedIndex uint32
}

// PreSharedKey injects an additional secret into the next epoch's key
// schedule.
type PreSharedKey struct {
	PSK PreSharedKeyID
}

// ReInit proposes destroying the current group and starting a new one
// under a new group id and/or protocol version.
type ReInit struct {
	GroupID         []byte
	ProtocolVersion uint16
	CipherSuite     uint16
	Extensions      leafnode.ExtensionList
}

// ExternalInit carries the kem_output a joiner uses to derive the
// epoch's init secret in an external commit.
type ExternalInit struct {
	KEMOutput []byte
}

// GroupContextExtensions proposes replacing the group's extension set.
// ExternalSenders mirrors the special-cased ExternalSendersExt: when
// the proposed extension list includes an external_senders extension,
// its parsed entries are carried here rather than left opaque, since
// the filter must validate each entry's signing identity.
type GroupContextExtensions struct {
	Extensions      leafnode.ExtensionList
	ExternalSenders []identity.SigningIdentity
	// RequiredCapabilities is the parsed required_capabilities
	// extension when Extensions carries one, nil otherwise. Like
	// ExternalSenders, this is carried structurally rather than left
	// as opaque Extension.Data because the filter pipeline must read
	// it to validate every member against the new floor.
	RequiredCapabilities *leafnode.RequiredCapabilities
}

// Custom carries an application-defined proposal type's opaque
// payload.
type Custom struct {
	ProposalType Type
	Data         []byte
}

// Proposal is a tagged union over every proposal variant. Exactly one
// of the pointer fields is non-nil; Type identifies which.
type Proposal struct {
	Type                    Type
	Add                     *Add
	Update                  *Update
	Remove                  *Remove
	PreSharedKey            *PreSharedKey
	ReInit                  *ReInit
	ExternalInit            *ExternalInit
	GroupContextExtensions  *GroupContextExtensions
	Custom                  *Custom
}

// Ref is a proposal reference: a hash computed by the sender over a
// proposal's wire encoding and the group's transcript, used to refer
// to a by-reference proposal from a later Commit without resending its
// full content.
type Ref []byte

// Source tags whether a proposal arrived inline in the commit (by
// value) or was previously sent and is now referenced by hash (by
// reference).
type Source uint8

const (
	SourceByValue Source = iota + 1
	SourceByRef
)

// Info wraps a Proposal with the metadata the filter and tree editor
// need: who sent it, and — for by-reference proposals — the reference
// hash naming it in the commit. Mirrors aws-mls's ProposalInfo<P>,
// but is not generic: it holds the Proposal tagged union directly.
type Info struct {
	Proposal Proposal
	Sender   Sender
	Source   Source
	Ref      Ref // nil when Source == SourceByValue
}
