/*
Package leafnode defines the member-facing data a ratchet tree leaf
carries — LeafNode and KeyPackage — plus the validator that checks a
leaf's signature, lifetime, capabilities, credential, and extension
support before it is allowed to occupy a tree slot (component B of the
group-security core; spec §4.B).
*/
package leafnode

import (
	"github.com/kindlyrobotics/nochat-mls/ciphersuite"
	"github.com/kindlyrobotics/nochat-mls/identity"
)

// ExtensionType is a registered 16-bit extension codepoint.
type ExtensionType uint16

// defaultExtensionTypes are the extension types RFC 9420 reserves as
// understood by every conforming implementation; leaves never need to
// advertise support for them explicitly in Capabilities.Extensions.
var defaultExtensionTypes = map[ExtensionType]struct{}{
	1: {}, // application_id
	2: {}, // ratchet_tree
	3: {}, // required_capabilities
	4: {}, // external_pub
	5: {}, // external_senders
}

// IsDefault reports whether t is one of the extension types every
// implementation supports without advertising it.
func (t ExtensionType) IsDefault() bool {
	_, ok := defaultExtensionTypes[t]
	return ok
}

// Extension is a single (type, opaque data) pair.
type Extension struct {
	Type ExtensionType
	Data []byte
}

// ExtensionList is an ordered set of extensions, at most one per type.
type ExtensionList []Extension

// Get returns the extension of the given type and whether it was
// present.
func (l ExtensionList) Get(t ExtensionType) (Extension, bool) {
	for _, e := range l {
		if e.Type == t {
			return e, true
		}
	}
	return Extension{}, false
}

// Has reports whether the list carries an extension of type t.
func (l ExtensionList) Has(t ExtensionType) bool {
	_, ok := l.Get(t)
	return ok
}

// ExternalSenderEntry is one entry of the external_senders extension:
// a signing identity authorized to send proposals/commits from
// outside the group.
type ExternalSenderEntry struct {
	SigningIdentity identity.SigningIdentity
}

// RequiredCapabilities mirrors RFC 9420's RequiredCapabilitiesExt: the
// group-mandated floor every member's capabilities must meet.
type RequiredCapabilities struct {
	ExtensionTypes  []ExtensionType
	ProposalTypes   []uint16
	CredentialTypes []identity.CredentialType
}

// Capabilities advertises what a leaf supports: ciphersuites, protocol
// versions, credential types, proposal types, and non-default
// extension types.
type Capabilities struct {
	Ciphersuites    []ciphersuite.ID
	Versions        []uint16
	CredentialTypes []identity.CredentialType
	ProposalTypes   []uint16
	Extensions      []ExtensionType
}

func contains[T comparable](haystack []T, needle T) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// SupportsExtension reports whether t is supported, either because it
// is a default extension type or because it is explicitly advertised.
func (c Capabilities) SupportsExtension(t ExtensionType) bool {
	return t.IsDefault() || contains(c.Extensions, t)
}

// SupportsProposalType reports whether t is advertised among the
// leaf's proposal types.
func (c Capabilities) SupportsProposalType(t uint16) bool {
	return contains(c.ProposalTypes, t)
}

// Lifetime bounds the validity window of a KeyPackage leaf, in Unix
// seconds.
type Lifetime struct {
	NotBefore uint64
	NotAfter  uint64
}

// Source tags why a leaf exists: freshly generated for a KeyPackage,
// refreshed by an Update proposal, or installed by the committer's own
// commit path.
type Source uint8

const (
	SourceKeyPackage Source = iota + 1
	SourceUpdate
	SourceCommit
)

func (s Source) String() string {
	switch s {
	case SourceKeyPackage:
		return "key_package"
	case SourceUpdate:
		return "update"
	case SourceCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// LeafNode is a member's public leaf, signed over a context-dependent
// byte string (see tbs.go).
type LeafNode struct {
	SigningIdentity identity.SigningIdentity
	HPKEPublicKey   []byte
	Capabilities    Capabilities
	Extensions      ExtensionList
	Lifetime        *Lifetime // only meaningful when Source == SourceKeyPackage
	Source          Source
	Signature       []byte
}

// KeyPackage is the signed envelope carrying a LeafNode intended for
// addition to a group.
type KeyPackage struct {
	ProtocolVersion uint16
	CipherSuite     ciphersuite.ID
	InitKey         []byte
	LeafNode        LeafNode
	Extensions      ExtensionList
	Signature       []byte
}
