package httpapi

import (
	"encoding/base64"
	"fmt"

	"github.com/kindlyrobotics/nochat-mls/ciphersuite"
	"github.com/kindlyrobotics/nochat-mls/identity"
	"github.com/kindlyrobotics/nochat-mls/leafnode"
	"github.com/kindlyrobotics/nochat-mls/proposal"
)

// memberDTO is the wire-JSON shape of a member's identity and public
// keys; mlsharness has no general TLS-style wire codec (out of scope),
// so the key fields here are carried as base64 rather than RFC 9420's
// binary encoding, and the identity as a plain string.
type memberDTO struct {
	Identity           string `json:"identity"`
	SignaturePublicKey string `json:"signature_public_key"`
	HPKEPublicKey      string `json:"hpke_public_key"`
}

func (m memberDTO) toLeafNode(source leafnode.Source) (leafnode.LeafNode, error) {
	sig, err := base64.StdEncoding.DecodeString(m.SignaturePublicKey)
	if err != nil {
		return leafnode.LeafNode{}, fmt.Errorf("decode signature_public_key: %w", err)
	}
	hpke, err := base64.StdEncoding.DecodeString(m.HPKEPublicKey)
	if err != nil {
		return leafnode.LeafNode{}, fmt.Errorf("decode hpke_public_key: %w", err)
	}
	return leafnode.LeafNode{
		SigningIdentity: identity.SigningIdentity{
			Credential:         identity.Credential{Type: identity.CredentialTypeBasic, Basic: &identity.BasicCredential{Identifier: []byte(m.Identity)}},
			SignaturePublicKey: sig,
		},
		HPKEPublicKey: hpke,
		Capabilities: leafnode.Capabilities{
			Ciphersuites: []ciphersuite.ID{ciphersuite.MLS10_128_DHKEMX25519_CHACHA20POLY1305_SHA256_Ed25519},
		},
		Source: source,
	}, nil
}

// proposalDTO is the wire-JSON shape of a single proposal. Exactly the
// fields its Type needs are read; the rest are ignored.
type proposalDTO struct {
	Type        string    `json:"type"`
	Member      memberDTO `json:"member,omitempty"`    // add
	LeafIndex   *uint32   `json:"leaf_index,omitempty"` // remove
	KEMOutput   string    `json:"kem_output,omitempty"` // external_init, base64
	SenderIndex uint32    `json:"sender_index"`
}

func (p proposalDTO) toProposal() (proposal.Proposal, error) {
	switch p.Type {
	case "add":
		leaf, err := p.Member.toLeafNode(leafnode.SourceKeyPackage)
		if err != nil {
			return proposal.Proposal{}, err
		}
		return proposal.Proposal{Type: proposal.TypeAdd, Add: &proposal.Add{KeyPackage: leafnode.KeyPackage{LeafNode: leaf}}}, nil
	case "remove":
		if p.LeafIndex == nil {
			return proposal.Proposal{}, fmt.Errorf("remove proposal requires leaf_index")
		}
		return proposal.Proposal{Type: proposal.TypeRemove, Remove: &proposal.Remove{RemovedIndex: *p.LeafIndex}}, nil
	case "external_init":
		kem, err := base64.StdEncoding.DecodeString(p.KEMOutput)
		if err != nil {
			return proposal.Proposal{}, fmt.Errorf("decode kem_output: %w", err)
		}
		return proposal.Proposal{Type: proposal.TypeExternalInit, ExternalInit: &proposal.ExternalInit{KEMOutput: kem}}, nil
	default:
		return proposal.Proposal{}, fmt.Errorf("unsupported proposal type %q", p.Type)
	}
}

// groupStateDTO summarizes a ProposalState's effect for an HTTP
// response; mlsharness never returns the tree itself since that would
// require the wire codec this module does not implement.
type groupStateDTO struct {
	MemberCount   int      `json:"member_count"`
	AddedIndexes  []uint32 `json:"added_indexes,omitempty"`
	RemovedLeaves []uint32 `json:"removed_indexes,omitempty"`
	JoinerIndex   *uint32  `json:"joiner_index,omitempty"`
}
