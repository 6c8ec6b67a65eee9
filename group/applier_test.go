package group

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kindlyrobotics/nochat-mls/ciphersuite"
	"github.com/kindlyrobotics/nochat-mls/identity"
	"github.com/kindlyrobotics/nochat-mls/leafnode"
	"github.com/kindlyrobotics/nochat-mls/proposal"
	"github.com/kindlyrobotics/nochat-mls/proposalfilter"
	"github.com/kindlyrobotics/nochat-mls/ratchettree"
)

// member bundles together everything a test needs to act as one
// participant: its signature keys and the leaf node those keys back.
type member struct {
	name    string
	sigPub  []byte
	sigPriv []byte
}

func newMember(t *testing.T, suite ciphersuite.Provider, name string) member {
	t.Helper()
	pub, priv, err := suite.GenerateSignatureKeyPair()
	require.NoError(t, err)
	return member{name: name, sigPub: pub, sigPriv: priv}
}

func (m member) leaf(t *testing.T, suite ciphersuite.Provider, source leafnode.Source) leafnode.LeafNode {
	t.Helper()
	hpkePub, _, err := suite.GenerateHPKEKeyPair()
	require.NoError(t, err)

	unsigned := leafnode.LeafNode{
		SigningIdentity: identity.SigningIdentity{
			Credential:         identity.Credential{Type: identity.CredentialTypeBasic, Basic: &identity.BasicCredential{Identifier: []byte(m.name)}},
			SignaturePublicKey: m.sigPub,
		},
		HPKEPublicKey: hpkePub,
		Capabilities: leafnode.Capabilities{
			Ciphersuites: []ciphersuite.ID{suite.Suite()},
		},
		Source: source,
	}

	var vctx leafnode.ValidationContext
	switch source {
	case leafnode.SourceKeyPackage:
		vctx = leafnode.KeyPackageContext{}
	case leafnode.SourceUpdate:
		vctx = leafnode.UpdateContext{}
	default:
		vctx = leafnode.CommitContext{}
	}

	signed, err := leafnode.Sign(suite, m.sigPriv, unsigned, vctx)
	require.NoError(t, err)
	return signed
}

func addProposal(t *testing.T, suite ciphersuite.Provider, m member, sender uint32) proposal.Info {
	t.Helper()
	kp, err := leafnode.SignKeyPackage(suite, m.sigPriv, leafnode.KeyPackage{
		ProtocolVersion: 1,
		CipherSuite:     suite.Suite(),
		LeafNode:        m.leaf(t, suite, leafnode.SourceKeyPackage),
	})
	require.NoError(t, err)
	return proposal.Info{
		Proposal: proposal.Proposal{Type: proposal.TypeAdd, Add: &proposal.Add{KeyPackage: kp}},
		Sender:   proposal.Sender{Kind: proposal.SenderMember, Index: sender},
		Source:   proposal.SourceByValue,
	}
}

func removeProposal(idx, sender uint32) proposal.Info {
	return proposal.Info{
		Proposal: proposal.Proposal{Type: proposal.TypeRemove, Remove: &proposal.Remove{RemovedIndex: idx}},
		Sender:   proposal.Sender{Kind: proposal.SenderMember, Index: sender},
		Source:   proposal.SourceByValue,
	}
}

func updateProposal(t *testing.T, suite ciphersuite.Provider, m member, sender uint32) proposal.Info {
	t.Helper()
	leaf := m.leaf(t, suite, leafnode.SourceUpdate)
	return proposal.Info{
		Proposal: proposal.Proposal{Type: proposal.TypeUpdate, Update: &proposal.Update{LeafNode: leaf}},
		Sender:   proposal.Sender{Kind: proposal.SenderMember, Index: sender},
		Source:   proposal.SourceByValue,
	}
}

func newApplier(suite ciphersuite.Provider, tree *ratchettree.RatchetTree, groupID []byte) *Applier {
	return &Applier{
		OriginalTree:     tree,
		ProtocolVersion:  1,
		Suite:            suite,
		GroupID:          groupID,
		IdentityProvider: identity.NewBasicProvider(),
	}
}

func TestApplyProposalsCreateAndAdd(t *testing.T) {
	suite := ciphersuite.NewBasic()
	alice := newMember(t, suite, "alice")
	bob := newMember(t, suite, "bob")

	tree := ratchettree.Derive(alice.leaf(t, suite, leafnode.SourceCommit))
	applier := newApplier(suite, tree, []byte("group-1"))

	bundle := proposal.NewBundle()
	bundle.Add(addProposal(t, suite, bob, 0))

	state, err := applier.ApplyProposals(context.Background(), proposalfilter.FailInvalidProposal{}, proposal.Sender{Kind: proposal.SenderMember, Index: 0}, bundle, nil)
	require.NoError(t, err)
	require.Equal(t, []ratchettree.LeafIndex{1}, state.AddedIndexes)
	require.Equal(t, ratchettree.LeafCount(2), state.Tree.LeafCount())

	leaf, err := state.Tree.GetLeafNode(1)
	require.NoError(t, err)
	require.Equal(t, "bob", string(leaf.SigningIdentity.Credential.Basic.Identifier))
}

func TestApplyProposalsEmptyCommit(t *testing.T) {
	suite := ciphersuite.NewBasic()
	alice := newMember(t, suite, "alice")
	tree := ratchettree.Derive(alice.leaf(t, suite, leafnode.SourceCommit))
	applier := newApplier(suite, tree, []byte("group-1"))

	state, err := applier.ApplyProposals(context.Background(), proposalfilter.FailInvalidProposal{}, proposal.Sender{Kind: proposal.SenderMember, Index: 0}, proposal.NewBundle(), nil)
	require.NoError(t, err)
	require.Empty(t, state.AddedIndexes)
	require.Empty(t, state.RemovedLeaves)
	require.Equal(t, ratchettree.LeafCount(1), state.Tree.LeafCount())
}

func TestApplyProposalsRejectsCommitterSelfUpdate(t *testing.T) {
	suite := ciphersuite.NewBasic()
	alice := newMember(t, suite, "alice")
	tree := ratchettree.Derive(alice.leaf(t, suite, leafnode.SourceCommit))
	applier := newApplier(suite, tree, []byte("group-1"))

	bundle := proposal.NewBundle()
	bundle.Add(updateProposal(t, suite, alice, 0))

	_, err := applier.ApplyProposals(context.Background(), proposalfilter.FailInvalidProposal{}, proposal.Sender{Kind: proposal.SenderMember, Index: 0}, bundle, nil)
	require.EqualError(t, err, "committer may not update its own leaf")
}

func TestApplyProposalsRejectsCommitterSelfRemoval(t *testing.T) {
	suite := ciphersuite.NewBasic()
	alice := newMember(t, suite, "alice")
	bob := newMember(t, suite, "bob")
	tree := ratchettree.Derive(alice.leaf(t, suite, leafnode.SourceCommit))
	_, err := tree.AddLeaves(context.Background(), identity.NewBasicProvider(), []leafnode.LeafNode{bob.leaf(t, suite, leafnode.SourceKeyPackage)})
	require.NoError(t, err)

	applier := newApplier(suite, tree, []byte("group-1"))
	bundle := proposal.NewBundle()
	bundle.Add(removeProposal(0, 0))

	_, err = applier.ApplyProposals(context.Background(), proposalfilter.FailInvalidProposal{}, proposal.Sender{Kind: proposal.SenderMember, Index: 0}, bundle, nil)
	require.EqualError(t, err, "committer may not remove itself")
}

func TestApplyProposalsRemovesMember(t *testing.T) {
	suite := ciphersuite.NewBasic()
	alice := newMember(t, suite, "alice")
	bob := newMember(t, suite, "bob")
	tree := ratchettree.Derive(alice.leaf(t, suite, leafnode.SourceCommit))
	_, err := tree.AddLeaves(context.Background(), identity.NewBasicProvider(), []leafnode.LeafNode{bob.leaf(t, suite, leafnode.SourceKeyPackage)})
	require.NoError(t, err)

	applier := newApplier(suite, tree, []byte("group-1"))
	bundle := proposal.NewBundle()
	bundle.Add(removeProposal(1, 0))

	state, err := applier.ApplyProposals(context.Background(), proposalfilter.FailInvalidProposal{}, proposal.Sender{Kind: proposal.SenderMember, Index: 0}, bundle, nil)
	require.NoError(t, err)
	require.Len(t, state.RemovedLeaves, 1)
	require.Equal(t, ratchettree.LeafIndex(1), state.RemovedLeaves[0].Index)
	_, err = state.Tree.GetLeafNode(1)
	require.Error(t, err)
}

func TestApplyProposalsReInitMustBeExclusive(t *testing.T) {
	suite := ciphersuite.NewBasic()
	alice := newMember(t, suite, "alice")
	bob := newMember(t, suite, "bob")
	tree := ratchettree.Derive(alice.leaf(t, suite, leafnode.SourceCommit))
	applier := newApplier(suite, tree, []byte("group-1"))

	bundle := proposal.NewBundle()
	bundle.Add(addProposal(t, suite, bob, 0))
	bundle.Add(proposal.Info{
		Proposal: proposal.Proposal{Type: proposal.TypeReInit, ReInit: &proposal.ReInit{GroupID: []byte("group-2"), ProtocolVersion: 1}},
		Sender:   proposal.Sender{Kind: proposal.SenderMember, Index: 0},
		Source:   proposal.SourceByValue,
	})

	_, err := applier.ApplyProposals(context.Background(), proposalfilter.FailInvalidProposal{}, proposal.Sender{Kind: proposal.SenderMember, Index: 0}, bundle, nil)
	require.EqualError(t, err, "reinit must be the only proposal in the batch")
}

func TestApplyProposalsExternalCommitJoin(t *testing.T) {
	suite := ciphersuite.NewBasic()
	alice := newMember(t, suite, "alice")
	carol := newMember(t, suite, "carol")
	tree := ratchettree.Derive(alice.leaf(t, suite, leafnode.SourceCommit))

	applier := newApplier(suite, tree, []byte("group-1"))
	joinerLeaf := carol.leaf(t, suite, leafnode.SourceCommit)
	applier.ExternalLeaf = &joinerLeaf

	bundle := proposal.NewBundle()
	bundle.Add(proposal.Info{
		Proposal: proposal.Proposal{Type: proposal.TypeExternalInit, ExternalInit: &proposal.ExternalInit{KEMOutput: []byte("kem-output")}},
		Sender:   proposal.Sender{Kind: proposal.SenderNewMemberCommit},
		Source:   proposal.SourceByValue,
	})

	state, err := applier.ApplyProposals(context.Background(), proposalfilter.FailInvalidProposal{}, proposal.Sender{Kind: proposal.SenderNewMemberCommit}, bundle, nil)
	require.NoError(t, err)
	require.NotNil(t, state.ExternalLeafIndex)
	require.Equal(t, ratchettree.LeafIndex(1), *state.ExternalLeafIndex)
	require.Equal(t, ratchettree.LeafCount(2), state.Tree.LeafCount())
}

func TestApplyProposalsExternalCommitRejectsByRefProposal(t *testing.T) {
	suite := ciphersuite.NewBasic()
	alice := newMember(t, suite, "alice")
	carol := newMember(t, suite, "carol")
	tree := ratchettree.Derive(alice.leaf(t, suite, leafnode.SourceCommit))

	applier := newApplier(suite, tree, []byte("group-1"))
	joinerLeaf := carol.leaf(t, suite, leafnode.SourceCommit)
	applier.ExternalLeaf = &joinerLeaf

	bundle := proposal.NewBundle()
	bundle.Add(proposal.Info{
		Proposal: proposal.Proposal{Type: proposal.TypeExternalInit, ExternalInit: &proposal.ExternalInit{KEMOutput: []byte("kem-output")}},
		Sender:   proposal.Sender{Kind: proposal.SenderNewMemberCommit},
		Source:   proposal.SourceByRef,
		Ref:      proposal.Ref("stale-ref"),
	})

	_, err := applier.ApplyProposals(context.Background(), proposalfilter.FailInvalidProposal{}, proposal.Sender{Kind: proposal.SenderNewMemberCommit}, bundle, nil)
	require.EqualError(t, err, "only members can commit proposals by reference")
}

func TestApplyProposalsFallsBackAndClearsRejectedGroupContextExtensions(t *testing.T) {
	suite := ciphersuite.NewBasic()
	alice := newMember(t, suite, "alice")
	tree := ratchettree.Derive(alice.leaf(t, suite, leafnode.SourceCommit))
	applier := newApplier(suite, tree, []byte("group-1"))

	bundle := proposal.NewBundle()
	bundle.Add(proposal.Info{
		Proposal: proposal.Proposal{Type: proposal.TypeGroupContextExtensions, GroupContextExtensions: &proposal.GroupContextExtensions{
			RequiredCapabilities: &leafnode.RequiredCapabilities{ExtensionTypes: []leafnode.ExtensionType{42}},
		}},
		Sender: proposal.Sender{Kind: proposal.SenderMember, Index: 0},
		Source: proposal.SourceByRef,
		Ref:    proposal.Ref("gce-ref"),
	})

	state, err := applier.ApplyProposals(context.Background(), proposalfilter.IgnoreInvalidByRefProposal{}, proposal.Sender{Kind: proposal.SenderMember, Index: 0}, bundle, nil)
	require.NoError(t, err)
	_, ok := state.Proposals.GroupContextExtensionsProposal()
	require.False(t, ok, "rejected group-context-extensions proposal must not survive the fall-back path")
}

func TestApplyProposalsRejectsInvalidPskNonceLength(t *testing.T) {
	suite := ciphersuite.NewBasic()
	alice := newMember(t, suite, "alice")
	tree := ratchettree.Derive(alice.leaf(t, suite, leafnode.SourceCommit))
	applier := newApplier(suite, tree, []byte("group-1"))

	bundle := proposal.NewBundle()
	bundle.Add(proposal.Info{
		Proposal: proposal.Proposal{Type: proposal.TypePreSharedKey, PreSharedKey: &proposal.PreSharedKey{
			PSK: proposal.PreSharedKeyID{
				Type:     proposal.PSKTypeExternal,
				External: &proposal.JustPreSharedKeyID{PSKID: []byte("ext-id")},
				Nonce:    []byte("too-short"),
			},
		}},
		Sender: proposal.Sender{Kind: proposal.SenderMember, Index: 0},
		Source: proposal.SourceByValue,
	})

	_, err := applier.ApplyProposals(context.Background(), proposalfilter.FailInvalidProposal{}, proposal.Sender{Kind: proposal.SenderMember, Index: 0}, bundle, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "psk nonce length")
}
