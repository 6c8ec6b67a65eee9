package ratchettree

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kindlyrobotics/nochat-mls/ciphersuite"
	"github.com/kindlyrobotics/nochat-mls/identity"
	"github.com/kindlyrobotics/nochat-mls/leafnode"
)

// fakeSuite implements just enough of ciphersuite.Provider for tree
// hashing tests; it is not used for anything requiring real HPKE or
// signature semantics.
type fakeSuite struct{}

func (fakeSuite) Suite() ciphersuite.ID      { return ciphersuite.MLS10_128_DHKEMX25519_CHACHA20POLY1305_SHA256_Ed25519 }
func (fakeSuite) KDFExtractSize() int        { return 32 }
func (fakeSuite) HashSize() int              { return 32 }
func (fakeSuite) Hash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
func (fakeSuite) GenerateHPKEKeyPair() ([]byte, []byte, error) { return []byte("pub"), []byte("priv"), nil }
func (fakeSuite) HPKESeal(recipientPublicKey, aad, plaintext []byte) (*ciphersuite.HPKECiphertext, error) {
	return &ciphersuite.HPKECiphertext{KEMOutput: []byte("kem"), Ciphertext: plaintext}, nil
}
func (fakeSuite) HPKEOpen(recipientPrivateKey, aad []byte, ct *ciphersuite.HPKECiphertext) ([]byte, error) {
	return ct.Ciphertext, nil
}
func (fakeSuite) GenerateSignatureKeyPair() ([]byte, []byte, error) { return []byte("spub"), []byte("spriv"), nil }
func (fakeSuite) Sign(privateKey, message []byte) ([]byte, error)  { return []byte("sig"), nil }
func (fakeSuite) Verify(publicKey, message, signature []byte) bool { return true }

// fakeIdentity treats each leaf's BasicCredential identifier bytes as
// its stable identity, with no successor or validation policy beyond
// "always accept".
type fakeIdentity struct{}

func (fakeIdentity) Validate(ctx context.Context, si identity.SigningIdentity, timestamp *int64) error {
	return nil
}
func (fakeIdentity) Identity(ctx context.Context, si identity.SigningIdentity) ([]byte, error) {
	return si.Credential.Basic.Identifier, nil
}
func (fakeIdentity) ValidSuccessor(ctx context.Context, predecessor, successor identity.SigningIdentity) (bool, error) {
	return true, nil
}
func (fakeIdentity) SupportedTypes() []identity.CredentialType {
	return []identity.CredentialType{identity.CredentialTypeBasic}
}

func leafFor(name string) leafnode.LeafNode {
	return leafnode.LeafNode{
		SigningIdentity: identity.SigningIdentity{
			Credential:         identity.Credential{Type: identity.CredentialTypeBasic, Basic: &identity.BasicCredential{Identifier: []byte(name)}},
			SignaturePublicKey: []byte("sig-" + name),
		},
		HPKEPublicKey: []byte("hpke-" + name),
		Capabilities: leafnode.Capabilities{
			Ciphersuites: []ciphersuite.ID{ciphersuite.MLS10_128_DHKEMX25519_CHACHA20POLY1305_SHA256_Ed25519},
		},
		Source: leafnode.SourceKeyPackage,
	}
}

func TestDeriveSingleMember(t *testing.T) {
	tree := Derive(leafFor("alice"))
	require.Equal(t, LeafCount(1), tree.LeafCount())
	leaf, err := tree.GetLeafNode(0)
	require.NoError(t, err)
	require.Equal(t, []byte("hpke-alice"), leaf.HPKEPublicKey)
}

func TestAddLeavesFillsBlankBeforeGrowing(t *testing.T) {
	tree := Derive(leafFor("alice"))
	idp := fakeIdentity{}

	assigned, err := tree.AddLeaves(context.Background(), idp, []leafnode.LeafNode{leafFor("bob")})
	require.NoError(t, err)
	require.Equal(t, []LeafIndex{1}, assigned)
	require.Equal(t, LeafCount(2), tree.LeafCount())

	require.NoError(t, tree.RemoveLeaf(1))
	assigned, err = tree.AddLeaves(context.Background(), idp, []leafnode.LeafNode{leafFor("carol")})
	require.NoError(t, err)
	require.Equal(t, []LeafIndex{1}, assigned, "carol should reuse bob's freed slot rather than grow the tree")
	require.Equal(t, LeafCount(2), tree.LeafCount())
}

func TestAddLeavesRejectsDuplicateIdentity(t *testing.T) {
	tree := Derive(leafFor("alice"))
	idp := fakeIdentity{}

	_, err := tree.AddLeaves(context.Background(), idp, []leafnode.LeafNode{leafFor("alice")})
	require.Error(t, err)
	var dup *ErrDuplicateIdentity
	require.ErrorAs(t, err, &dup)
	require.Equal(t, LeafIndex(0), dup.Index)
}

func TestAddLeavesRejectsDuplicateHPKEKey(t *testing.T) {
	tree := Derive(leafFor("alice"))
	idp := fakeIdentity{}

	bob := leafFor("bob")
	bob.HPKEPublicKey = []byte("hpke-alice")

	_, err := tree.AddLeaves(context.Background(), idp, []leafnode.LeafNode{bob})
	require.Error(t, err)
	var dup *ErrDuplicateHPKEKey
	require.ErrorAs(t, err, &dup)
	require.Equal(t, LeafIndex(0), dup.Index)
}

func TestRemoveLeafBlanksDirectPath(t *testing.T) {
	tree := Derive(leafFor("alice"))
	idp := fakeIdentity{}
	_, err := tree.AddLeaves(context.Background(), idp, []leafnode.LeafNode{leafFor("bob"), leafFor("carol"), leafFor("dave")})
	require.NoError(t, err)

	require.NoError(t, tree.MergePath(0, []ParentNode{{HPKEPublicKey: []byte("p1")}, {HPKEPublicKey: []byte("p2")}}))

	require.NoError(t, tree.RemoveLeaf(0))
	_, err = tree.GetLeafNode(0)
	require.Error(t, err)

	for _, n := range tree.DirectPathFrom(0) {
		require.Nil(t, *tree.parentAt(n))
	}
}

func TestTreeHashChangesWithMembership(t *testing.T) {
	suite := fakeSuite{}
	tree := Derive(leafFor("alice"))
	h1, err := tree.TreeHash(suite)
	require.NoError(t, err)

	_, err = tree.AddLeaves(context.Background(), fakeIdentity{}, []leafnode.LeafNode{leafFor("bob")})
	require.NoError(t, err)
	h2, err := tree.TreeHash(suite)
	require.NoError(t, err)

	require.NotEqual(t, h1, h2)
}

func TestCanSupportProposalRequiresAllMembers(t *testing.T) {
	tree := Derive(leafFor("alice"))
	require.False(t, tree.CanSupportProposal(999))

	withProposal := leafFor("bob")
	withProposal.Capabilities.ProposalTypes = []uint16{999}
	_, err := tree.AddLeaves(context.Background(), fakeIdentity{}, []leafnode.LeafNode{withProposal})
	require.NoError(t, err)
	require.False(t, tree.CanSupportProposal(999), "alice still does not support it")
}

func TestResolutionOfBlankLeafIsEmpty(t *testing.T) {
	tree := Derive(leafFor("alice"))
	_, err := tree.AddLeaves(context.Background(), fakeIdentity{}, []leafnode.LeafNode{leafFor("bob")})
	require.NoError(t, err)
	require.NoError(t, tree.RemoveLeaf(1))

	require.Empty(t, tree.Resolution(LeafIndex(1).ToNodeIndex()))
}
