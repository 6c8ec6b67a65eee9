package leafnode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kindlyrobotics/nochat-mls/ciphersuite"
	"github.com/kindlyrobotics/nochat-mls/identity"
)

type fakeIdentityProvider struct {
	rejectBasic bool
}

func (f fakeIdentityProvider) Validate(_ context.Context, si identity.SigningIdentity, _ *int64) error {
	if f.rejectBasic {
		return &identity.ErrUnsupportedCredential{Type: si.Credential.Type}
	}
	return nil
}

func (f fakeIdentityProvider) Identity(_ context.Context, si identity.SigningIdentity) ([]byte, error) {
	return si.Credential.Basic.Identifier, nil
}

func (f fakeIdentityProvider) ValidSuccessor(_ context.Context, _, _ identity.SigningIdentity) (bool, error) {
	return true, nil
}

func (f fakeIdentityProvider) SupportedTypes() []identity.CredentialType {
	return []identity.CredentialType{identity.CredentialTypeBasic}
}

func signedKeyPackageLeaf(t *testing.T, suite ciphersuite.Provider, name string) (LeafNode, []byte) {
	t.Helper()
	pub, priv, err := suite.GenerateSignatureKeyPair()
	require.NoError(t, err)
	leaf := unsignedLeaf(name, SourceKeyPackage)
	leaf.SigningIdentity.SignaturePublicKey = pub
	signed, err := Sign(suite, priv, leaf, KeyPackageContext{})
	require.NoError(t, err)
	return signed, priv
}

func TestCheckLeafRejectsWrongSource(t *testing.T) {
	suite := ciphersuite.NewBasic()
	leaf, _ := signedKeyPackageLeaf(t, suite, "alice")

	validator := NewValidator(suite, fakeIdentityProvider{}, nil, nil)
	err := validator.CheckLeaf(context.Background(), leaf, UpdateContext{})
	require.Error(t, err)
	var srcErr *ErrInvalidLeafSource
	require.ErrorAs(t, err, &srcErr)
}

func TestCheckLeafEnforcesRequiredCapabilities(t *testing.T) {
	suite := ciphersuite.NewBasic()
	leaf, _ := signedKeyPackageLeaf(t, suite, "alice")

	required := &RequiredCapabilities{ExtensionTypes: []ExtensionType{42}}
	validator := NewValidator(suite, fakeIdentityProvider{}, required, nil)
	err := validator.CheckLeaf(context.Background(), leaf, KeyPackageContext{})
	require.Error(t, err)
	var capErr *ErrMissingRequiredCapability
	require.ErrorAs(t, err, &capErr)
}

func TestCheckLeafEnforcesGroupExtensionSupport(t *testing.T) {
	suite := ciphersuite.NewBasic()
	leaf, _ := signedKeyPackageLeaf(t, suite, "alice")

	groupExtensions := ExtensionList{{Type: 99, Data: []byte("v")}}
	validator := NewValidator(suite, fakeIdentityProvider{}, nil, groupExtensions)
	err := validator.CheckLeaf(context.Background(), leaf, KeyPackageContext{})
	require.Error(t, err)
	var extErr *ErrUnsupportedGroupExtension
	require.ErrorAs(t, err, &extErr)
}

func TestCheckLeafRejectsExpiredLifetime(t *testing.T) {
	suite := ciphersuite.NewBasic()
	pub, priv, err := suite.GenerateSignatureKeyPair()
	require.NoError(t, err)

	leaf := unsignedLeaf("alice", SourceKeyPackage)
	leaf.SigningIdentity.SignaturePublicKey = pub
	leaf.Lifetime = &Lifetime{NotBefore: 100, NotAfter: 200}
	signed, err := Sign(suite, priv, leaf, KeyPackageContext{})
	require.NoError(t, err)

	commitTime := int64(300)
	validator := NewValidator(suite, fakeIdentityProvider{}, nil, nil)
	err = validator.CheckLeaf(context.Background(), signed, KeyPackageContext{CommitTime: &commitTime})
	require.Error(t, err)
	var lifetimeErr *ErrExpiredLifetime
	require.ErrorAs(t, err, &lifetimeErr)
}

func TestCheckKeyPackageRejectsCiphersuiteMismatch(t *testing.T) {
	suite := ciphersuite.NewBasic()
	leaf, priv := signedKeyPackageLeaf(t, suite, "alice")

	kp := KeyPackage{
		ProtocolVersion: 1,
		CipherSuite:     ciphersuite.NochatHybridPQ,
		InitKey:         []byte("init"),
		LeafNode:        leaf,
	}
	signed, err := SignKeyPackage(suite, priv, kp)
	require.NoError(t, err)

	validator := NewValidator(suite, fakeIdentityProvider{}, nil, nil)
	err = validator.CheckKeyPackage(context.Background(), signed, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not match group ciphersuite")
}
