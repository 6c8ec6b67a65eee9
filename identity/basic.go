package identity

import (
	"bytes"
	"context"
)

// BasicProvider is an always-valid identity policy for BasicCredential
// identities: it accepts any self-signed credential with a present
// identifier, and treats two identities as a valid successor pair iff
// their basic-credential identifiers are byte-equal. It is only
// recommended for testing and early interop, the same caveat
// aws-mls's BasicIdentityProvider carries.
type BasicProvider struct{}

// NewBasicProvider constructs the always-valid BasicCredential policy.
func NewBasicProvider() *BasicProvider { return &BasicProvider{} }

func (p *BasicProvider) Validate(_ context.Context, signingIdentity SigningIdentity, _ *int64) error {
	_, err := resolveBasic(signingIdentity)
	return err
}

func (p *BasicProvider) Identity(_ context.Context, signingIdentity SigningIdentity) ([]byte, error) {
	cred, err := resolveBasic(signingIdentity)
	if err != nil {
		return nil, err
	}
	return cred.Identifier, nil
}

func (p *BasicProvider) ValidSuccessor(_ context.Context, predecessor, successor SigningIdentity) (bool, error) {
	predCred, err := resolveBasic(predecessor)
	if err != nil {
		return false, err
	}
	succCred, err := resolveBasic(successor)
	if err != nil {
		return false, err
	}
	return bytes.Equal(predCred.Identifier, succCred.Identifier), nil
}

func (p *BasicProvider) SupportedTypes() []CredentialType {
	return []CredentialType{CredentialTypeBasic}
}
