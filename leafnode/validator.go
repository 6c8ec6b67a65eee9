package leafnode

import (
	"context"
	"fmt"

	"github.com/kindlyrobotics/nochat-mls/ciphersuite"
	"github.com/kindlyrobotics/nochat-mls/identity"
)

// Validator checks a leaf or key package against the rules in spec
// §4.B: leaf-source tag, lifetime, signature, capabilities, credential,
// and group-extension support.
type Validator struct {
	Suite                ciphersuite.Provider
	IdentityProvider      identity.Provider
	RequiredCapabilities  *RequiredCapabilities
	GroupExtensionsInUse  ExtensionList
}

// NewValidator constructs a Validator. requiredCapabilities may be nil
// when the group has none in force.
func NewValidator(suite ciphersuite.Provider, idp identity.Provider, requiredCapabilities *RequiredCapabilities, groupExtensionsInUse ExtensionList) *Validator {
	return &Validator{
		Suite:                suite,
		IdentityProvider:     idp,
		RequiredCapabilities: requiredCapabilities,
		GroupExtensionsInUse: groupExtensionsInUse,
	}
}

// CheckLeaf validates a LeafNode under the given context (rules 1-6 of
// spec §4.B, excluding the lifetime check which only applies to
// KeyPackage context and is folded in here when present).
func (v *Validator) CheckLeaf(ctx context.Context, leaf LeafNode, vctx ValidationContext) error {
	if leaf.Source != vctx.requiredSource() {
		return &ErrInvalidLeafSource{Got: leaf.Source, Want: vctx.requiredSource()}
	}

	if kpctx, ok := vctx.(KeyPackageContext); ok {
		if err := checkLifetime(leaf.Lifetime, kpctx.CommitTime); err != nil {
			return err
		}
	}

	tbs, context := tbsForContext(leaf, vctx)
	if !v.Suite.Verify(leaf.SigningIdentity.SignaturePublicKey, tbs, leaf.Signature) {
		return &ErrInvalidSignature{Context: context}
	}

	if err := v.checkCapabilities(leaf.Capabilities); err != nil {
		return err
	}

	if err := v.checkGroupExtensions(leaf.Capabilities); err != nil {
		return err
	}

	var timestamp *int64
	switch c := vctx.(type) {
	case KeyPackageContext:
		timestamp = c.CommitTime
	case UpdateContext:
		timestamp = c.CommitTime
	}

	if err := v.IdentityProvider.Validate(ctx, leaf.SigningIdentity, timestamp); err != nil {
		return &ErrCredentialRejected{Inner: err}
	}

	return nil
}

// CheckKeyPackage validates a KeyPackage's own signature and ciphersuite
// consistency, then delegates to CheckLeaf with KeyPackageContext for
// the enclosed leaf.
func (v *Validator) CheckKeyPackage(ctx context.Context, kp KeyPackage, commitTime *int64) error {
	if kp.CipherSuite != v.Suite.Suite() {
		return fmt.Errorf("key package ciphersuite %s does not match group ciphersuite %s", kp.CipherSuite, v.Suite.Suite())
	}

	if !v.Suite.Verify(kp.LeafNode.SigningIdentity.SignaturePublicKey, keyPackageTBS(kp), kp.Signature) {
		return &ErrInvalidSignature{Context: "KeyPackageTBS"}
	}

	return v.CheckLeaf(ctx, kp.LeafNode, KeyPackageContext{CommitTime: commitTime})
}

func tbsForContext(leaf LeafNode, vctx ValidationContext) (tbs []byte, label string) {
	switch c := vctx.(type) {
	case KeyPackageContext:
		return leafNodeTBS(leaf, nil, nil), "LeafNodeTBS(key_package)"
	case UpdateContext:
		idx := c.SenderIndex
		return leafNodeTBS(leaf, c.GroupID, &idx), "LeafNodeTBS(update)"
	case CommitContext:
		return leafNodeTBS(leaf, c.GroupID, nil), "LeafNodeTBS(commit)"
	default:
		return leafNodeTBS(leaf, nil, nil), "LeafNodeTBS"
	}
}

func checkLifetime(lifetime *Lifetime, commitTime *int64) error {
	if lifetime == nil || commitTime == nil {
		return nil
	}
	t := uint64(*commitTime)
	if t < lifetime.NotBefore || t > lifetime.NotAfter {
		return &ErrExpiredLifetime{CommitTime: *commitTime, NotBefore: lifetime.NotBefore, NotAfter: lifetime.NotAfter}
	}
	return nil
}

func (v *Validator) checkCapabilities(caps Capabilities) error {
	if !contains(caps.Ciphersuites, v.Suite.Suite()) {
		return &ErrMissingRequiredCapability{Detail: fmt.Sprintf("ciphersuite %s", v.Suite.Suite())}
	}

	if v.RequiredCapabilities == nil {
		return nil
	}

	for _, et := range v.RequiredCapabilities.ExtensionTypes {
		if !caps.SupportsExtension(et) {
			return &ErrMissingRequiredCapability{Detail: fmt.Sprintf("extension type %d", et)}
		}
	}
	for _, pt := range v.RequiredCapabilities.ProposalTypes {
		if !contains(caps.ProposalTypes, pt) {
			return &ErrMissingRequiredCapability{Detail: fmt.Sprintf("proposal type %d", pt)}
		}
	}
	for _, ct := range v.RequiredCapabilities.CredentialTypes {
		if !contains(caps.CredentialTypes, ct) {
			return &ErrMissingRequiredCapability{Detail: fmt.Sprintf("credential type %d", ct)}
		}
	}
	return nil
}

func (v *Validator) checkGroupExtensions(caps Capabilities) error {
	for _, ext := range v.GroupExtensionsInUse {
		if ext.Type.IsDefault() {
			continue
		}
		if !caps.SupportsExtension(ext.Type) {
			return &ErrUnsupportedGroupExtension{ExtensionType: ext.Type}
		}
	}
	return nil
}
