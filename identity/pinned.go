package identity

import (
	"context"
	"fmt"
	"sync"
)

// PinnedProvider validates BasicCredential identities against an
// explicit allow-list of fingerprints, the way a deployment migrating
// off BasicProvider toward a real credential policy would start:
// devices are pre-registered out of band (e.g. via an admin console
// or, as nochat.io does for its own key material, via the
// transparency log) rather than trusted on first use.
//
// ValidSuccessor additionally requires the successor's fingerprint to
// have been explicitly pinned as a successor of the predecessor,
// giving external-commit rejoin real authorization semantics instead
// of BasicProvider's trivial identifier equality.
type PinnedProvider struct {
	mu          sync.RWMutex
	allowed     map[string]struct{}
	successorOf map[string]map[string]struct{} // predecessor fingerprint -> set of allowed successor fingerprints
}

// NewPinnedProvider constructs a PinnedProvider with no identities
// allowed yet; call Allow and AllowSuccessor to populate it.
func NewPinnedProvider() *PinnedProvider {
	return &PinnedProvider{
		allowed:     make(map[string]struct{}),
		successorOf: make(map[string]map[string]struct{}),
	}
}

// Allow adds signingIdentity's fingerprint to the set of identities
// this provider will validate.
func (p *PinnedProvider) Allow(signingIdentity SigningIdentity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowed[signingIdentity.Fingerprint()] = struct{}{}
}

// AllowSuccessor records that successor may replace predecessor in an
// external commit.
func (p *PinnedProvider) AllowSuccessor(predecessor, successor SigningIdentity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	predFp := predecessor.Fingerprint()
	if p.successorOf[predFp] == nil {
		p.successorOf[predFp] = make(map[string]struct{})
	}
	p.successorOf[predFp][successor.Fingerprint()] = struct{}{}
}

func (p *PinnedProvider) Validate(_ context.Context, signingIdentity SigningIdentity, _ *int64) error {
	if _, err := resolveBasic(signingIdentity); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if _, ok := p.allowed[signingIdentity.Fingerprint()]; !ok {
		return fmt.Errorf("identity %s is not pinned", signingIdentity.Fingerprint())
	}
	return nil
}

func (p *PinnedProvider) Identity(ctx context.Context, signingIdentity SigningIdentity) ([]byte, error) {
	cred, err := resolveBasic(signingIdentity)
	if err != nil {
		return nil, err
	}
	return cred.Identifier, nil
}

func (p *PinnedProvider) ValidSuccessor(_ context.Context, predecessor, successor SigningIdentity) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	successors, ok := p.successorOf[predecessor.Fingerprint()]
	if !ok {
		return false, nil
	}
	_, ok = successors[successor.Fingerprint()]
	return ok, nil
}

func (p *PinnedProvider) SupportedTypes() []CredentialType {
	return []CredentialType{CredentialTypeBasic}
}
