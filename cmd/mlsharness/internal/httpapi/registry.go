package httpapi

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kindlyrobotics/nochat-mls/ciphersuite"
	"github.com/kindlyrobotics/nochat-mls/group"
	"github.com/kindlyrobotics/nochat-mls/identity"
	"github.com/kindlyrobotics/nochat-mls/leafnode"
	"github.com/kindlyrobotics/nochat-mls/ratchettree"
)

// session is one group's live state: its current tree plus everything
// an Applier needs to process the next commit. mlsharness keeps this
// in memory; persistence across restarts is explicitly out of scope
// for a reference interop harness.
type session struct {
	mu   sync.Mutex
	tree *ratchettree.RatchetTree
	ctx  group.Context
}

// Registry holds every group mlsharness currently knows about, keyed
// by group id hex.
type Registry struct {
	mu           sync.RWMutex
	groups       map[string]*session
	suite        ciphersuite.Provider
	idp          identity.Provider
	pskValidator identity.ExternalPskIdValidator
	log          *logrus.Logger
}

// NewRegistry constructs an empty Registry using suite, idp, and
// pskValidator for every group it creates. log receives one structured
// line per proposal batch and per proposal an Applier's tree editor
// drops (proposals dropped by a proposalfilter rule are not logged); a
// nil log disables that logging.
func NewRegistry(suite ciphersuite.Provider, idp identity.Provider, pskValidator identity.ExternalPskIdValidator, log *logrus.Logger) *Registry {
	return &Registry{
		groups:       map[string]*session{},
		suite:        suite,
		idp:          idp,
		pskValidator: pskValidator,
		log:          log,
	}
}

// Create starts a new single-member group and registers it under
// groupIDHex.
func (r *Registry) Create(groupIDHex string, groupID []byte, founder *ratchettree.RatchetTree) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[groupIDHex] = &session{
		tree: founder,
		ctx: group.Context{
			ProtocolVersion: 1,
			CipherSuite:     r.suite.Suite(),
			GroupID:         groupID,
			Epoch:           0,
		},
	}
}

// Get returns the session registered under groupIDHex.
func (r *Registry) Get(groupIDHex string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.groups[groupIDHex]
	return s, ok
}

// applier builds an Applier bound to s's current tree and context.
// externalLeaf is nil for a member commit, and the joiner's leaf for
// an external commit.
func (r *Registry) applier(s *session, externalLeaf *leafnode.LeafNode) *group.Applier {
	return &group.Applier{
		OriginalTree:                 s.tree,
		ProtocolVersion:              s.ctx.ProtocolVersion,
		Suite:                        r.suite,
		GroupID:                      s.ctx.GroupID,
		OriginalGroupExtensions:      s.ctx.Extensions,
		OriginalRequiredCapabilities: s.ctx.RequiredCapabilities,
		ExternalLeaf:                 externalLeaf,
		IdentityProvider:             r.idp,
		ExternalPskIdValidator:       r.pskValidator,
		Logger:                       r.log,
	}
}

func errGroupNotFound(id string) error {
	return fmt.Errorf("group %s not found", id)
}
