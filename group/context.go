/*
Package group orchestrates the whole commit-application pipeline
(component F; spec §4.F): Applier runs a commit's proposal
bundle through the proposer-authorization checks and content rules in
proposalfilter, resolves the group-context-extensions
try-new-capabilities-then-fall-back flow, and finally hands the
surviving Update/Remove/Add proposals to treeeditor. Grounded directly
on aws-mls's ProposalApplier (filtering.rs).
*/
package group

import (
	"github.com/kindlyrobotics/nochat-mls/ciphersuite"
	"github.com/kindlyrobotics/nochat-mls/leafnode"
)

// Context is the subset of RFC 9420's GroupContext the proposal
// pipeline needs: its wire-format fields beyond these (confirmed
// transcript hash, tree hash) are maintained by the key-schedule layer
// that sits above this module and are not reproduced here.
type Context struct {
	ProtocolVersion      uint16
	CipherSuite          ciphersuite.ID
	GroupID              []byte
	Epoch                uint64
	Extensions           leafnode.ExtensionList
	RequiredCapabilities *leafnode.RequiredCapabilities
}
