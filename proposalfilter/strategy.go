/*
Package proposalfilter implements the proposal-validation rules a
commit's bundle must pass before the batch tree editor touches the
tree (component D; spec §4.D). Every rule here is a direct port of one
function from aws-mls's filtering.rs, generalized from that file's
generic-over-Proposable style to this module's plain Type-tag
dispatch.
*/
package proposalfilter

import "github.com/kindlyrobotics/nochat-mls/proposal"

// Strategy decides, for a proposal that failed a validation rule,
// whether processing should drop it silently or fail the whole
// commit. Rules call Apply rather than consulting a Strategy directly.
type Strategy interface {
	Ignore(info proposal.Info) bool
}

// FailInvalidProposal aborts the whole commit the first time any
// proposal fails a rule. This is the strategy a member applying a
// commit from the wire should use: the sender already ran its own
// proposals through validation and any failure here means something
// is wrong with the commit itself.
type FailInvalidProposal struct{}

func (FailInvalidProposal) Ignore(proposal.Info) bool { return false }

// IgnoreInvalidByRefProposal drops a by-reference proposal that fails
// a rule instead of failing the whole commit, but still fails on a
// by-value proposal's failure. This is the strategy a committer
// assembling its own commit from a pending-proposals cache should use,
// since an invalid by-ref proposal might simply be stale.
type IgnoreInvalidByRefProposal struct{}

func (IgnoreInvalidByRefProposal) Ignore(info proposal.Info) bool {
	return info.Source == proposal.SourceByRef
}

// Apply runs a rule's result through strategy: a nil err keeps the
// proposal (returns true, nil); a non-nil err either drops the
// proposal (true is replaced by false, err swallowed) when strategy
// says to ignore it, or propagates the error otherwise.
func Apply(strategy Strategy, info proposal.Info, err error) (keep bool, propagate error) {
	if err == nil {
		return true, nil
	}
	if strategy.Ignore(info) {
		return false, nil
	}
	return false, err
}
