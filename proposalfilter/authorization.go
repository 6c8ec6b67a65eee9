package proposalfilter

import "github.com/kindlyrobotics/nochat-mls/proposal"

// ProposerCanPropose reports whether a sender of the given kind may
// send a proposal of proposalType either by value or by reference,
// the fixed authorization table spec §4.D and RFC 9420 §12.1 define.
// Ported directly from aws-mls's proposer_can_propose.
func ProposerCanPropose(proposerKind proposal.SenderKind, proposalType proposal.Type, byRef bool) bool {
	switch proposerKind {
	case proposal.SenderMember:
		if !byRef {
			return isOneOf(proposalType,
				proposal.TypeAdd, proposal.TypeRemove, proposal.TypePreSharedKey,
				proposal.TypeReInit, proposal.TypeGroupContextExtensions)
		}
		return isOneOf(proposalType,
			proposal.TypeAdd, proposal.TypeUpdate, proposal.TypeRemove, proposal.TypePreSharedKey,
			proposal.TypeReInit, proposal.TypeGroupContextExtensions)

	case proposal.SenderExternal:
		if !byRef {
			return false
		}
		return isOneOf(proposalType, proposal.TypeAdd, proposal.TypeRemove, proposal.TypeReInit)

	case proposal.SenderNewMemberCommit:
		if byRef {
			return false
		}
		return isOneOf(proposalType, proposal.TypeRemove, proposal.TypePreSharedKey, proposal.TypeExternalInit)

	case proposal.SenderNewMemberProposal:
		if byRef {
			return proposalType == proposal.TypeAdd
		}
		return false

	default:
		return false
	}
}

func isOneOf(t proposal.Type, candidates ...proposal.Type) bool {
	for _, c := range candidates {
		if t == c {
			return true
		}
	}
	return false
}
