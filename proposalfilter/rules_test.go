package proposalfilter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kindlyrobotics/nochat-mls/proposal"
)

func memberInfo(p proposal.Proposal, sender uint32, source proposal.Source) proposal.Info {
	return proposal.Info{Proposal: p, Sender: proposal.Sender{Kind: proposal.SenderMember, Index: sender}, Source: source}
}

func TestProposerCanProposeTable(t *testing.T) {
	require.True(t, ProposerCanPropose(proposal.SenderMember, proposal.TypeAdd, false))
	require.False(t, ProposerCanPropose(proposal.SenderMember, proposal.TypeUpdate, false), "member cannot propose its own update by value")
	require.True(t, ProposerCanPropose(proposal.SenderMember, proposal.TypeUpdate, true))
	require.False(t, ProposerCanPropose(proposal.SenderExternal, proposal.TypeAdd, false))
	require.True(t, ProposerCanPropose(proposal.SenderExternal, proposal.TypeAdd, true))
	require.False(t, ProposerCanPropose(proposal.SenderExternal, proposal.TypeUpdate, true))
	require.True(t, ProposerCanPropose(proposal.SenderNewMemberCommit, proposal.TypeExternalInit, false))
	require.False(t, ProposerCanPropose(proposal.SenderNewMemberCommit, proposal.TypeExternalInit, true))
	require.True(t, ProposerCanPropose(proposal.SenderNewMemberProposal, proposal.TypeAdd, true))
	require.False(t, ProposerCanPropose(proposal.SenderNewMemberProposal, proposal.TypeAdd, false))
}

func TestFilterOutUpdateForCommitterFails(t *testing.T) {
	b := proposal.NewBundle()
	b.Add(memberInfo(proposal.Proposal{Type: proposal.TypeUpdate, Update: &proposal.Update{}}, 3, proposal.SourceByRef))

	err := FilterOutUpdateForCommitter(FailInvalidProposal{}, 3, b)
	require.Error(t, err)
	require.Equal(t, 1, b.Len(), "FailInvalidProposal never removes proposals, it only surfaces the error")
}

func TestFilterOutUpdateForCommitterIgnoresByRef(t *testing.T) {
	b := proposal.NewBundle()
	b.Add(memberInfo(proposal.Proposal{Type: proposal.TypeUpdate, Update: &proposal.Update{}}, 3, proposal.SourceByRef))

	err := FilterOutUpdateForCommitter(IgnoreInvalidByRefProposal{}, 3, b)
	require.NoError(t, err)
	require.Equal(t, 0, b.Len())
}

func TestFilterOutRemovalOfCommitter(t *testing.T) {
	b := proposal.NewBundle()
	b.Add(memberInfo(proposal.Proposal{Type: proposal.TypeRemove, Remove: &proposal.Remove{RemovedIndex: 2}}, 2, proposal.SourceByValue))

	err := FilterOutRemovalOfCommitter(FailInvalidProposal{}, 2, b)
	require.Error(t, err)
}

func TestFilterOutExtraRemovalOrUpdateForSameLeafKeepsLastUpdate(t *testing.T) {
	b := proposal.NewBundle()
	b.Add(memberInfo(proposal.Proposal{Type: proposal.TypeUpdate, Update: &proposal.Update{}}, 5, proposal.SourceByRef))
	b.Add(memberInfo(proposal.Proposal{Type: proposal.TypeUpdate, Update: &proposal.Update{}}, 5, proposal.SourceByRef))

	err := FilterOutExtraRemovalOrUpdateForSameLeaf(IgnoreInvalidByRefProposal{}, b)
	require.NoError(t, err)
	require.Equal(t, 1, b.CountByType(proposal.TypeUpdate))
}

func TestFilterOutInvalidReInitRejectsOlderVersion(t *testing.T) {
	b := proposal.NewBundle()
	b.Add(memberInfo(proposal.Proposal{Type: proposal.TypeReInit, ReInit: &proposal.ReInit{ProtocolVersion: 1}}, 0, proposal.SourceByValue))

	err := FilterOutInvalidReInit(FailInvalidProposal{}, 2, b)
	require.Error(t, err)
}

func TestFilterOutReinitIfOtherProposalsFailsWithAdd(t *testing.T) {
	b := proposal.NewBundle()
	b.Add(memberInfo(proposal.Proposal{Type: proposal.TypeReInit, ReInit: &proposal.ReInit{ProtocolVersion: 1}}, 0, proposal.SourceByValue))
	b.Add(memberInfo(proposal.Proposal{Type: proposal.TypeAdd, Add: &proposal.Add{}}, 0, proposal.SourceByValue))

	err := FilterOutReinitIfOtherProposals(FailInvalidProposal{}, b)
	require.Error(t, err)
}

func TestEnsureProposalsInExternalCommitAreAllowed(t *testing.T) {
	b := proposal.NewBundle()
	b.Add(memberInfo(proposal.Proposal{Type: proposal.TypeExternalInit, ExternalInit: &proposal.ExternalInit{}}, 0, proposal.SourceByValue))
	require.NoError(t, EnsureProposalsInExternalCommitAreAllowed(b))

	b.Add(memberInfo(proposal.Proposal{Type: proposal.TypeUpdate, Update: &proposal.Update{}}, 0, proposal.SourceByValue))
	require.Error(t, EnsureProposalsInExternalCommitAreAllowed(b))
}

func TestEnsureNoProposalByRef(t *testing.T) {
	b := proposal.NewBundle()
	b.Add(memberInfo(proposal.Proposal{Type: proposal.TypeAdd, Add: &proposal.Add{}}, 0, proposal.SourceByRef))
	require.Error(t, EnsureNoProposalByRef(b))
}

func TestEnsureExactlyOneExternalInit(t *testing.T) {
	b := proposal.NewBundle()
	require.Error(t, EnsureExactlyOneExternalInit(b))
	b.Add(memberInfo(proposal.Proposal{Type: proposal.TypeExternalInit, ExternalInit: &proposal.ExternalInit{}}, 0, proposal.SourceByValue))
	require.NoError(t, EnsureExactlyOneExternalInit(b))
}

func TestFilterOutUnsupportedCustomProposals(t *testing.T) {
	b := proposal.NewBundle()
	b.Add(memberInfo(proposal.Proposal{Type: proposal.Type(500), Custom: &proposal.Custom{ProposalType: proposal.Type(500), Data: []byte("x")}}, 0, proposal.SourceByValue))

	err := FilterOutUnsupportedCustomProposals(FailInvalidProposal{}, func(uint16) bool { return false }, b)
	require.Error(t, err)

	err = FilterOutUnsupportedCustomProposals(FailInvalidProposal{}, func(uint16) bool { return true }, b)
	require.NoError(t, err)
}
