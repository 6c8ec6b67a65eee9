package proposal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func memberInfo(t Type, p Proposal) Info {
	return Info{Proposal: p, Sender: Sender{Kind: SenderMember, Index: 0}, Source: SourceByValue}
}

func TestBundleByTypeAndCount(t *testing.T) {
	b := NewBundle()
	b.Add(memberInfo(TypeAdd, Proposal{Type: TypeAdd, Add: &Add{}}))
	b.Add(memberInfo(TypeRemove, Proposal{Type: TypeRemove, Remove: &Remove{RemovedIndex: 1}}))
	b.Add(memberInfo(TypeRemove, Proposal{Type: TypeRemove, Remove: &Remove{RemovedIndex: 2}}))

	require.Equal(t, 3, b.Len())
	require.Equal(t, 2, b.CountByType(TypeRemove))
	require.Len(t, b.ByType(TypeAdd), 1)
}

func TestRetainByTypeDropsOnlyMatchingType(t *testing.T) {
	b := NewBundle()
	b.Add(memberInfo(TypeAdd, Proposal{Type: TypeAdd, Add: &Add{}}))
	b.Add(memberInfo(TypeRemove, Proposal{Type: TypeRemove, Remove: &Remove{RemovedIndex: 1}}))
	b.Add(memberInfo(TypeRemove, Proposal{Type: TypeRemove, Remove: &Remove{RemovedIndex: 2}}))

	b.RetainByType(TypeRemove, func(i Info) bool { return i.Proposal.Remove.RemovedIndex != 1 })

	require.Equal(t, 2, b.Len())
	require.Equal(t, 1, b.CountByType(TypeRemove))
	require.Equal(t, uint32(2), b.ByType(TypeRemove)[0].Proposal.Remove.RemovedIndex)
}

func TestGroupContextExtensionsClear(t *testing.T) {
	b := NewBundle()
	b.Add(memberInfo(TypeGroupContextExtensions, Proposal{Type: TypeGroupContextExtensions, GroupContextExtensions: &GroupContextExtensions{}}))

	_, ok := b.GroupContextExtensionsProposal()
	require.True(t, ok)

	b.ClearGroupContextExtensions()
	_, ok = b.GroupContextExtensionsProposal()
	require.False(t, ok)
}

func TestCustomProposalTypesExcludesDefaults(t *testing.T) {
	b := NewBundle()
	b.Add(memberInfo(TypeAdd, Proposal{Type: TypeAdd, Add: &Add{}}))
	b.Add(memberInfo(Type(500), Proposal{Type: Type(500), Custom: &Custom{ProposalType: Type(500), Data: []byte("x")}}))

	require.Equal(t, []Type{Type(500)}, b.CustomProposalTypes())
}
