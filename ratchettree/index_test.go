package ratchettree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootFourLeaves(t *testing.T) {
	require.Equal(t, NodeIndex(3), root(4))
	require.Equal(t, NodeIndex(0), root(1))
	require.Equal(t, NodeIndex(1), root(2))
	require.Equal(t, NodeIndex(3), root(3))
}

func TestParentChildRoundTrip(t *testing.T) {
	lc := LeafCount(8)
	for leaf := LeafIndex(0); leaf < 8; leaf++ {
		n := leaf.ToNodeIndex()
		for !IsRoot(n, lc) {
			p := Parent(n, lc)
			require.True(t, Left(p) == n || Right(p) == n, "node %d is not a child of its parent %d", n, p)
			n = p
		}
	}
}

func TestSiblingIsInvolution(t *testing.T) {
	lc := LeafCount(8)
	for n := NodeIndex(0); n < NodeIndex(nodeWidth(lc)); n++ {
		if IsRoot(n, lc) {
			continue
		}
		s := Sibling(n, lc)
		require.Equal(t, n, Sibling(s, lc))
	}
}

func TestDirectPathEndsAtRoot(t *testing.T) {
	lc := LeafCount(5)
	path := DirectPath(LeafIndex(2).ToNodeIndex(), lc)
	require.NotEmpty(t, path)
	require.Equal(t, root(lc), path[len(path)-1])
}

func TestCopathParallelsDirectPath(t *testing.T) {
	lc := LeafCount(8)
	leaf := LeafIndex(3).ToNodeIndex()
	require.Equal(t, len(DirectPath(leaf, lc)), len(Copath(leaf, lc)))
}
