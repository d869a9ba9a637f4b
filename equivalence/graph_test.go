package equivalence

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/infogrid/netmesh/common/types"
)

func ids(t *testing.T, locals ...string) []ID {
	t.Helper()
	f := types.NewObjectIDFactory(types.MustFromExternalForm("mem:eq"), nil)
	rst := make([]ID, 0, len(locals))
	for _, l := range locals {
		id, err := f.FromLocal(l)
		require.NoError(t, err)
		rst = append(rst, id)
	}
	return rst
}

func TestAddIdempotent(t *testing.T) {
	x := ids(t, "a", "b", "c")
	g := NewGraph()
	require.True(t, g.Add(x[0], x[1]))
	before := g.Set(x[0])
	require.False(t, g.Add(x[0], x[1]))
	require.False(t, g.Add(x[1], x[0]))
	require.Equal(t, before, g.Set(x[0]))

	require.True(t, g.Add(x[1], x[2]))
	// already connected through b
	require.False(t, g.Add(x[0], x[2]))
	require.Empty(t, g.Links(x[0])[1:])
	require.Equal(t, x, g.Set(x[2]))
}

func TestRemoveNonMember(t *testing.T) {
	x := ids(t, "a", "b", "c")
	g := NewGraph()
	g.Add(x[0], x[1])
	g.Remove(x[2])
	require.Equal(t, x[:2], g.Set(x[0]))
	require.Equal(t, x[2:], g.Set(x[2]))
}

func TestRemoveKeepsOthersTogether(t *testing.T) {
	x := ids(t, "hub", "a", "b", "c")
	g := NewGraph()
	for _, leaf := range x[1:] {
		require.True(t, g.Add(x[0], leaf))
	}
	g.Remove(x[0])
	require.Equal(t, []ID{x[0]}, g.Set(x[0]))
	require.Equal(t, x[1:], g.Set(x[1]))
	// a-b and b-c bridges, not a full mesh
	require.Len(t, g.Links(x[1]), 1)
	require.Len(t, g.Links(x[2]), 2)
}

func TestRemoveWithoutSplitAddsNoBridges(t *testing.T) {
	x := ids(t, "a", "b", "c")
	g := NewGraph()
	g.link(x[0], x[1])
	g.link(x[1], x[0])
	g.link(x[1], x[2])
	g.link(x[2], x[1])
	g.link(x[0], x[2])
	g.link(x[2], x[0])
	g.Remove(x[0])
	require.Len(t, g.Links(x[1]), 1)
	require.Equal(t, x[1:], g.Set(x[2]))
}

func TestUnlink(t *testing.T) {
	x := ids(t, "a", "b", "c")
	g := NewGraph()
	g.Add(x[0], x[1])
	g.Add(x[1], x[2])
	require.False(t, g.Unlink(x[0], x[2]))
	require.True(t, g.Unlink(x[0], x[1]))
	require.False(t, Connected(x[0], x[2], g.Links))
	require.True(t, Connected(x[1], x[2], g.Links))
}

func TestSplitGroups(t *testing.T) {
	x := ids(t, "a", "b", "c", "d")
	g := NewGraph()
	g.Add(x[2], x[3])
	groups := Split([]ID{x[3], x[0], x[2], x[1]}, g.Links)
	require.Equal(t, [][]ID{{x[0]}, {x[1]}, {x[2], x[3]}}, groups)
	require.Equal(t, [][2]ID{{x[0], x[1]}, {x[1], x[2]}}, Bridges(groups))
	require.Empty(t, Bridges(groups[:1]))
}

func TestFindLeftAndRightEquivalents(t *testing.T) {
	x := ids(t, "a", "b", "c", "d")
	left, right := FindLeftAndRightEquivalents(x[1], []ID{x[3], x[1], x[0], x[2]})
	require.Equal(t, x[0], left)
	require.Equal(t, x[2], right)

	for _, perm := range [][]ID{
		{x[0], x[1], x[2], x[3]},
		{x[3], x[2], x[1], x[0]},
		{x[2], x[0], x[3], x[1], x[2]},
	} {
		l, r := FindLeftAndRightEquivalents(x[2], perm)
		require.Equal(t, x[1], l)
		require.Equal(t, x[3], r)
	}

	left, right = FindLeftAndRightEquivalents(x[0], []ID{x[1]})
	require.True(t, left.IsEmpty())
	require.Equal(t, x[1], right)

	left, right = FindLeftAndRightEquivalents(x[3], nil)
	require.True(t, left.IsEmpty())
	require.True(t, right.IsEmpty())
}
