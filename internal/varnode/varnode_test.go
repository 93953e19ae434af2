package varnode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarNodeCovers(t *testing.T) {
	outer := VarNode{Space: 1, Offset: 0, Size: 8}
	inner := VarNode{Space: 1, Offset: 2, Size: 4}
	require.True(t, outer.Covers(inner))
	require.False(t, inner.Covers(outer))

	otherSpace := VarNode{Space: 2, Offset: 0, Size: 8}
	require.False(t, otherSpace.Covers(inner), "a different space must never cover")
}

func TestIndirectVarNodeEqualityUsesOffset(t *testing.T) {
	ptr := VarNode{Space: 1, Offset: 0x10, Size: 8}
	a := Ind(IndirectVarNode{PointerLocation: ptr, PointerSpace: 2, AccessSizeBytes: 1, Offset: 0})
	b := Ind(IndirectVarNode{PointerLocation: ptr, PointerSpace: 2, AccessSizeBytes: 1, Offset: 1})

	require.False(t, a.Equal(b), "indirect varnodes at different byte offsets must not be equal")
	require.True(t, a.Equal(a), "an indirect varnode must equal itself")
}

func TestCoversSetDirectAndIndirect(t *testing.T) {
	ptr := VarNode{Space: 1, Offset: 0, Size: 8}
	self := []GeneralizedVarNode{
		Dir(VarNode{Space: 0, Offset: 0, Size: 8}),
		Ind(IndirectVarNode{PointerLocation: ptr, PointerSpace: 1, AccessSizeBytes: 4}),
	}
	others := []GeneralizedVarNode{
		Dir(VarNode{Space: 0, Offset: 2, Size: 4}),
		Ind(IndirectVarNode{PointerLocation: ptr, PointerSpace: 1, AccessSizeBytes: 2}),
	}
	require.True(t, CoversSet(self, others))

	tooWide := []GeneralizedVarNode{
		Ind(IndirectVarNode{PointerLocation: ptr, PointerSpace: 1, AccessSizeBytes: 8}),
	}
	require.False(t, CoversSet(self, tooWide), "a wider indirect access must not be covered by a narrower one")
}
