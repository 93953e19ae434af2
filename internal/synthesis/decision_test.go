package synthesis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ropforge/ropforge/internal/gadget"
	"github.com/ropforge/ropforge/internal/smt"
)

type fakeBool struct{ name string }

func (f fakeBool) Name() string { return f.name }

type fakeModel struct {
	trueVars map[string]bool
}

func (m fakeModel) EvalBitVec(bv smt.BitVec) (uint64, bool) { return 0, false }
func (m fakeModel) EvalBool(b smt.Bool) (bool, bool) {
	v, ok := m.trueVars[b.Name()]
	return v, ok
}

func TestSlotAssignmentsRoundTrip(t *testing.T) {
	s := NewSlotAssignments([]int{2, 0, 1})
	require.Equal(t, 3, s.Len())
	require.Equal(t, 0, s.Choice(1))

	decisions := s.ToDecisions()
	require.Len(t, decisions, 3)
	require.Equal(t, Decision{Index: 2, Choice: 1}, decisions[2])

	require.True(t, s.Equal(NewSlotAssignments([]int{2, 0, 1})))
	require.False(t, s.Equal(NewSlotAssignments([]int{2, 0, 2})))
}

func TestSlotAssignmentsInterpretFromLibrary(t *testing.T) {
	candidates := &gadget.Candidates{Slots: [][]gadget.Gadget{
		{{}, {}},
		{{}, {}, {}},
	}}
	s := NewSlotAssignments([]int{1, 2})
	gadgets := s.InterpretFromLibrary(candidates)
	require.Len(t, gadgets, 2)
}

func TestConflictClauseCombineDedupesAndSorts(t *testing.T) {
	a := ConflictClauseFrom([]Decision{{Index: 2, Choice: 0}, {Index: 0, Choice: 1}})
	a.Precondition = true
	b := ConflictClauseFrom([]Decision{{Index: 0, Choice: 1}, {Index: 1, Choice: 3}})
	b.Postcondition = true

	combined := Combine([]ConflictClause{a, b})
	require.Equal(t, 3, combined.Len())
	for i := 1; i < len(combined.Decisions()); i++ {
		require.LessOrEqual(t, combined.Decisions()[i-1].Index, combined.Decisions()[i].Index)
	}
	require.True(t, combined.Precondition)
	require.True(t, combined.Postcondition)
}

func TestConflictClauseIncludesIndex(t *testing.T) {
	c := ConflictClauseFrom([]Decision{{Index: 3, Choice: 0}})
	require.True(t, c.IncludesIndex(3))
	require.False(t, c.IncludesIndex(4))
}

func TestCreateFromModelReadsChosenCandidate(t *testing.T) {
	variables := [][]smt.Bool{
		{fakeBool{"s0c0"}, fakeBool{"s0c1"}},
		{fakeBool{"s1c0"}, fakeBool{"s1c1"}, fakeBool{"s1c2"}},
	}
	model := fakeModel{trueVars: map[string]bool{"s0c1": true, "s1c2": true}}

	got, err := CreateFromModel(model, variables)
	require.NoError(t, err)
	require.True(t, got.Equal(NewSlotAssignments([]int{1, 2})))
}

func TestCreateFromModelFailsWithNoChosenCandidate(t *testing.T) {
	variables := [][]smt.Bool{{fakeBool{"s0c0"}}}
	model := fakeModel{trueVars: map[string]bool{}}

	_, err := CreateFromModel(model, variables)
	require.Error(t, err)
}
