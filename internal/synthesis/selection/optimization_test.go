package selection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ropforge/ropforge/internal/smt"
	"github.com/ropforge/ropforge/internal/synthesis"
)

type fakeInstrLen struct{ length int }

func (f fakeInstrLen) InstrLen() int { return f.length }

func TestNewOptimizationWeighsEveryCandidate(t *testing.T) {
	s := &fakeSolver{checkResults: []smt.Result{smt.Sat}, modelVars: map[string]bool{
		"slot_0_choice_0": true,
	}}
	candidates := [][]InstrLen{
		{fakeInstrLen{4}, fakeInstrLen{8}},
	}
	opt := NewOptimization(s, candidates)
	require.Len(t, opt.variables, 1)
	require.Len(t, opt.variables[0], 2)
}

func TestOptimizationGetAssignmentsReturnsModelOnSat(t *testing.T) {
	s := &fakeSolver{checkResults: []smt.Result{smt.Sat}, modelVars: map[string]bool{
		"slot_0_choice_1_2": true,
	}}
	candidates := [][]InstrLen{
		{fakeInstrLen{4}, fakeInstrLen{2}},
	}
	opt := NewOptimization(s, candidates)

	res, err := opt.GetAssignments(context.Background())
	require.NoError(t, err)
	require.True(t, res.Ok)
	require.True(t, res.Assignment.Equal(synthesis.NewSlotAssignments([]int{1})))
}

func TestOptimizationGetAssignmentsReportsUnsatIndices(t *testing.T) {
	s := &fakeSolver{checkResults: []smt.Result{smt.Unsat}}
	candidates := [][]InstrLen{{fakeInstrLen{1}}, {fakeInstrLen{1}}}
	opt := NewOptimization(s, candidates)
	s.unsatCore = []smt.Bool{opt.indexBools[1]}

	res, err := opt.GetAssignments(context.Background())
	require.NoError(t, err)
	require.False(t, res.Ok)
	require.Equal(t, []int{1}, res.Unsat.Indices)
}

func TestOptimizationAddTheoryClauseAssertsNegation(t *testing.T) {
	s := &fakeSolver{}
	candidates := [][]InstrLen{{fakeInstrLen{1}, fakeInstrLen{2}}}
	opt := NewOptimization(s, candidates)
	before := len(s.asserted)

	opt.AddTheoryClause(synthesis.ConflictClauseFrom([]synthesis.Decision{{Index: 0, Choice: 1}}))
	require.Greater(t, len(s.asserted), before)
}
