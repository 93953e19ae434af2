package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ropforge/ropforge/internal/rerr"
	"github.com/ropforge/ropforge/internal/synthesis"
	"github.com/ropforge/ropforge/internal/synthesis/selection"
)

// fakeStrategy is a scripted selection.Strategy, letting engine_test
// exercise strategyAdapter's translation without a real outer solver.
type fakeStrategy struct {
	result selection.Result
	err    error
	added  []synthesis.ConflictClause
}

func (f *fakeStrategy) GetAssignments(ctx context.Context) (selection.Result, error) {
	return f.result, f.err
}
func (f *fakeStrategy) AddTheoryClause(clause synthesis.ConflictClause) {
	f.added = append(f.added, clause)
}
func (f *fakeStrategy) AddTheoryClauses(clauses []synthesis.ConflictClause) {
	f.added = append(f.added, clauses...)
}

func TestStrategyAdapterPassesThroughOkAssignment(t *testing.T) {
	assignment := synthesis.NewSlotAssignments([]int{0, 1})
	inner := &fakeStrategy{result: selection.Result{Assignment: assignment, Ok: true}}
	adapter := strategyAdapter{inner: inner}

	res, err := adapter.GetAssignments(context.Background())
	require.NoError(t, err)
	require.True(t, res.Ok)
	require.True(t, res.Assignment.Equal(assignment))
	require.Nil(t, res.UnsatSlots)
}

func TestStrategyAdapterTranslatesUnsatIndices(t *testing.T) {
	inner := &fakeStrategy{result: selection.Result{
		Ok:    false,
		Unsat: &rerr.SelectionFailure{Indices: []int{2, 3}},
	}}
	adapter := strategyAdapter{inner: inner}

	res, err := adapter.GetAssignments(context.Background())
	require.NoError(t, err)
	require.False(t, res.Ok)
	require.Equal(t, []int{2, 3}, res.UnsatSlots)
}

func TestStrategyAdapterPropagatesError(t *testing.T) {
	inner := &fakeStrategy{err: errors.New("boom")}
	adapter := strategyAdapter{inner: inner}

	_, err := adapter.GetAssignments(context.Background())
	require.Error(t, err)
}

func TestStrategyAdapterForwardsTheoryClauses(t *testing.T) {
	inner := &fakeStrategy{}
	adapter := strategyAdapter{inner: inner}

	clauses := []synthesis.ConflictClause{
		synthesis.ConflictClauseFrom([]synthesis.Decision{{Index: 0, Choice: 1}}),
	}
	adapter.AddTheoryClauses(clauses)
	require.Len(t, inner.added, 1)
}
