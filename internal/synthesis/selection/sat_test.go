package selection

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ropforge/ropforge/internal/smt"
	"github.com/ropforge/ropforge/internal/synthesis"
)

// fakeBool is a named solver-level boolean handle, standing in for a real
// z3 term without building one.
type fakeBool struct{ name string }

func (f fakeBool) Name() string { return f.name }

// fakeModel evaluates exactly the booleans named in trueVars to true;
// every other queried boolean is false.
type fakeModel struct {
	trueVars map[string]bool
}

func (m fakeModel) EvalBitVec(bv smt.BitVec) (uint64, bool) { return 0, false }
func (m fakeModel) EvalBool(b smt.Bool) (bool, bool) {
	return m.trueVars[b.Name()], true
}

// fakeSolver is a scripted smt.Solver: Check replays a fixed sequence of
// results, and Model is backed by a caller-supplied valuation. Assertions
// are recorded rather than evaluated, since the Sat strategy under test
// only needs to observe that it asserted the right terms.
type fakeSolver struct {
	counter int

	checkResults []smt.Result
	checkIdx     int
	unsatCore    []smt.Bool
	modelVars    map[string]bool

	asserted []smt.Bool
}

func (s *fakeSolver) FreshBool(prefix string) smt.Bool {
	s.counter++
	return fakeBool{fmt.Sprintf("%s_%d", prefix, s.counter)}
}
func (s *fakeSolver) BitVecConst(name string, size uint) smt.BitVec { return nil }
func (s *fakeSolver) BitVecVal(value uint64, size uint) smt.BitVec  { return nil }
func (s *fakeSolver) Eq(a, b smt.BitVec) smt.Bool                   { return fakeBool{"eq"} }
func (s *fakeSolver) Ule(a, b smt.BitVec) smt.Bool                  { return fakeBool{"ule"} }
func (s *fakeSolver) And(terms ...smt.Bool) smt.Bool                { return fakeBool{"and"} }
func (s *fakeSolver) Or(terms ...smt.Bool) smt.Bool                 { return fakeBool{"or"} }
func (s *fakeSolver) Not(b smt.Bool) smt.Bool                       { return fakeBool{"not_" + b.Name()} }
func (s *fakeSolver) True() smt.Bool                                { return fakeBool{"true"} }
func (s *fakeSolver) False() smt.Bool                               { return fakeBool{"false"} }
func (s *fakeSolver) Add(a, b smt.BitVec) smt.BitVec                { return nil }
func (s *fakeSolver) Sub(a, b smt.BitVec) smt.BitVec                { return nil }
func (s *fakeSolver) BvAnd(a, b smt.BitVec) smt.BitVec              { return nil }
func (s *fakeSolver) BvOr(a, b smt.BitVec) smt.BitVec               { return nil }
func (s *fakeSolver) BvXor(a, b smt.BitVec) smt.BitVec              { return nil }
func (s *fakeSolver) Concat(hi, lo smt.BitVec) smt.BitVec           { return nil }
func (s *fakeSolver) Extract(hi, lo uint, bv smt.BitVec) smt.BitVec { return nil }

func (s *fakeSolver) Reset()                      { s.asserted = nil }
func (s *fakeSolver) Assert(b smt.Bool)           { s.asserted = append(s.asserted, b) }
func (s *fakeSolver) AssertAndTrack(b, t smt.Bool) { s.asserted = append(s.asserted, b) }
func (s *fakeSolver) Check(ctx context.Context) (smt.Result, error) {
	if s.checkIdx >= len(s.checkResults) {
		return smt.Unknown, nil
	}
	r := s.checkResults[s.checkIdx]
	s.checkIdx++
	return r, nil
}
func (s *fakeSolver) UnsatCore() []smt.Bool { return s.unsatCore }
func (s *fakeSolver) Model() (smt.Model, error) {
	return fakeModel{trueVars: s.modelVars}, nil
}
func (s *fakeSolver) PbEq(terms []smt.Bool, k int)                {}
func (s *fakeSolver) PbEqTracked(terms []smt.Bool, k int, t smt.Bool) {}
func (s *fakeSolver) AssertSoft(b smt.Bool, weight int)           {}
func (s *fakeSolver) Close()                                      {}

func TestNewSatAssertsOneCardinalityConstraintPerSlot(t *testing.T) {
	s := &fakeSolver{checkResults: []smt.Result{smt.Sat}, modelVars: map[string]bool{
		"slot_0_choice_1": true,
		"slot_1_choice_0": true,
	}}
	strat := NewSat(s, []int{2, 1})
	require.Len(t, strat.variables, 2)
	require.Len(t, strat.variables[0], 2)
	require.Len(t, strat.variables[1], 1)
}

func TestSatGetAssignmentsReturnsModelOnSat(t *testing.T) {
	s := &fakeSolver{checkResults: []smt.Result{smt.Sat}, modelVars: map[string]bool{
		"slot_0_choice_1_2": true,
		"slot_1_choice_0_4": true,
	}}
	strat := NewSat(s, []int{2, 1})

	res, err := strat.GetAssignments(context.Background())
	require.NoError(t, err)
	require.True(t, res.Ok)
	require.Nil(t, res.Unsat)
	require.True(t, res.Assignment.Equal(synthesis.NewSlotAssignments([]int{1, 0})))
}

func TestSatGetAssignmentsReportsUnsatIndices(t *testing.T) {
	s := &fakeSolver{checkResults: []smt.Result{smt.Unsat}}
	strat := NewSat(s, []int{1, 1})
	// indexBools[0] is the slot-0 cardinality tracker; claim it is in core.
	s.unsatCore = []smt.Bool{strat.indexBools[0]}

	res, err := strat.GetAssignments(context.Background())
	require.NoError(t, err)
	require.False(t, res.Ok)
	require.NotNil(t, res.Unsat)
	require.Equal(t, []int{0}, res.Unsat.Indices)
}

func TestAddTheoryClauseAssertsNegationAndRecordsLastConflict(t *testing.T) {
	s := &fakeSolver{}
	strat := NewSat(s, []int{2})
	before := len(s.asserted)

	clause := synthesis.ConflictClauseFrom([]synthesis.Decision{{Index: 0, Choice: 1}})
	strat.AddTheoryClause(clause)

	require.Greater(t, len(s.asserted), before)
	require.NotNil(t, strat.lastConflict)
	require.Equal(t, clause.Decisions(), strat.lastConflict.Decisions())
}

func TestAddTheoryClausesAddsEach(t *testing.T) {
	s := &fakeSolver{}
	strat := NewSat(s, []int{2, 2})
	clauses := []synthesis.ConflictClause{
		synthesis.ConflictClauseFrom([]synthesis.Decision{{Index: 0, Choice: 0}}),
		synthesis.ConflictClauseFrom([]synthesis.Decision{{Index: 1, Choice: 1}}),
	}
	strat.AddTheoryClauses(clauses)
	require.Equal(t, clauses[1].Decisions(), strat.lastConflict.Decisions(), "the last-added clause must win")
}
