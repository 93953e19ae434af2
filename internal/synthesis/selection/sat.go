package selection

import (
	"context"

	"github.com/ropforge/ropforge/internal/rerr"
	"github.com/ropforge/ropforge/internal/smt"
	"github.com/ropforge/ropforge/internal/synthesis"
)

// Sat is a plain satisfiability selection strategy: every candidate
// gets an equally-weighted decision variable. A last-conflict-
// refutation hint is tracked the way SatProblem does, asserted eagerly
// as an extra clause rather than as a check-assumption (smt.Solver has
// no incremental assumption-check primitive), which keeps the same
// logical effect at the cost of losing the assumption-retraction
// speedup the original gets from check_assumptions. Grounded on
// SatProblem.
type Sat struct {
	solver         smt.Solver
	variables      [][]smt.Bool
	indexBools     []smt.Bool
	lastConflict   *synthesis.ConflictClause
	lastAssignment *synthesis.SlotAssignments
}

// NewSat builds a Sat strategy over candidateCounts, the number of
// candidates available for each slot in order.
func NewSat(solver smt.Solver, candidateCounts []int) *Sat {
	s := &Sat{solver: solver, indexBools: make([]smt.Bool, 0, len(candidateCounts))}
	for i, n := range candidateCounts {
		vars := make([]smt.Bool, n)
		for j := 0; j < n; j++ {
			vars[j] = solver.FreshBool(deriveVarName(i, j))
		}
		s.variables = append(s.variables, vars)

		tracker := solver.FreshBool("slot")
		s.indexBools = append(s.indexBools, tracker)
		solver.PbEqTracked(vars, 1, tracker)
	}
	return s
}

func (s *Sat) decisionVar(d synthesis.Decision) smt.Bool {
	return s.variables[d.Index][d.Choice]
}

// assertLastConflictRefutation rules out both the last conflict's own
// decisions and the decisions the last assignment actually made for
// them, nudging the next search away from repeating recent dead ends —
// the same intent as get_last_conflict_refutation, applied as a
// standing assertion instead of a one-shot assumption.
func (s *Sat) assertLastConflictRefutation() {
	if s.lastConflict == nil {
		return
	}
	var vars []smt.Bool
	for _, d := range s.lastConflict.Decisions() {
		vars = append(vars, s.decisionVar(d))
	}
	if s.lastAssignment != nil {
		for _, d := range s.lastConflict.Decisions() {
			vars = append(vars, s.decisionVar(synthesis.Decision{
				Index: d.Index, Choice: s.lastAssignment.Choice(d.Index),
			}))
		}
	}
	if len(vars) == 0 {
		return
	}
	s.solver.Assert(s.solver.Not(s.solver.Or(vars...)))
}

func (s *Sat) unsatReason(core []smt.Bool) *rerr.SelectionFailure {
	var indices []int
	for i, tracker := range s.indexBools {
		for _, c := range core {
			if c.Name() == tracker.Name() {
				indices = append(indices, i)
				break
			}
		}
	}
	return &rerr.SelectionFailure{Indices: indices}
}

// GetAssignments checks the outer solver, ruling out the last conflict
// refutation first, then asking for a fresh satisfying model.
func (s *Sat) GetAssignments(ctx context.Context) (Result, error) {
	s.assertLastConflictRefutation()

	res, err := s.solver.Check(ctx)
	if err != nil {
		return Result{}, err
	}
	switch res {
	case smt.Unsat:
		return Result{Ok: false, Unsat: s.unsatReason(s.solver.UnsatCore())}, nil
	case smt.Sat:
		model, err := s.solver.Model()
		if err != nil {
			return Result{}, rerr.ErrModelGeneration
		}
		assignment, err := synthesis.CreateFromModel(model, s.variables)
		if err != nil {
			return Result{}, err
		}
		s.lastAssignment = &assignment
		var decisions []smt.Bool
		for _, d := range assignment.ToDecisions() {
			decisions = append(decisions, s.decisionVar(d))
		}
		s.solver.Assert(s.solver.Not(s.solver.And(decisions...)))
		return Result{Assignment: assignment, Ok: true}, nil
	default:
		return Result{}, rerr.ErrTheoryTimeout
	}
}

// AddTheoryClause records clause as the strategy's refutation hint and
// asserts its negation so the next assignment cannot repeat it.
func (s *Sat) AddTheoryClause(clause synthesis.ConflictClause) {
	s.lastConflict = &clause
	var vars []smt.Bool
	for _, d := range clause.Decisions() {
		vars = append(vars, s.decisionVar(d))
	}
	s.solver.Assert(s.solver.Not(s.solver.And(vars...)))
}

// AddTheoryClauses adds each clause in turn.
func (s *Sat) AddTheoryClauses(clauses []synthesis.ConflictClause) {
	for _, c := range clauses {
		s.AddTheoryClause(c)
	}
}
