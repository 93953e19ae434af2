package selection

import (
	"context"

	"github.com/ropforge/ropforge/internal/rerr"
	"github.com/ropforge/ropforge/internal/smt"
	"github.com/ropforge/ropforge/internal/synthesis"
)

// Optimization is a soft-weighted selection strategy: every candidate's
// "not chosen" literal costs its gadget's encoded instruction length,
// biasing the outer solver toward shorter chains whenever several
// assignments are otherwise equally valid. Unlike Sat, it has no
// last-conflict-refutation hint — the original's OptimizationProblem
// does not carry one either, since re-optimizing from scratch each
// round is the point. Grounded on OptimizationProblem.
type Optimization struct {
	solver     smt.Solver
	variables  [][]smt.Bool
	indexBools []smt.Bool
}

// NewOptimization builds an Optimization strategy. candidates[i][j] is
// the modeled block for slot i's j-th candidate, whose InstrLen weighs
// how strongly the solver is biased against choosing it.
func NewOptimization(solver smt.Solver, candidates [][]InstrLen) *Optimization {
	o := &Optimization{solver: solver, indexBools: make([]smt.Bool, 0, len(candidates))}
	for i, slot := range candidates {
		vars := make([]smt.Bool, len(slot))
		for j, cand := range slot {
			v := solver.FreshBool(deriveVarName(i, j))
			solver.AssertSoft(solver.Not(v), cand.InstrLen())
			vars[j] = v
		}
		o.variables = append(o.variables, vars)

		tracker := solver.FreshBool("slot")
		o.indexBools = append(o.indexBools, tracker)
		solver.PbEqTracked(vars, 1, tracker)
	}
	return o
}

func (o *Optimization) decisionVar(d synthesis.Decision) smt.Bool {
	return o.variables[d.Index][d.Choice]
}

func (o *Optimization) unsatReason(core []smt.Bool) *rerr.SelectionFailure {
	var indices []int
	for i, tracker := range o.indexBools {
		for _, c := range core {
			if c.Name() == tracker.Name() {
				indices = append(indices, i)
				break
			}
		}
	}
	return &rerr.SelectionFailure{Indices: indices}
}

// GetAssignments checks the outer solver for its current optimum and
// rules the returned assignment's exact choices out for next time, the
// same incremental-exclusion pattern Sat uses.
func (o *Optimization) GetAssignments(ctx context.Context) (Result, error) {
	res, err := o.solver.Check(ctx)
	if err != nil {
		return Result{}, err
	}
	switch res {
	case smt.Unsat:
		return Result{Ok: false, Unsat: o.unsatReason(o.solver.UnsatCore())}, nil
	case smt.Sat:
		model, err := o.solver.Model()
		if err != nil {
			return Result{}, rerr.ErrModelGeneration
		}
		assignment, err := synthesis.CreateFromModel(model, o.variables)
		if err != nil {
			return Result{}, err
		}
		var decisions []smt.Bool
		for _, d := range assignment.ToDecisions() {
			decisions = append(decisions, o.decisionVar(d))
		}
		o.solver.Assert(o.solver.Not(o.solver.And(decisions...)))
		return Result{Assignment: assignment, Ok: true}, nil
	default:
		return Result{}, rerr.ErrTheoryTimeout
	}
}

// AddTheoryClause asserts clause's negation so the optimizer never
// offers that combination of choices again.
func (o *Optimization) AddTheoryClause(clause synthesis.ConflictClause) {
	var vars []smt.Bool
	for _, d := range clause.Decisions() {
		vars = append(vars, o.decisionVar(d))
	}
	o.solver.Assert(o.solver.Not(o.solver.And(vars...)))
}

// AddTheoryClauses adds each clause in turn.
func (o *Optimization) AddTheoryClauses(clauses []synthesis.ConflictClause) {
	for _, c := range clauses {
		o.AddTheoryClause(c)
	}
}
