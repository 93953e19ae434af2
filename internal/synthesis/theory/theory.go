// Package theory implements the bit-precise CEGAR core (components F/G):
// given a slot assignment, assemble the combined SMT model for the whole
// candidate chain plus the reference computation, check it, and on
// Unsat extract minimal conflict clauses from the solver's unsat core.
package theory

import (
	"context"
	"fmt"

	"github.com/ropforge/ropforge/internal/arch"
	"github.com/ropforge/ropforge/internal/modeling"
	"github.com/ropforge/ropforge/internal/refprogram"
	"github.com/ropforge/ropforge/internal/rerr"
	"github.com/ropforge/ropforge/internal/smt"
	"github.com/ropforge/ropforge/internal/synthesis"
)

// stage classifies a tracked assertion by what it represents, driving
// the conflict-clause blame policy: prefer Semantics/Branch-implicated
// decisions over generic consistency/pre/postcondition ones when both
// appear in the same unsat core.
type stage int

const (
	stageCombinedSemantics stage = iota
	stageConsistency
	stageBranch
	stagePrecondition
	stagePostcondition
)

type trackedConstraint struct {
	decisions []synthesis.Decision
	tracker   smt.Bool
	stage     stage
}

func (t trackedConstraint) conflictClause() synthesis.ConflictClause {
	c := synthesis.ConflictClauseFrom(t.decisions)
	c.Precondition = t.stage == stagePrecondition
	c.Postcondition = t.stage == stagePostcondition
	return c
}

// genConflictClauses reduces a set of implicated tracked constraints
// into a single clause: if any Semantics/Branch constraint is
// implicated, blame only those (they pinpoint an actual gadget
// incompatibility); otherwise combine everything implicated, matching
// gen_conflict_clauses's "prefer semantics-stage clauses" policy.
func genConflictClauses(implicated []trackedConstraint) (synthesis.ConflictClause, bool) {
	if len(implicated) == 0 {
		return synthesis.ConflictClause{}, false
	}
	var all, semantic []synthesis.ConflictClause
	for _, t := range implicated {
		all = append(all, t.conflictClause())
		if t.stage == stageCombinedSemantics || t.stage == stageBranch {
			semantic = append(semantic, t.conflictClause())
		}
	}
	if len(semantic) > 0 {
		return synthesis.Combine(semantic), true
	}
	return synthesis.Combine(all), true
}

// Theory holds everything check-assignment needs to re-derive the full
// SMT model for any slot assignment: the reference program's modeled
// steps, per-slot modeled candidates, initial memory, and constraint
// generators. One Theory is built once per worker and reused (via
// Solver.Reset) across every assignment that worker evaluates.
type Theory struct {
	solver               smt.Solver
	archInfo             arch.ArchInfoProvider
	templates            []*modeling.ModeledBlock
	gadgetCandidates     [][]*modeling.ModeledBlock
	initialMemory        refprogram.Valuation
	preconditions        []synthesis.StateConstraintGenerator
	postconditions       []synthesis.StateConstraintGenerator
	pointerInvariants    []synthesis.TransitionConstraintGenerator
}

// New builds a Theory bound to solver. archInfo resolves address-space
// metadata (e.g. which varnode space is the constant space) for any
// fresh state the theory allocates outside the modeled templates and
// candidates themselves, such as the chain's final symbolic state.
func New(
	solver smt.Solver,
	archInfo arch.ArchInfoProvider,
	templates []*modeling.ModeledBlock,
	gadgetCandidates [][]*modeling.ModeledBlock,
	initialMemory refprogram.Valuation,
	preconditions []synthesis.StateConstraintGenerator,
	postconditions []synthesis.StateConstraintGenerator,
	pointerInvariants []synthesis.TransitionConstraintGenerator,
) *Theory {
	return &Theory{
		solver: solver, archInfo: archInfo, templates: templates, gadgetCandidates: gadgetCandidates,
		initialMemory: initialMemory, preconditions: preconditions,
		postconditions: postconditions, pointerInvariants: pointerInvariants,
	}
}

// CheckAssignment rebuilds the whole SMT model for assignment and checks
// it: Sat means the chain is a sound refinement (nil, nil); Unsat yields
// a minimized conflict clause; any other failure (including a deadline
// timeout) surfaces as an error, with Unknown mapped to
// rerr.ErrTheoryTimeout for the controller to treat as "blame the whole
// assignment and move on" per spec §4.8.
func (t *Theory) CheckAssignment(ctx context.Context, assignment synthesis.SlotAssignments) (*synthesis.ConflictClause, error) {
	t.solver.Reset()

	gadgets := make([]*modeling.ModeledBlock, len(assignment.Choices()))
	for i, c := range assignment.Choices() {
		gadgets[i] = t.gadgetCandidates[i][c]
	}

	var tracked []trackedConstraint

	memConstraint, err := t.initialMemory.Constraint(t.solver, t.templates[0].OriginalState())
	if err != nil {
		return nil, fmt.Errorf("theory: initial memory constraint: %w", err)
	}
	t.solver.Assert(memConstraint)

	var specConcat []smt.Bool
	for i := 0; i+1 < len(t.templates); i++ {
		specConcat = append(specConcat, t.templates[i].AssertConcat(t.templates[i+1]))
	}
	if len(specConcat) > 0 {
		t.solver.Assert(t.solver.And(specConcat...))
	}

	for i := 0; i+1 < len(gadgets); i++ {
		branch := t.solver.FreshBool("b")
		concat := t.solver.FreshBool("m")
		t.solver.AssertAndTrack(gadgets[i].AssertConcat(gadgets[i+1]), concat)
		t.solver.AssertAndTrack(gadgets[i].CanBranchTo(t.solver, gadgets[i+1].Address()), branch)
		d := []synthesis.Decision{{Index: i, Choice: assignment.Choice(i)}}
		tracked = append(tracked,
			trackedConstraint{decisions: d, tracker: branch, stage: stageBranch},
			trackedConstraint{decisions: d, tracker: concat, stage: stageConsistency},
		)
	}

	finalState := modeling.NewState(t.solver, t.archInfo)
	if len(gadgets) > 0 {
		last := len(gadgets) - 1
		concat := t.solver.FreshBool("m")
		t.solver.AssertAndTrack(gadgets[last].FinalState().Eq(finalState), concat)
		tracked = append(tracked, trackedConstraint{
			decisions: []synthesis.Decision{{Index: last, Choice: assignment.Choice(last)}},
			tracker:   concat, stage: stageConsistency,
		})
	}

	for i := 0; i < len(t.templates) && i < len(gadgets); i++ {
		sem := t.solver.FreshBool("c")
		b, err := t.assertCompatibleSemantics(t.templates[i], gadgets[i])
		if err != nil {
			return nil, err
		}
		t.solver.AssertAndTrack(b, sem)
		tracked = append(tracked, trackedConstraint{
			decisions: []synthesis.Decision{{Index: i, Choice: assignment.Choice(i)}},
			tracker:   sem, stage: stageCombinedSemantics,
		})
	}

	if len(gadgets) > 0 {
		firstAddr := gadgets[0].Address()
		lastAddr := gadgets[len(gadgets)-1].Address()
		pre, err := t.assertStateConstraints(t.preconditions, gadgets[0].OriginalState(), firstAddr)
		if err != nil {
			return nil, err
		}
		post, err := t.assertStateConstraints(t.postconditions, finalState, lastAddr)
		if err != nil {
			return nil, err
		}
		preBool := t.solver.FreshBool("pre")
		postBool := t.solver.FreshBool("post")
		t.solver.AssertAndTrack(pre, preBool)
		t.solver.AssertAndTrack(post, postBool)
		tracked = append(tracked,
			trackedConstraint{tracker: preBool, stage: stagePrecondition},
			trackedConstraint{tracker: postBool, stage: stagePostcondition},
		)
	}

	res, err := t.solver.Check(ctx)
	if err != nil {
		return nil, err
	}
	switch res {
	case smt.Sat:
		return nil, nil
	case smt.Unknown:
		return nil, rerr.ErrTheoryTimeout
	default:
		core := t.solver.UnsatCore()
		var implicated []trackedConstraint
		for _, b := range core {
			for _, tc := range tracked {
				if tc.tracker.Name() == b.Name() {
					implicated = append(implicated, tc)
					break
				}
			}
		}
		clause, ok := genConflictClauses(implicated)
		if !ok {
			clause = assignment.AsConflictClause()
		}
		return &clause, nil
	}
}

func (t *Theory) assertCompatibleSemantics(spec, gadget *modeling.ModeledBlock) (smt.Bool, error) {
	var terms []smt.Bool
	terms = append(terms, gadget.FinalState().Eq(spec.FinalState()))
	if branch := spec.CanBranchTo(t.solver, gadget.Address()); branch != nil {
		terms = append(terms, branch)
	}
	for _, inv := range t.pointerInvariants {
		b, ok, err := inv(t.solver, gadget)
		if err != nil {
			return nil, err
		}
		if ok {
			terms = append(terms, b)
		}
	}
	return t.solver.And(terms...), nil
}

func (t *Theory) assertStateConstraints(gens []synthesis.StateConstraintGenerator, state *modeling.State, addr uint64) (smt.Bool, error) {
	var terms []smt.Bool
	for _, gen := range gens {
		b, err := gen(t.solver, state, addr)
		if err != nil {
			return nil, err
		}
		terms = append(terms, b)
	}
	if len(terms) == 0 {
		return t.solver.True(), nil
	}
	return t.solver.And(terms...), nil
}

// Model returns the solver's last satisfying model, for use once
// CheckAssignment has reported Sat.
func (t *Theory) Model() (smt.Model, error) {
	return t.solver.Model()
}
