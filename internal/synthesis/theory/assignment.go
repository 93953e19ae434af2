package theory

import (
	"context"

	"github.com/ropforge/ropforge/internal/arch"
	"github.com/ropforge/ropforge/internal/modeling"
	"github.com/ropforge/ropforge/internal/refprogram"
	"github.com/ropforge/ropforge/internal/rerr"
	"github.com/ropforge/ropforge/internal/smt"
	"github.com/ropforge/ropforge/internal/synthesis"
)

// Assignment is a one-shot, post-hoc verifier over a single fully
// committed gadget chain: it asserts the whole model exactly once and
// reports Sat/Unsat, without any tracked constraints or conflict-clause
// extraction. This is distinct from Theory.CheckAssignment, which is
// re-run per candidate assignment inside the CEGAR loop; Assignment is
// an independent double-check of a finished chain, grounded on
// pcode_assignment.rs's PcodeAssignment::check. The synthesis controller
// does not run it: synthesis.Single returns the theory's own model.
type Assignment struct {
	initialMemory     refprogram.Valuation
	templates         []*modeling.ModeledBlock
	gadgets           []*modeling.ModeledBlock
	preconditions     []synthesis.StateConstraintGenerator
	postconditions    []synthesis.StateConstraintGenerator
	pointerInvariants []synthesis.TransitionConstraintGenerator
}

// NewAssignment builds an Assignment over a chosen gadget chain.
func NewAssignment(
	initialMemory refprogram.Valuation,
	templates []*modeling.ModeledBlock,
	gadgets []*modeling.ModeledBlock,
	preconditions []synthesis.StateConstraintGenerator,
	postconditions []synthesis.StateConstraintGenerator,
	pointerInvariants []synthesis.TransitionConstraintGenerator,
) *Assignment {
	return &Assignment{
		initialMemory: initialMemory, templates: templates, gadgets: gadgets,
		preconditions: preconditions, postconditions: postconditions,
		pointerInvariants: pointerInvariants,
	}
}

// Check asserts the full model once against solver and returns a Model
// on Sat. Unsat or Unknown is always an error here: there is no
// conflict-clause feedback loop to resume from, since this check exists
// only to confirm a chain synthesis has already reported sound.
func (a *Assignment) Check(ctx context.Context, solver smt.Solver, archInfo arch.ArchInfoProvider) (*synthesis.Model, error) {
	solver.Reset()

	if len(a.templates) == 0 {
		return nil, rerr.ErrEmptySpecification
	}

	memConstraint, err := a.initialMemory.Constraint(solver, a.templates[0].OriginalState())
	if err != nil {
		return nil, err
	}
	solver.Assert(memConstraint)

	var specConcat []smt.Bool
	for i := 0; i+1 < len(a.templates); i++ {
		specConcat = append(specConcat, a.templates[i].AssertConcat(a.templates[i+1]))
	}
	if len(specConcat) > 0 {
		solver.Assert(solver.And(specConcat...))
	}

	var gadgetConcat []smt.Bool
	for i := 0; i+1 < len(a.gadgets); i++ {
		gadgetConcat = append(gadgetConcat, a.gadgets[i].AssertConcat(a.gadgets[i+1]))
		solver.Assert(a.gadgets[i].CanBranchTo(solver, a.gadgets[i+1].Address()))
	}
	if len(gadgetConcat) > 0 {
		solver.Assert(solver.And(gadgetConcat...))
	}

	finalState := modeling.NewState(solver, archInfo)
	if len(a.gadgets) > 0 {
		solver.Assert(a.gadgets[len(a.gadgets)-1].FinalState().Eq(finalState))
	}

	for i := 0; i < len(a.templates) && i < len(a.gadgets); i++ {
		sem, err := a.assertCompatibleSemantics(solver, a.templates[i], a.gadgets[i])
		if err != nil {
			return nil, err
		}
		solver.Assert(sem)
	}

	if len(a.gadgets) > 0 {
		pre, err := assertGenerators(solver, a.preconditions, a.gadgets[0].OriginalState(), a.gadgets[0].Address())
		if err != nil {
			return nil, err
		}
		post, err := assertGenerators(solver, a.postconditions, finalState, a.gadgets[len(a.gadgets)-1].Address())
		if err != nil {
			return nil, err
		}
		solver.Assert(pre)
		solver.Assert(post)
	}

	res, err := solver.Check(ctx)
	if err != nil {
		return nil, err
	}
	switch res {
	case smt.Sat:
		model, err := solver.Model()
		if err != nil {
			return nil, err
		}
		return synthesis.NewModel(model, a.gadgets, archInfo), nil
	case smt.Unknown:
		return nil, rerr.ErrTheoryTimeout
	default:
		return nil, rerr.ErrAssignmentUnsound
	}
}

func (a *Assignment) assertCompatibleSemantics(ctx smt.Context, spec, gadget *modeling.ModeledBlock) (smt.Bool, error) {
	terms := []smt.Bool{gadget.FinalState().Eq(spec.FinalState())}
	if branch := spec.CanBranchTo(ctx, gadget.Address()); branch != nil {
		terms = append(terms, branch)
	}
	for _, inv := range a.pointerInvariants {
		b, ok, err := inv(ctx, gadget)
		if err != nil {
			return nil, err
		}
		if ok {
			terms = append(terms, b)
		}
	}
	return ctx.And(terms...), nil
}

func assertGenerators(ctx smt.Context, gens []synthesis.StateConstraintGenerator, state *modeling.State, addr uint64) (smt.Bool, error) {
	var terms []smt.Bool
	for _, gen := range gens {
		b, err := gen(ctx, state, addr)
		if err != nil {
			return nil, err
		}
		terms = append(terms, b)
	}
	if len(terms) == 0 {
		return ctx.True(), nil
	}
	return ctx.And(terms...), nil
}
