package theory

import (
	"github.com/ropforge/ropforge/internal/arch"
	"github.com/ropforge/ropforge/internal/gadget"
	"github.com/ropforge/ropforge/internal/modeling"
	"github.com/ropforge/ropforge/internal/refprogram"
	"github.com/ropforge/ropforge/internal/smt"
	"github.com/ropforge/ropforge/internal/synthesis"
)

// Builder accumulates everything needed to construct a Theory: the
// reference program, candidate table, and constraint generators — the
// Go analogue of PcodeTheoryBuilder's fluent with_* API.
type Builder struct {
	ReferenceProgram  *refprogram.Program
	Library           arch.ArchInfoProvider
	Candidates        *gadget.Candidates
	Preconditions     []synthesis.StateConstraintGenerator
	Postconditions    []synthesis.StateConstraintGenerator
	PointerInvariants []synthesis.TransitionConstraintGenerator
	CandidatesPerSlot int
}

// NewBuilder starts a Builder over candidates modeled against library's
// arch metadata.
func NewBuilder(candidates *gadget.Candidates, library arch.ArchInfoProvider) *Builder {
	return &Builder{Candidates: candidates, Library: library, CandidatesPerSlot: 200}
}

func (b *Builder) WithReferenceProgram(p *refprogram.Program) *Builder {
	b.ReferenceProgram = p
	return b
}

func (b *Builder) WithPreconditions(g []synthesis.StateConstraintGenerator) *Builder {
	b.Preconditions = g
	return b
}

func (b *Builder) WithPostconditions(g []synthesis.StateConstraintGenerator) *Builder {
	b.Postconditions = g
	return b
}

func (b *Builder) WithPointerInvariants(g []synthesis.TransitionConstraintGenerator) *Builder {
	b.PointerInvariants = g
	return b
}

func (b *Builder) WithMaxCandidates(n int) *Builder {
	b.CandidatesPerSlot = n
	return b
}

func (b *Builder) modelTemplates(ctx smt.Context) ([]*modeling.ModeledBlock, error) {
	var out []*modeling.ModeledBlock
	for _, step := range b.ReferenceProgram.Steps() {
		mb, err := modeling.ModelBlock(ctx, b.Library, step.Instructions())
		if err != nil {
			return nil, err
		}
		out = append(out, mb)
	}
	return out, nil
}

// Build assembles a Theory bound to solver, modeling the reference
// program's templates and every candidate gadget.
func (b *Builder) Build(solver smt.Solver) (*Theory, error) {
	templates, err := b.modelTemplates(solver)
	if err != nil {
		return nil, err
	}
	candidates, err := b.Candidates.Model(solver, b.Library)
	if err != nil {
		return nil, err
	}
	return New(solver, b.Library, templates, candidates, b.ReferenceProgram.InitialMemory(),
		b.Preconditions, b.Postconditions, b.PointerInvariants), nil
}

// BuildAssignment models the templates and only the selected candidates
// for assignment, producing a one-shot Assignment verifier rather than a
// reusable Theory — the Go analogue of build_assignment (used by the
// one-shot post-hoc soundness check, spec §4.8's PcodeAssignment).
func (b *Builder) BuildAssignment(ctx smt.Context, assignment synthesis.SlotAssignments) (*Assignment, error) {
	templates, err := b.modelTemplates(ctx)
	if err != nil {
		return nil, err
	}
	selected := make([]*modeling.ModeledBlock, assignment.Len())
	for i, c := range assignment.Choices() {
		mb, err := modeling.ModelBlock(ctx, b.Library, b.Candidates.Slots[i][c].Instructions)
		if err != nil {
			return nil, err
		}
		selected[i] = mb
	}
	return NewAssignment(b.ReferenceProgram.InitialMemory(), templates, selected,
		b.Preconditions, b.Postconditions, b.PointerInvariants), nil
}
