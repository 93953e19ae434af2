// Package engine assembles the CEGAR pipeline end to end: it is the
// only package that imports both internal/synthesis and
// internal/synthesis/selection, since those two packages cannot import
// each other (selection depends on synthesis for its Decision/
// ConflictClause/SlotAssignments vocabulary). Engine adapts a
// selection.Strategy into the narrow synthesis.Strategy interface the
// controller programs against, and a theory.Theory into
// synthesis.TheoryChecker.
package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ropforge/ropforge/internal/arch"
	"github.com/ropforge/ropforge/internal/gadget"
	"github.com/ropforge/ropforge/internal/modeling"
	"github.com/ropforge/ropforge/internal/refprogram"
	"github.com/ropforge/ropforge/internal/smt"
	"github.com/ropforge/ropforge/internal/synthesis"
	"github.com/ropforge/ropforge/internal/synthesis/selection"
	"github.com/ropforge/ropforge/internal/synthesis/theory"
)

// Mode selects which outer selection strategy the engine builds.
type Mode int

const (
	// ModeSat uses plain satisfiability selection (selection.Sat).
	ModeSat Mode = iota
	// ModeOptimize biases selection toward shorter gadget chains
	// (selection.Optimization).
	ModeOptimize
)

type strategyAdapter struct {
	inner selection.Strategy
}

func (a strategyAdapter) GetAssignments(ctx context.Context) (synthesis.StrategyResult, error) {
	res, err := a.inner.GetAssignments(ctx)
	if err != nil {
		return synthesis.StrategyResult{}, err
	}
	out := synthesis.StrategyResult{Assignment: res.Assignment, Ok: res.Ok}
	if res.Unsat != nil {
		out.UnsatSlots = res.Unsat.Indices
	}
	return out, nil
}

func (a strategyAdapter) AddTheoryClauses(clauses []synthesis.ConflictClause) {
	a.inner.AddTheoryClauses(clauses)
}

type theoryAdapter struct {
	inner *theory.Theory
}

func (t theoryAdapter) CheckAssignment(ctx context.Context, a synthesis.SlotAssignments) (*synthesis.ConflictClause, error) {
	return t.inner.CheckAssignment(ctx, a)
}

func (t theoryAdapter) Model() (smt.Model, error) {
	return t.inner.Model()
}

// Config bundles everything BuildSingle needs that does not vary per
// partition when running Combined synthesis.
type Config struct {
	ArchInfo          arch.ArchInfoProvider
	Library           *gadget.Library
	Factory           smt.ContextFactory
	Mode              Mode
	MaxCandidatesSlot int
	Preconditions     []synthesis.StateConstraintGenerator
	Postconditions    []synthesis.StateConstraintGenerator
	PointerInvariants []synthesis.TransitionConstraintGenerator
	Log               *logrus.Logger
}

// BuildSingle assembles one Single controller (candidates, theory,
// selection strategy) for one reference program — one partition when
// running Combined, or the whole program for a direct Single run.
func (c *Config) BuildSingle(ctx context.Context, program *refprogram.Program) (*synthesis.Single, error) {
	log := c.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	maxPerSlot := c.MaxCandidatesSlot
	if maxPerSlot <= 0 {
		maxPerSlot = 200
	}

	solver := c.Factory.NewSolver()
	// The selection strategy gets its own solver: Theory.CheckAssignment
	// resets the theory's solver on every check, which would drop the
	// strategy's cardinality constraints and exclusion clauses.
	selSolver := c.Factory.NewSolver()

	// uphold accepts every gadget, so candidates are filtered by output
	// signature and control flow only.
	uphold := func(step arch.Instruction, g gadget.Gadget) (bool, error) { return true, nil }
	rows := gadget.RandomCandidatesForTrace(ctx, c.Factory, c.ArchInfo, c.Library, program.Instructions(), uphold)
	candidates, err := gadget.Builder{RandomSampleSize: maxPerSlot}.Build(rows)
	if err != nil {
		return nil, err
	}

	modeledCandidates, err := candidates.Model(solver, c.ArchInfo)
	if err != nil {
		return nil, err
	}

	var templates []*modeling.ModeledBlock
	for _, step := range program.Steps() {
		mb, err := modeling.ModelBlock(solver, c.ArchInfo, step.Instructions())
		if err != nil {
			return nil, err
		}
		templates = append(templates, mb)
	}

	th := theory.New(solver, c.ArchInfo, templates, modeledCandidates, program.InitialMemory(),
		c.Preconditions, c.Postconditions, c.PointerInvariants)

	counts := make([]int, len(candidates.Slots))
	for i, slot := range candidates.Slots {
		counts[i] = len(slot)
	}

	var strat selection.Strategy
	switch c.Mode {
	case ModeOptimize:
		weighted := make([][]selection.InstrLen, len(modeledCandidates))
		for i, slot := range modeledCandidates {
			row := make([]selection.InstrLen, len(slot))
			for j, mb := range slot {
				row[j] = mb
			}
			weighted[i] = row
		}
		strat = selection.NewOptimization(selSolver, weighted)
	default:
		strat = selection.NewSat(selSolver, counts)
	}

	return synthesis.NewSingle(candidates, modeledCandidates, strategyAdapter{strat}, theoryAdapter{th}, log), nil
}

// RunSingle runs single-chain synthesis directly over program, without
// any partitioning.
func (c *Config) RunSingle(ctx context.Context, program *refprogram.Program) (synthesis.DecisionResult, error) {
	single, err := c.BuildSingle(ctx, program)
	if err != nil {
		return synthesis.DecisionResult{}, err
	}
	return single.Decide(ctx)
}

// RunCombined runs partitioned synthesis: every contiguous grouping of
// program's steps, shortest first, stopping at the first feasible
// chain.
func (c *Config) RunCombined(ctx context.Context, program *refprogram.Program) (synthesis.DecisionResult, error) {
	combined := synthesis.NewCombined(program, c.BuildSingle, c.Log)
	return combined.Decide(ctx)
}
