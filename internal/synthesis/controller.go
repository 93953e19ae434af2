package synthesis

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ropforge/ropforge/internal/gadget"
	"github.com/ropforge/ropforge/internal/modeling"
	"github.com/ropforge/ropforge/internal/refprogram"
	"github.com/ropforge/ropforge/internal/rerr"
	"github.com/ropforge/ropforge/internal/smt"
)

// StrategyFactory builds a fresh outer selection strategy over the
// given per-slot candidate counts. No constructor in the tree has this
// type: internal/engine builds selection.Sat or selection.Optimization
// directly and adapts it to Strategy.
type StrategyFactory func(solver smt.Solver, candidateCounts []int) Strategy

// Strategy is the subset of selection.Strategy the controller needs,
// restated here to avoid a dependency cycle between internal/synthesis
// and internal/synthesis/selection (which itself depends on
// internal/synthesis for Decision/ConflictClause/SlotAssignments).
type Strategy interface {
	GetAssignments(ctx context.Context) (StrategyResult, error)
	AddTheoryClauses(clauses []ConflictClause)
}

// StrategyResult mirrors selection.Result without importing that
// package.
type StrategyResult struct {
	Assignment SlotAssignments
	Ok         bool
	UnsatSlots []int
}

// TheoryChecker is the subset of theory.Theory the controller needs.
type TheoryChecker interface {
	CheckAssignment(ctx context.Context, assignment SlotAssignments) (*ConflictClause, error)
	Model() (smt.Model, error)
}

// Single runs the single-chain CEGAR loop (component J): get a
// candidate assignment from the outer strategy, check it against the
// theory, feed conflicts back, and repeat until Sat or Unsat. Grounded
// on AssignmentSynthesis::decide.
type Single struct {
	Candidates *gadget.Candidates
	Gadgets    [][]*modeling.ModeledBlock
	Strategy   Strategy
	Theory     TheoryChecker
	Log        *logrus.Logger
}

// NewSingle builds a Single controller.
func NewSingle(candidates *gadget.Candidates, gadgets [][]*modeling.ModeledBlock, strategy Strategy, th TheoryChecker, log *logrus.Logger) *Single {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Single{Candidates: candidates, Gadgets: gadgets, Strategy: strategy, Theory: th, Log: log}
}

func (s *Single) gadgetsForAssignment(a SlotAssignments) []*modeling.ModeledBlock {
	out := make([]*modeling.ModeledBlock, a.Len())
	for i, c := range a.Choices() {
		out[i] = s.Gadgets[i][c]
	}
	return out
}

// iterate runs exactly one get-assignment/check-theory round.
func (s *Single) iterate(ctx context.Context) (DecisionResult, error) {
	res, err := s.Strategy.GetAssignments(ctx)
	if err != nil {
		return DecisionResult{}, err
	}
	if !res.Ok {
		return DecisionResult{Kind: DecisionUnsat, UnsatSlots: res.UnsatSlots}, nil
	}

	s.Log.WithField("assignment", res.Assignment.String()).Trace("checking theory problem")
	conflict, err := s.Theory.CheckAssignment(ctx, res.Assignment)
	if err != nil {
		if err == rerr.ErrTheoryTimeout {
			s.Log.WithField("assignment", res.Assignment.String()).Warn("theory check timed out")
			c := res.Assignment.AsConflictClause()
			s.Strategy.AddTheoryClauses([]ConflictClause{c})
			return DecisionResult{Kind: DecisionConflicts, Assignment: res.Assignment, Conflicts: []ConflictClause{c}}, nil
		}
		return DecisionResult{}, err
	}
	if conflict != nil {
		s.Log.WithField("conflict", FormatConflict(res.Assignment, *conflict)).Info("assignment has conflicts")
		s.Strategy.AddTheoryClauses([]ConflictClause{*conflict})
		return DecisionResult{Kind: DecisionConflicts, Assignment: res.Assignment, Conflicts: []ConflictClause{*conflict}}, nil
	}

	model, err := s.Theory.Model()
	if err != nil {
		return DecisionResult{}, rerr.ErrModelGeneration
	}
	s.Log.WithField("assignment", res.Assignment.String()).Info("assignment is feasible")
	return DecisionResult{
		Kind:       DecisionFound,
		Assignment: res.Assignment,
		Model:      NewModel(model, s.gadgetsForAssignment(res.Assignment), nil),
	}, nil
}

// Decide loops iterate until it reports a found assignment or an Unsat
// outer-selection result, grounded on AssignmentSynthesis::decide.
func (s *Single) Decide(ctx context.Context) (DecisionResult, error) {
	for {
		res, err := s.iterate(ctx)
		if err != nil {
			return DecisionResult{}, err
		}
		switch res.Kind {
		case DecisionConflicts:
			continue
		case DecisionFound, DecisionUnsat:
			return res, nil
		}
	}
}

// Combined runs Single synthesis over every contiguous partitioning of
// the reference program, trying the fewest-step partitions first, and
// returns the first one that finds a satisfying chain. Component J's
// partitioned mode, grounded on CombinedAssignmentSynthesis::decide.
type Combined struct {
	Program      *refprogram.Program
	BuildSingle  func(ctx context.Context, p *refprogram.Program) (*Single, error)
	Log          *logrus.Logger
}

// NewCombined builds a Combined controller. buildSingle constructs a
// fresh Single (with its own modeled templates, candidates, strategy,
// and theory) for one partitioning of the reference program; it may
// return an error if no candidates exist for some step in that
// partitioning, in which case the partition is skipped rather than
// aborting the whole run.
func NewCombined(program *refprogram.Program, buildSingle func(ctx context.Context, p *refprogram.Program) (*Single, error), log *logrus.Logger) *Combined {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Combined{Program: program, BuildSingle: buildSingle, Log: log}
}

// Decide enumerates every partitioning of Program (shortest first) and
// attempts Single synthesis on each, returning the first feasible
// result found, or the last Unsat result if none succeeded. It returns
// rerr.ErrEmptySpecification when no partitioning produced a result:
// for an empty reference program, or when every partitioning failed to
// build or errored during synthesis.
func (c *Combined) Decide(ctx context.Context) (DecisionResult, error) {
	var partitions []*refprogram.Program
	for p := range c.Program.Partitions() {
		partitions = append(partitions, p)
	}
	sort.SliceStable(partitions, func(i, j int) bool {
		return partitions[i].Len() < partitions[j].Len()
	})

	var last *DecisionResult
	for _, p := range partitions {
		c.Log.WithField("partition", p.String()).Info("attempting synthesis of partition")
		single, err := c.BuildSingle(ctx, p)
		if err != nil {
			c.Log.WithError(err).Warn("failed to find gadgets for partition")
			continue
		}
		res, err := single.Decide(ctx)
		if err != nil {
			c.Log.WithError(err).Error("partition synthesis errored")
			continue
		}
		if res.Kind == DecisionFound {
			return res, nil
		}
		last = &res
	}
	if last == nil {
		return DecisionResult{}, rerr.ErrEmptySpecification
	}
	return *last, nil
}
