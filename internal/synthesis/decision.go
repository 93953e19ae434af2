// Package synthesis is the top-level controller (component J) and the
// shared decision/assignment vocabulary (component K) that the theory,
// selection, and pool packages all build on.
package synthesis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ropforge/ropforge/internal/gadget"
	"github.com/ropforge/ropforge/internal/modeling"
	"github.com/ropforge/ropforge/internal/rerr"
	"github.com/ropforge/ropforge/internal/smt"
)

// Decision names one slot's candidate choice: reference-step index plus
// the chosen candidate's position in that slot's candidate list.
type Decision struct {
	Index  int
	Choice int
}

// StateConstraintGenerator produces a boolean asserting some property of
// a symbolic State at a given address — the shape of every precondition
// and postcondition.
type StateConstraintGenerator func(ctx smt.Context, state *modeling.State, addr uint64) (smt.Bool, error)

// TransitionConstraintGenerator produces an optional boolean over a
// modeled block's transition (e.g. a pointer-range invariant on every
// address it touches). A nil result means "this invariant does not
// apply to this block."
type TransitionConstraintGenerator func(ctx smt.Context, block *modeling.ModeledBlock) (smt.Bool, bool, error)

// SlotAssignments is one candidate-selection vector: for each slot, the
// index of the chosen candidate gadget.
type SlotAssignments struct {
	choices []int
}

// NewSlotAssignments wraps a choice vector.
func NewSlotAssignments(choices []int) SlotAssignments {
	return SlotAssignments{choices: append([]int(nil), choices...)}
}

func (s SlotAssignments) Choice(idx int) int   { return s.choices[idx] }
func (s SlotAssignments) Choices() []int       { return s.choices }
func (s SlotAssignments) Len() int             { return len(s.choices) }

// Equal reports elementwise equality.
func (s SlotAssignments) Equal(o SlotAssignments) bool {
	if len(s.choices) != len(o.choices) {
		return false
	}
	for i := range s.choices {
		if s.choices[i] != o.choices[i] {
			return false
		}
	}
	return true
}

// ToDecisions expands the assignment into one Decision per slot.
func (s SlotAssignments) ToDecisions() []Decision {
	out := make([]Decision, len(s.choices))
	for i, c := range s.choices {
		out[i] = Decision{Index: i, Choice: c}
	}
	return out
}

// AsConflictClause treats the whole assignment as a single blanket
// conflict — used when a theory check times out and the controller must
// still rule something out to make progress.
func (s SlotAssignments) AsConflictClause() ConflictClause {
	return ConflictClauseFrom(s.ToDecisions())
}

// CreateFromModel reads one boolean per (slot, candidate) pair out of a
// solved model and reconstructs which candidate each slot chose — the Go
// analogue of SlotAssignments::create_from_model. variables[i][j] is the
// tracked boolean for slot i choosing candidate j.
func CreateFromModel(model smt.Model, variables [][]smt.Bool) (SlotAssignments, error) {
	choices := make([]int, len(variables))
	for i, slotVars := range variables {
		found := -1
		for j, v := range slotVars {
			if val, ok := model.EvalBool(v); ok && val {
				found = j
				break
			}
		}
		if found < 0 {
			return SlotAssignments{}, fmt.Errorf("%w: slot %d has no chosen candidate", rerr.ErrModelParsing, i)
		}
		choices[i] = found
	}
	return SlotAssignments{choices: choices}, nil
}

// InterpretFromLibrary resolves the assignment's choices back into
// concrete gadgets.
func (s SlotAssignments) InterpretFromLibrary(candidates *gadget.Candidates) []gadget.Gadget {
	out := make([]gadget.Gadget, len(s.choices))
	for i, c := range s.choices {
		out[i] = candidates.Slots[i][c]
	}
	return out
}

func (s SlotAssignments) String() string {
	tokens := make([]string, len(s.choices))
	for i, c := range s.choices {
		tokens[i] = fmt.Sprintf("%04d", c)
	}
	return "[" + strings.Join(tokens, ", ") + "]"
}

// ConflictClause is a minimal set of decisions the theory has proven
// jointly infeasible, tagged with whether it implicates the pre/postcondition
// boundary rather than any particular slot.
type ConflictClause struct {
	decisions     []Decision
	Precondition  bool
	Postcondition bool
}

// ConflictClauseFrom builds a clause from an explicit decision set.
func ConflictClauseFrom(decisions []Decision) ConflictClause {
	cp := append([]Decision(nil), decisions...)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Index < cp[j].Index })
	return ConflictClause{decisions: cp}
}

func (c ConflictClause) Decisions() []Decision { return c.decisions }
func (c ConflictClause) Len() int              { return len(c.decisions) }

// IncludesIndex reports whether the clause implicates slot idx.
func (c ConflictClause) IncludesIndex(idx int) bool {
	for _, d := range c.decisions {
		if d.Index == idx {
			return true
		}
	}
	return false
}

// Combine merges several clauses' decisions into one deduplicated
// clause, carrying forward precondition/postcondition flags if any
// input clause set them.
func Combine(clauses []ConflictClause) ConflictClause {
	seen := make(map[Decision]bool)
	var out ConflictClause
	for _, c := range clauses {
		for _, d := range c.decisions {
			if !seen[d] {
				seen[d] = true
				out.decisions = append(out.decisions, d)
			}
		}
		out.Precondition = out.Precondition || c.Precondition
		out.Postcondition = out.Postcondition || c.Postcondition
	}
	sort.Slice(out.decisions, func(i, j int) bool { return out.decisions[i].Index < out.decisions[j].Index })
	return out
}

// DecisionResult is the outcome of one CEGAR iteration: either the outer
// selection problem found an assignment that the theory then rejected
// (with conflict clauses fed back), a fully satisfying assignment, or a
// proof that no assignment exists at all.
type DecisionResult struct {
	Kind        DecisionKind
	Assignment  SlotAssignments
	Conflicts   []ConflictClause
	Model       *Model
	UnsatSlots  []int
}

type DecisionKind int

const (
	DecisionConflicts DecisionKind = iota
	DecisionFound
	DecisionUnsat
)
