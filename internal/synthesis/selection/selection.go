// Package selection implements the outer Boolean/pseudo-Boolean slot
// selection problem (component H): one "exactly one candidate chosen"
// constraint per reference-program step, refined by theory-supplied
// conflict clauses as the CEGAR loop runs.
package selection

import (
	"context"
	"fmt"

	"github.com/ropforge/ropforge/internal/rerr"
	"github.com/ropforge/ropforge/internal/synthesis"
)

// Result is the outcome of one round of slot selection: either a
// candidate SlotAssignments to hand to the theory, or the set of slot
// indices implicated by the outer solver's own unsat core (meaning no
// assignment satisfies the accumulated theory clauses at all).
type Result struct {
	Assignment synthesis.SlotAssignments
	Ok         bool
	Unsat      *rerr.SelectionFailure
}

// InstrLen is implemented by anything the optimization strategy can
// weigh by encoded size — satisfied by *modeling.ModeledBlock.
type InstrLen interface {
	InstrLen() int
}

// Strategy is the outer selection solver's interface: get a candidate
// assignment, and feed back conflict clauses the theory derived against
// a previous assignment. Two implementations are provided: Sat (plain
// satisfiability, with a last-conflict-refutation hint) and
// Optimization (soft-weighted toward shorter gadget chains).
type Strategy interface {
	GetAssignments(ctx context.Context) (Result, error)
	AddTheoryClause(clause synthesis.ConflictClause)
	AddTheoryClauses(clauses []synthesis.ConflictClause)
}

func deriveVarName(slot, choice int) string {
	return fmt.Sprintf("slot_%d_choice_%d", slot, choice)
}
