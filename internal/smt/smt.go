// Package smt defines the narrow interface the rest of the synthesis
// engine programs against: incremental assert/check/unsat-core/model-eval
// over bit-vectors and booleans, plus pseudo-Boolean "exactly one of"
// constraints. Per spec §1, the SMT solver itself is an external
// collaborator — assumed to already exist and expose this surface. The
// only package that imports a concrete solver binding is
// internal/smt/z3solver; everything else here is solver-agnostic.
package smt

import "context"

// Result is the three-valued outcome of a solver check, mirroring
// SatResult (Sat/Unsat/Unknown) from the external solver.
type Result int

const (
	Unknown Result = iota
	Sat
	Unsat
)

func (r Result) String() string {
	switch r {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	default:
		return "unknown"
	}
}

// Bool is an opaque handle to a solver-level boolean term.
type Bool interface {
	// Name returns the term's tracking identity, used to match unsat-core
	// entries back to the ConjunctiveConstraint that introduced them.
	Name() string
}

// BitVec is an opaque handle to a solver-level bit-vector term.
type BitVec interface {
	Size() uint
}

// Model evaluates solved bit-vector terms to concrete values after a Sat
// check.
type Model interface {
	EvalBitVec(bv BitVec) (uint64, bool)
	EvalBool(b Bool) (bool, bool)
}

// Context builds terms: fresh tracked booleans, bit-vector constants, and
// the boolean combinators the theory and selection layers need.
type Context interface {
	FreshBool(prefix string) Bool
	BitVecConst(name string, size uint) BitVec
	BitVecVal(value uint64, size uint) BitVec

	Eq(a, b BitVec) Bool
	// Ule is an unsigned "a <= b" comparison, used by pointer-range
	// invariants to bound a pointer value between a min and max.
	Ule(a, b BitVec) Bool
	And(terms ...Bool) Bool
	Or(terms ...Bool) Bool
	Not(b Bool) Bool
	True() Bool
	False() Bool

	Add(a, b BitVec) BitVec
	Sub(a, b BitVec) BitVec
	Concat(hi, lo BitVec) BitVec
	Extract(hi, lo uint, bv BitVec) BitVec

	// BvAnd, BvOr, and BvXor are the bitwise combinators over bit-vectors,
	// distinct from the boolean And/Or above — used to model INT_AND,
	// INT_OR, and INT_XOR pcode ops precisely rather than as an opaque
	// function of their inputs.
	BvAnd(a, b BitVec) BitVec
	BvOr(a, b BitVec) BitVec
	BvXor(a, b BitVec) BitVec
}

// Solver is one incremental solving session: a push/pop-free sequence of
// tracked assertions, reset between independent checks, matching how
// PcodeTheory.check_assignment reuses a single solver across the CEGAR
// loop's many slot assignments.
type Solver interface {
	Context

	// Reset clears all assertions, keeping the underlying context alive.
	Reset()
	// Assert adds an untracked assertion.
	Assert(b Bool)
	// AssertAndTrack adds an assertion associated with a tracking literal,
	// so it can appear in a subsequent unsat core.
	AssertAndTrack(b Bool, tracker Bool)
	// Check runs satisfiability under ctx's deadline; a solver that
	// natively supports only a blocking check (no incremental timeout)
	// treats ctx cancellation as producing Unknown.
	Check(ctx context.Context) (Result, error)
	// UnsatCore returns the tracked booleans implicated in the last Unsat
	// result.
	UnsatCore() []Bool
	// Model returns the satisfying model of the last Sat result.
	Model() (Model, error)
	// PbEq asserts that exactly k of terms are true — the pseudo-Boolean
	// "exactly one candidate per slot" constraint family from spec §4.9.
	PbEq(terms []Bool, k int)
	// PbEqTracked is PbEq associated with a tracking literal, so a slot's
	// cardinality constraint itself can appear in an unsat core (mirrors
	// assert_and_track(Bool::pb_eq(...), &b) in the selection strategies).
	PbEqTracked(terms []Bool, k int, tracker Bool)
	// AssertSoft adds a weighted soft constraint to an optimizing solver:
	// violating b costs weight toward the objective, rather than making
	// the problem unsatisfiable (mirrors Optimize::assert_soft). A plain
	// satisfiability solver may implement this as a no-op.
	AssertSoft(b Bool, weight int)
	// Close releases solver resources (native memory held by the
	// underlying binding).
	Close()
}

// ContextFactory produces independent solving sessions, one per worker
// goroutine in the parallel pool (spec §4.10: "each thread owns an
// independent solver context").
type ContextFactory interface {
	NewSolver() Solver
}
