// Package rerr holds the error taxonomy shared across the synthesis engine.
//
// Errors are plain sentinel values (compared with errors.Is) rather than a
// closed enum, since Go has no exhaustive-match requirement to make a sealed
// enum worth its keep. Wrapping uses github.com/pkg/errors so that a
// TheoryTimeout three stack frames deep in a worker goroutine still prints
// a path back to the config or candidate step that triggered it.
package rerr

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEmptySpecification is returned when a reference program has zero
	// steps and there is nothing left to synthesize.
	ErrEmptySpecification = errors.New("empty specification")
	// ErrEmptyAssignment is returned when a slot-assignment vector has no
	// decisions (zero-step chain).
	ErrEmptyAssignment = errors.New("empty assignment")
	// ErrTheoryTimeout is returned when the theory solver reports Unknown.
	ErrTheoryTimeout = errors.New("theory check timed out")
	// ErrModelGeneration is returned when a SAT solver result could not be
	// turned into a concrete model where one was expected to exist.
	ErrModelGeneration = errors.New("model generation failed")
	// ErrModelParsing is returned when a model could not be decoded into a
	// SlotAssignments (e.g. no candidate boolean evaluated true).
	ErrModelParsing = errors.New("model parsing failed")
	// ErrAssignmentUnsound is returned by the one-shot post-hoc verifier
	// when a chain reported Sat during synthesis fails to re-verify.
	ErrAssignmentUnsound = errors.New("assignment failed post-hoc verification")
)

// UnsimulatedOperation reports that no candidate gadget exists for the
// specification step at Index.
type UnsimulatedOperation struct {
	Index int
}

func (e *UnsimulatedOperation) Error() string {
	return fmt.Sprintf("no simulated candidate for specification step %d", e.Index)
}

// SelectionFailure reports that the outer selection problem proved UNSAT,
// identifying the step indices implicated by the unsat core.
type SelectionFailure struct {
	Indices []int
}

func (e *SelectionFailure) Error() string {
	return fmt.Sprintf("no satisfying assignment; infeasible steps %v", e.Indices)
}

// IllegalOperation reports a blacklisted opcode found in a reference
// program that the config otherwise asked us to accept.
type IllegalOperation struct {
	Opcode string
}

func (e *IllegalOperation) Error() string {
	return "illegal pcode operation in reference program: " + e.Opcode
}
