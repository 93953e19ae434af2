package config

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ropforge/ropforge/internal/arch"
	"github.com/ropforge/ropforge/internal/modeling"
	"github.com/ropforge/ropforge/internal/smt"
	"github.com/ropforge/ropforge/internal/synthesis"
	"github.com/ropforge/ropforge/internal/varnode"
)

// ConstraintConfig is the [constraint] table: optional register/memory
// equality constraints on the initial and final machine state, plus an
// optional pointer-range invariant threaded through both.
type ConstraintConfig struct {
	Precondition  *StateEqualityConstraint `toml:"precondition"`
	Postcondition *StateEqualityConstraint `toml:"postcondition"`
	Pointer       *PointerRangeConstraints `toml:"pointer"`
}

// StateEqualityConstraint pins registers and memory to literal values,
// and registers to pointers at known strings, at a program boundary.
type StateEqualityConstraint struct {
	Register map[string]int64          `toml:"register"`
	Pointer  map[string]string         `toml:"pointer"`
	Memory   *MemoryEqualityConstraint `toml:"memory"`
}

// MemoryEqualityConstraint pins one span of an address space to Value,
// zero-extended to the span's full Size (the byte is not repeated).
type MemoryEqualityConstraint struct {
	Space   string `toml:"space"`
	Address uint64 `toml:"address"`
	Size    int    `toml:"size"`
	Value   byte   `toml:"value"`
}

// PointerRangeConstraints bounds the pointers a chain is allowed to
// read through and write through, independently.
type PointerRangeConstraints struct {
	Read  []PointerRange `toml:"read"`
	Write []PointerRange `toml:"write"`
}

// PointerRange is one inclusive [Min, Max] bound a pointer may fall in;
// a pointer satisfies a PointerRangeConstraints list if it falls in any
// one of its ranges.
type PointerRange struct {
	Min uint64 `toml:"min"`
	Max uint64 `toml:"max"`
}

// Generators turns the populated register/memory/pointer maps on c into
// the synthesis.StateConstraintGenerator list for one program boundary
// (precondition or postcondition); ptr supplies the read-range
// invariant a register-to-string pointer constraint should also honor,
// if any.
func (c *StateEqualityConstraint) Generators(archInfo arch.ArchInfoProvider, ptr *PointerRangeConstraints) []synthesis.StateConstraintGenerator {
	var gens []synthesis.StateConstraintGenerator
	for name, value := range c.Register {
		vn, ok := archInfo.Register(name)
		if !ok {
			logrus.WithField("register", name).Warn("config: unrecognized register name")
			continue
		}
		gens = append(gens, genRegisterConstraint(vn, uint64(value)))
	}
	if c.Memory != nil {
		gens = append(gens, genMemoryConstraint(archInfo, *c.Memory))
	}
	for name, value := range c.Pointer {
		vn, ok := archInfo.Register(name)
		if !ok {
			logrus.WithField("register", name).Warn("config: unrecognized register name")
			continue
		}
		gens = append(gens, genRegisterPointerConstraint(vn, value, ptr))
	}
	return gens
}

// genMemoryConstraint asserts that the named space/address/size varnode
// equals value zero-extended to the varnode's full width, the Go
// analogue of gen_memory_constraint.
func genMemoryConstraint(archInfo arch.ArchInfoProvider, m MemoryEqualityConstraint) synthesis.StateConstraintGenerator {
	return func(ctx smt.Context, state *modeling.State, _ uint64) (smt.Bool, error) {
		space := -1
		for _, info := range archInfo.GetAllSpaceInfo() {
			if info.Name == m.Space {
				space = info.Index
				break
			}
		}
		if space < 0 {
			return nil, fmt.Errorf("config: unrecognized address space %q", m.Space)
		}
		vn := varnode.VarNode{Space: space, Offset: m.Address, Size: m.Size}
		data := state.ReadVarnode(vn)
		return ctx.Eq(data, ctx.BitVecVal(uint64(m.Value), data.Size())), nil
	}
}

// genRegisterConstraint asserts that vn holds value, the Go analogue of
// gen_register_constraint.
func genRegisterConstraint(vn varnode.VarNode, value uint64) synthesis.StateConstraintGenerator {
	return func(ctx smt.Context, state *modeling.State, _ uint64) (smt.Bool, error) {
		data := state.ReadVarnode(vn)
		return ctx.Eq(data, ctx.BitVecVal(value, data.Size())), nil
	}
}

// genRegisterPointerConstraint asserts that vn holds a pointer to a
// NUL-free occurrence of value, byte by byte, optionally conjoined with
// the read-range invariant from ptr — the Go analogue of
// gen_register_pointer_constraint. The bytes are read through space
// index 0 (see archCodeSpace), not through the architecture's code-space
// index.
func genRegisterPointerConstraint(vn varnode.VarNode, value string, ptr *PointerRangeConstraints) synthesis.StateConstraintGenerator {
	return func(ctx smt.Context, state *modeling.State, _ uint64) (smt.Bool, error) {
		var terms []smt.Bool
		for i, b := range []byte(value) {
			g := varnode.Ind(varnode.IndirectVarNode{
				PointerLocation: vn,
				PointerSpace:    archCodeSpace(state),
				AccessSizeBytes: 1,
				Offset:          uint64(i),
			})
			actual := state.ReadGeneralized(g)
			terms = append(terms, ctx.Eq(actual, ctx.BitVecVal(uint64(b), actual.Size())))
		}
		constraint := ctx.And(terms...)

		if ptr != nil && len(ptr.Read) > 0 {
			pointerVal := state.ReadVarnode(vn)
			if invariant, ok := pointerRangeBool(ctx, pointerVal, ptr.Read); ok {
				constraint = ctx.And(constraint, invariant)
			}
		}
		return constraint, nil
	}
}

// archCodeSpace returns the space index used for the pointer-to-string
// reads. It always returns 0, whatever the architecture's code-space
// index is; State's space metadata is unexported, so it is not
// consulted here.
func archCodeSpace(_ *modeling.State) int { return 0 }

// pointerRangeBool asserts that a symbolic pointer value falls in the
// union of ranges (inclusive bounds) — the indirect branch of
// gen_pointer_range_state_invariant. Direct varnodes are checked by
// directPointerRangeInvariant instead.
func pointerRangeBool(ctx smt.Context, pointer smt.BitVec, ranges []PointerRange) (smt.Bool, bool) {
	if len(ranges) == 0 {
		return nil, false
	}
	var terms []smt.Bool
	for _, r := range ranges {
		min := ctx.BitVecVal(r.Min, pointer.Size())
		max := ctx.BitVecVal(r.Max, pointer.Size())
		terms = append(terms, ctx.And(ctx.Ule(min, pointer), ctx.Ule(pointer, max)))
	}
	return ctx.Or(terms...), true
}

// directPointerRangeInvariant reports whether a direct varnode vn lies
// entirely within one of ranges, restricted to the default code space —
// the direct-varnode branch of gen_pointer_range_state_invariant, which
// does not need a solver call since a direct varnode's bounds are known
// structurally.
func directPointerRangeInvariant(archInfo arch.ArchInfoProvider, vn varnode.VarNode, ranges []PointerRange) (bool, bool) {
	if vn.Space != archInfo.GetCodeSpaceIndex() {
		return false, false
	}
	for _, r := range ranges {
		if vn.Offset >= r.Min && vn.End() <= r.Max {
			return true, true
		}
	}
	return false, true
}

// TransitionInvariant builds the single TransitionConstraintGenerator
// that applies c's read ranges to a block's inputs and write ranges to
// its outputs, the Go analogue of gen_pointer_range_transition_invariant.
func (c *PointerRangeConstraints) TransitionInvariant(archInfo arch.ArchInfoProvider) synthesis.TransitionConstraintGenerator {
	return func(ctx smt.Context, block *modeling.ModeledBlock) (smt.Bool, bool, error) {
		var terms []smt.Bool
		final := block.FinalState()

		appendFor := func(vns []varnode.GeneralizedVarNode, ranges []PointerRange) {
			if len(ranges) == 0 {
				return
			}
			for _, g := range vns {
				if g.Direct != nil {
					inRange, constrained := directPointerRangeInvariant(archInfo, *g.Direct, ranges)
					if !constrained {
						continue
					}
					if inRange {
						terms = append(terms, ctx.True())
					} else {
						terms = append(terms, ctx.False())
					}
					continue
				}
				ptrVal := final.ReadVarnode(g.Indirect.PointerLocation)
				if b, ok := pointerRangeBool(ctx, ptrVal, ranges); ok {
					terms = append(terms, b)
				}
			}
		}
		appendFor(block.Inputs(), c.Read)
		appendFor(block.Outputs(), c.Write)

		if len(terms) == 0 {
			return nil, false, nil
		}
		return ctx.And(terms...), true, nil
	}
}
