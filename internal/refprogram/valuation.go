package refprogram

import (
	"github.com/ropforge/ropforge/internal/modeling"
	"github.com/ropforge/ropforge/internal/smt"
	"github.com/ropforge/ropforge/internal/varnode"
)

// Valuation is the set of concrete bytes the reference program's initial
// memory is known to hold: a map from single-byte varnodes to their
// value, the Go analogue of MemoryValuation.
type Valuation struct {
	bytes map[varnode.VarNode]byte
}

// NewValuation builds a Valuation from a byte-per-varnode map.
func NewValuation(bytes map[varnode.VarNode]byte) Valuation {
	return Valuation{bytes: bytes}
}

// Set records one byte of known initial memory.
func (v *Valuation) Set(vn varnode.VarNode, b byte) {
	if v.bytes == nil {
		v.bytes = make(map[varnode.VarNode]byte)
	}
	v.bytes[vn] = b
}

// Bytes returns the underlying map, for iteration by callers computing
// extended constraints.
func (v Valuation) Bytes() map[varnode.VarNode]byte { return v.bytes }

// Constraint asserts that every known initial byte matches the given
// symbolic state's read at that location — the Go analogue of
// MemoryValuation::to_constraint.
func (v Valuation) Constraint(ctx smt.Context, state *modeling.State) (smt.Bool, error) {
	var terms []smt.Bool
	for vn, value := range v.bytes {
		byteVal := state.ReadVarnode(vn)
		terms = append(terms, ctx.Eq(byteVal, ctx.BitVecVal(uint64(value), 8)))
	}
	if len(terms) == 0 {
		return ctx.True(), nil
	}
	return ctx.And(terms...), nil
}
