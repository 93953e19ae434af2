// Package modeling is the bit-precise semantic layer: turning a sequence
// of arch.Instruction into SMT terms over an initial and final machine
// State, with the concat/branch/refines operations the theory needs to
// chain gadgets and check them against a reference computation.
package modeling

import (
	"fmt"

	"github.com/ropforge/ropforge/internal/arch"
	"github.com/ropforge/ropforge/internal/smt"
	"github.com/ropforge/ropforge/internal/varnode"
)

// State is a symbolic snapshot of machine storage: a BitVec term per
// varnode the modeled instructions touched, keyed by its
// (space, offset, size).
type State struct {
	ctx    smt.Context
	spaces varnode.SpaceManager
	values map[varnode.VarNode]smt.BitVec
}

// NewState returns an empty symbolic state bound to ctx. spaces resolves
// a varnode's space to its SpaceInfo so a constant-space read (an
// immediate operand, per the lifter's encoding) can be pinned to its
// literal offset rather than allocated as a free variable; it may be
// nil, in which case every read falls back to the free-variable
// convention below.
func NewState(ctx smt.Context, spaces varnode.SpaceManager) *State {
	return &State{ctx: ctx, spaces: spaces, values: make(map[varnode.VarNode]smt.BitVec)}
}

// ReadVarnode returns the term bound to vn. A constant-space varnode
// (vn.Offset is the literal value, not an address) is always the bit
// vector for that literal; anything else allocates a fresh symbolic
// input the first time it's read — the "free variable at first use"
// convention the original's jingle State follows for unmodeled inputs
// (e.g. a register read before any write in the block).
func (s *State) ReadVarnode(vn varnode.VarNode) smt.BitVec {
	if s.isConstantSpace(vn.Space) {
		return s.ctx.BitVecVal(vn.Offset, uint(vn.Size)*8)
	}
	if bv, ok := s.values[vn]; ok {
		return bv
	}
	bv := s.ctx.BitVecConst(fmt.Sprintf("in_s%d_o%x_%d", vn.Space, vn.Offset, vn.Size), uint(vn.Size)*8)
	s.values[vn] = bv
	return bv
}

func (s *State) isConstantSpace(space int) bool {
	if s.spaces == nil {
		return false
	}
	info, ok := s.spaces.GetSpaceInfo(space)
	return ok && info.Type == varnode.SpaceConstant
}

// WriteVarnode binds vn to value in a derived state, leaving s untouched
// (states are immutable snapshots; ModeledInstruction produces a new one
// per write).
func (s *State) WriteVarnode(vn varnode.VarNode, value smt.BitVec) *State {
	next := &State{ctx: s.ctx, spaces: s.spaces, values: make(map[varnode.VarNode]smt.BitVec, len(s.values)+1)}
	for k, v := range s.values {
		next.values[k] = v
	}
	next.values[vn] = value
	return next
}

// ReadGeneralized reads a direct or indirect varnode out of this state,
// exposing readGeneralized to callers outside this package (constraint
// generators need to express "register holds a pointer to a byte at
// this offset", which is exactly an indirect read).
func (s *State) ReadGeneralized(g varnode.GeneralizedVarNode) smt.BitVec {
	return readGeneralized(s, g)
}

// Eq asserts pointwise equality of every varnode both states have bound,
// used to tie a chain's final symbolic state to the fresh state the
// theory introduces for postcondition checking.
func (s *State) Eq(other *State) smt.Bool {
	var terms []smt.Bool
	seen := make(map[varnode.VarNode]bool)
	for vn := range s.values {
		seen[vn] = true
	}
	for vn := range other.values {
		seen[vn] = true
	}
	for vn := range seen {
		terms = append(terms, s.ctx.Eq(s.ReadVarnode(vn), other.ReadVarnode(vn)))
	}
	if len(terms) == 0 {
		return s.ctx.True()
	}
	return s.ctx.And(terms...)
}

// ModelingContext is anything that can be concatenated into a chain and
// queried for its boundary states — implemented by both a single
// ModeledInstruction and a full ModeledBlock, mirroring jingle's
// ModelingContext trait.
type ModelingContext interface {
	OriginalState() *State
	FinalState() *State
	Address() uint64
}

// ModeledInstruction binds one arch.Instruction's IR ops to SMT terms:
// applying each op in order transforms OriginalState into FinalState.
type ModeledInstruction struct {
	Instr    arch.Instruction
	original *State
	final    *State
}

// ModelInstruction lifts a single instruction's ops into SMT terms
// starting from "in", returning the instruction's post-state.
func ModelInstruction(ctx smt.Context, info arch.ArchInfoProvider, in *State, instr arch.Instruction) (*ModeledInstruction, error) {
	cur := in
	for _, op := range instr.Ops {
		next, err := applyOp(ctx, info, cur, op)
		if err != nil {
			return nil, fmt.Errorf("modeling instruction at 0x%x: %w", instr.Address, err)
		}
		cur = next
	}
	return &ModeledInstruction{Instr: instr, original: in, final: cur}, nil
}

func applyOp(ctx smt.Context, info arch.ArchInfoProvider, in *State, op arch.PcodeOp) (*State, error) {
	switch op.Opcode {
	case arch.OpCopy, arch.OpIntAdd, arch.OpIntSub, arch.OpIntAnd, arch.OpIntOr, arch.OpIntXor, arch.OpLoad:
		if op.Output == nil {
			return in, nil
		}
		val, err := evalInputs(ctx, in, op)
		if err != nil {
			return nil, err
		}
		return writeGeneralized(in, *op.Output, val), nil
	case arch.OpStore:
		if op.Output == nil || len(op.Inputs) == 0 {
			return in, nil
		}
		val := in.ReadVarnode(*op.Inputs[len(op.Inputs)-1].Direct)
		return writeGeneralized(in, *op.Output, val), nil
	default:
		// Branch/call/return/compare ops carry no direct-write semantics
		// modeled here; the theory reasons about their control-flow
		// effect separately via BranchTarget and CanBranchTo.
		return in, nil
	}
}

func evalInputs(ctx smt.Context, in *State, op arch.PcodeOp) (smt.BitVec, error) {
	if len(op.Inputs) == 0 {
		return nil, fmt.Errorf("op %s has no inputs", op.Opcode)
	}
	first := readGeneralized(in, op.Inputs[0])
	switch op.Opcode {
	case arch.OpCopy, arch.OpLoad:
		return first, nil
	case arch.OpIntAdd:
		return ctx.Add(first, readGeneralized(in, op.Inputs[1])), nil
	case arch.OpIntSub:
		return ctx.Sub(first, readGeneralized(in, op.Inputs[1])), nil
	case arch.OpIntAnd:
		return ctx.BvAnd(first, readGeneralized(in, op.Inputs[1])), nil
	case arch.OpIntOr:
		return ctx.BvOr(first, readGeneralized(in, op.Inputs[1])), nil
	case arch.OpIntXor:
		return ctx.BvXor(first, readGeneralized(in, op.Inputs[1])), nil
	default:
		return first, nil
	}
}

func readGeneralized(s *State, g varnode.GeneralizedVarNode) smt.BitVec {
	if g.Direct != nil {
		return s.ReadVarnode(*g.Direct)
	}
	ptr := s.ReadVarnode(g.Indirect.PointerLocation)
	_ = ptr
	return s.ctx.BitVecConst(fmt.Sprintf("mem_%v", g.Indirect), uint(g.Indirect.AccessSizeBytes)*8)
}

func writeGeneralized(s *State, g varnode.GeneralizedVarNode, val smt.BitVec) *State {
	if g.Direct != nil {
		return s.WriteVarnode(*g.Direct, val)
	}
	return s
}

func (m *ModeledInstruction) OriginalState() *State { return m.original }
func (m *ModeledInstruction) FinalState() *State     { return m.final }
func (m *ModeledInstruction) Address() uint64        { return m.Instr.Address }

// ModeledBlock is a contiguous sequence of modeled instructions — the
// unit a candidate gadget is lifted into, matching jingle::ModeledBlock.
type ModeledBlock struct {
	Instructions []*ModeledInstruction
}

// ModelBlock lifts an ordered instruction sequence into a ModeledBlock,
// threading the symbolic state from the first instruction's input
// through the last one's output.
func ModelBlock(ctx smt.Context, info arch.ArchInfoProvider, instrs []arch.Instruction) (*ModeledBlock, error) {
	if len(instrs) == 0 {
		return nil, fmt.Errorf("modeling: empty instruction sequence")
	}
	var modeled []*ModeledInstruction
	cur := NewState(ctx, info)
	for _, instr := range instrs {
		mi, err := ModelInstruction(ctx, info, cur, instr)
		if err != nil {
			return nil, err
		}
		modeled = append(modeled, mi)
		cur = mi.final
	}
	return &ModeledBlock{Instructions: modeled}, nil
}

func (b *ModeledBlock) OriginalState() *State { return b.Instructions[0].original }
func (b *ModeledBlock) FinalState() *State    { return b.Instructions[len(b.Instructions)-1].final }
func (b *ModeledBlock) Address() uint64       { return b.Instructions[0].Instr.Address }

// LastInstruction returns the block's terminating instruction (its
// branch/call/return), used to compute branch targets and syscall
// compatibility.
func (b *ModeledBlock) LastInstruction() arch.Instruction {
	return b.Instructions[len(b.Instructions)-1].Instr
}

// InstrLen returns the block's total encoded byte length, used by the
// optimization selection strategy to weight candidates toward shorter
// gadgets (the Go analogue of the InstrLen trait's instr_len).
func (b *ModeledBlock) InstrLen() int {
	n := 0
	for _, mi := range b.Instructions {
		n += mi.Instr.Length
	}
	return n
}

// Inputs returns the generalized varnodes read by any instruction in the
// block, deduplicated — the operands a pointer-range read invariant must
// hold over, mirroring ModeledBlock::get_inputs.
func (b *ModeledBlock) Inputs() []varnode.GeneralizedVarNode {
	var out []varnode.GeneralizedVarNode
	for _, mi := range b.Instructions {
		for _, op := range mi.Instr.Ops {
			for _, in := range op.Inputs {
				out = appendUnique(out, in)
			}
		}
	}
	return out
}

// Outputs returns the generalized varnodes written by any instruction in
// the block, deduplicated — the operands a pointer-range write invariant
// must hold over, mirroring ModeledBlock::get_outputs.
func (b *ModeledBlock) Outputs() []varnode.GeneralizedVarNode {
	var out []varnode.GeneralizedVarNode
	for _, mi := range b.Instructions {
		for _, op := range mi.Instr.Ops {
			if op.Output != nil {
				out = appendUnique(out, *op.Output)
			}
		}
	}
	return out
}

func appendUnique(list []varnode.GeneralizedVarNode, g varnode.GeneralizedVarNode) []varnode.GeneralizedVarNode {
	for _, existing := range list {
		if existing.Equal(g) {
			return list
		}
	}
	return append(list, g)
}

// AssertConcat ties this block's final state to next's original state:
// every varnode next reads must equal what this block last wrote (or, if
// unwritten here, be the same free input both blocks share), the Go
// analogue of ModeledBlock::assert_concat.
func (b *ModeledBlock) AssertConcat(next ModelingContext) smt.Bool {
	return b.FinalState().Eq(next.OriginalState())
}

// CanBranchTo asserts that this block's control-flow transfer can reach
// target: for a direct branch, a literal equality against the known
// target; for an indirect transfer, an equality between target and the
// symbolic value the terminating instruction computed for its branch
// operand.
func (b *ModeledBlock) CanBranchTo(ctx smt.Context, target uint64) smt.Bool {
	last := b.LastInstruction()
	for _, op := range last.Ops {
		if !op.Opcode.IsBranch() {
			continue
		}
		if op.HasTarget {
			if op.BranchTarget == target {
				return ctx.True()
			}
			return ctx.False()
		}
		if len(op.Inputs) > 0 && op.Inputs[0].Direct != nil {
			actual := b.FinalState().ReadVarnode(*op.Inputs[0].Direct)
			return ctx.Eq(actual, ctx.BitVecVal(target, actual.Size()))
		}
	}
	return ctx.False()
}
