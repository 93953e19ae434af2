// Package arch defines the boundary to the external lifter: the
// black-box component that turns machine code bytes into instructions
// with IR ("pcode") operations and arch metadata. Nothing in this package
// disassembles anything itself — concrete lifters (internal/arch/toyarch,
// internal/arch/elflift) implement the Lifter interface.
package arch

import (
	"fmt"

	"github.com/ropforge/ropforge/internal/varnode"
)

// OpCode enumerates the IR operation kinds the engine needs to reason
// about by name: branch classification (for the blacklist and for
// control-flow compatibility checks) and nothing else. Arithmetic/logic
// opcodes beyond what semantic modeling needs are represented by Generic.
type OpCode int

const (
	OpGeneric OpCode = iota
	OpCopy
	OpLoad
	OpStore
	OpBranch
	OpCBranch
	OpBranchInd
	OpCall
	OpCallInd
	OpReturn
	OpSyscall
	OpIntAdd
	OpIntSub
	OpIntAnd
	OpIntOr
	OpIntXor
	OpIntNegate
	OpIntEqual
	OpIntNotEqual
	OpIntLess
	OpIntSLess
	OpIntLeft
	OpIntRight
	OpIntSRight
	OpIntZExt
	OpIntSExt
	OpIntMult
	OpBoolNegate
	OpBoolAnd
	OpBoolOr
	OpPiece
	OpSubpiece
	OpFloat
	OpMultiequal
	OpCast
	OpCpoolref
)

func (o OpCode) String() string {
	names := map[OpCode]string{
		OpGeneric: "GENERIC", OpCopy: "COPY", OpLoad: "LOAD", OpStore: "STORE",
		OpBranch: "BRANCH", OpCBranch: "CBRANCH", OpBranchInd: "BRANCHIND",
		OpCall: "CALL", OpCallInd: "CALLIND", OpReturn: "RETURN", OpSyscall: "SYSCALL",
		OpIntAdd: "INT_ADD", OpIntSub: "INT_SUB", OpIntAnd: "INT_AND", OpIntOr: "INT_OR",
		OpIntXor: "INT_XOR", OpIntNegate: "INT_NEGATE", OpIntEqual: "INT_EQUAL",
		OpIntNotEqual: "INT_NOTEQUAL", OpIntLess: "INT_LESS", OpIntSLess: "INT_SLESS",
		OpIntLeft: "INT_LEFT", OpIntRight: "INT_RIGHT", OpIntSRight: "INT_SRIGHT",
		OpIntZExt: "INT_ZEXT", OpIntSExt: "INT_SEXT", OpIntMult: "INT_MULT",
		OpBoolNegate: "BOOL_NEGATE", OpBoolAnd: "BOOL_AND", OpBoolOr: "BOOL_OR",
		OpPiece: "PIECE", OpSubpiece: "SUBPIECE", OpFloat: "FLOAT_GENERIC",
		OpMultiequal: "MULTIEQUAL", OpCast: "CAST", OpCpoolref: "CPOOLREF",
	}
	if n, ok := names[o]; ok {
		return n
	}
	return fmt.Sprintf("OpCode(%d)", int(o))
}

// IsBranch reports whether this opcode terminates a basic block.
func (o OpCode) IsBranch() bool {
	switch o {
	case OpBranch, OpCBranch, OpBranchInd, OpCall, OpCallInd, OpReturn, OpSyscall:
		return true
	default:
		return false
	}
}

// IsControllableIndirect reports whether this opcode is an indirect
// control-flow transfer whose target an attacker-chosen gadget chain can
// steer (spec §4.4: BRANCHIND / CALLIND / RETURN).
func (o OpCode) IsControllableIndirect() bool {
	switch o {
	case OpBranchInd, OpCallInd, OpReturn:
		return true
	default:
		return false
	}
}

// PcodeOp is one IR operation: an opcode, its input varnodes, and at most
// one output.
type PcodeOp struct {
	Opcode  OpCode
	Inputs  []varnode.GeneralizedVarNode
	Output  *varnode.GeneralizedVarNode
	// BranchTarget holds the statically-known destination for direct
	// branch/call ops; left zero for indirect transfers, whose target is
	// only known once the theory models the instruction symbolically.
	BranchTarget uint64
	HasTarget    bool
}

// OutputVarNode returns the op's single output, if any.
func (op PcodeOp) OutputVarNode() (varnode.GeneralizedVarNode, bool) {
	if op.Output == nil {
		return varnode.GeneralizedVarNode{}, false
	}
	return *op.Output, true
}

// Disassembly is the human-readable rendering of an instruction, kept
// separate from its semantics so printing never depends on having a
// model built.
type Disassembly struct {
	Mnemonic string
	Args     string
}

func (d Disassembly) String() string {
	if d.Args == "" {
		return d.Mnemonic
	}
	return d.Mnemonic + " " + d.Args
}

// Instruction is one decoded machine instruction: its address, encoded
// length, disassembly text, and IR ops.
type Instruction struct {
	Address      uint64
	Length       int
	Disassembly  Disassembly
	Ops          []PcodeOp
}

// TerminatesBasicBlock reports whether any op in this instruction is a
// branch opcode.
func (i Instruction) TerminatesBasicBlock() bool {
	for _, op := range i.Ops {
		if op.Opcode.IsBranch() {
			return true
		}
	}
	return false
}

// HasSyscall reports whether this instruction contains a syscall op.
func (i Instruction) HasSyscall() bool {
	for _, op := range i.Ops {
		if op.Opcode == OpSyscall {
			return true
		}
	}
	return false
}

// OpsEqual reports pointwise op-equality between two instructions —
// same opcodes, same inputs/outputs — ignoring address and disassembly
// text. Used to match a reference syscall against a candidate gadget's
// syscall per spec §4.4.
func (i Instruction) OpsEqual(o Instruction) bool {
	if len(i.Ops) != len(o.Ops) {
		return false
	}
	for idx := range i.Ops {
		a, b := i.Ops[idx], o.Ops[idx]
		if a.Opcode != b.Opcode || len(a.Inputs) != len(b.Inputs) {
			return false
		}
		for j := range a.Inputs {
			if !a.Inputs[j].Equal(b.Inputs[j]) {
				return false
			}
		}
		aOut, aHas := a.OutputVarNode()
		bOut, bHas := b.OutputVarNode()
		if aHas != bHas || (aHas && !aOut.Equal(bOut)) {
			return false
		}
	}
	return true
}

// ArchInfoProvider exposes the register/space metadata the rest of the
// engine needs without naming a concrete lifter type: space descriptors
// plus a name -> varnode register lookup.
type ArchInfoProvider interface {
	varnode.SpaceManager
	Register(name string) (varnode.VarNode, bool)
	Registers() map[string]varnode.VarNode
	LanguageID() string
}

// Segment describes one loadable, executable region of an image.
type Segment struct {
	Base       uint64
	Data       []byte
	Executable bool
}

// Image is the loaded target binary: its executable segments plus
// whatever static bytes the memory valuation needs to read.
type Image interface {
	Segments() []Segment
	ReadBytes(vn varnode.VarNode) ([]byte, bool)
	SymbolAddress(name string) (uint64, bool)
}

// Lifter is the external black-box collaborator (spec §1, "(i)"):
// given bytes at an address, return decoded instructions. Concrete
// lifters additionally expose ArchInfoProvider so the engine can build
// varnodes for named registers.
type Lifter interface {
	ArchInfoProvider
	// ReadUntilBranch decodes up to max instructions starting at addr,
	// stopping early at (and including) the first block-terminating
	// instruction.
	ReadUntilBranch(addr uint64, max int) []Instruction
	// ReadN decodes exactly n instructions starting at addr, regardless
	// of block-terminating behavior (used by gadget carving, which wants
	// the first terminator within a bounded window).
	ReadN(addr uint64, n int) []Instruction
	// ParsePcodeListing parses a raw IR listing (spec §6, RawPcode) into
	// a sequence of single-op "instructions", one per listing line.
	ParsePcodeListing(listing string) ([]Instruction, error)
}
