// Package toyarch is a small, fully-Go reference lifter for a toy
// RISC-style 16-bit encoding. It is the instruction decoder behind
// internal/arch/elflift and the ropforge command, and the arch used by
// the unit tests.
//
// Instruction format, SuperH-inspired (register-register and
// register-immediate, 16-bit fixed width):
//
//	[15:12] opcode
//	[11:8]  destination register
//	[7:4]   source register 1 (or unused)
//	[3:0]   source register 2, or low nibble of an 8-bit immediate
package toyarch

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/ropforge/ropforge/internal/arch"
	"github.com/ropforge/ropforge/internal/varnode"
)

const (
	opADD  = 0x0 // ADD Rm, Rn  -> Rn = Rn + Rm
	opSUB  = 0x1 // SUB Rm, Rn  -> Rn = Rn - Rm
	opADDI = 0x2 // ADDI #imm, Rn -> Rn = Rn + imm
	opCMP  = 0x3 // CMP Rm, Rn  -> flags = Rn - Rm
	opAND  = 0x4
	opOR   = 0x5
	opXOR  = 0x6
	opMOVL = 0xC // MOV.L @Rm, Rn  -> Rn = mem[Rm]
	opMOVS = 0xD // MOV.L Rm, @Rn  -> mem[Rn] = Rm
	opMOV  = 0xE // MOV Rm, Rn     -> Rn = Rm
	opMOVI = 0xF // MOV #imm, Rn   -> Rn = sign_extend(imm)
	opBRA  = 0x8 // BRA  offset(12-bit, in Dst/Src1/Src2 nibbles)
	opBSR  = 0x9 // BSR  offset -> call
	opJMP  = 0xA // JMP @Rn        -> indirect branch through Rn
	opRTS  = 0xB // RTS            -> return through link register
)

const (
	spaceRegister = 1
	spaceRAM      = 2
	spaceConst    = 0
	linkRegIndex  = 15
	regSize       = 8
)

// Arch is a decoded toyarch instance: 16 general registers of 8 bytes,
// a flat byte-addressed RAM space.
type Arch struct{}

// New returns the shared toyarch lifter. It carries no mutable state.
func New() *Arch { return &Arch{} }

func (a *Arch) LanguageID() string { return "toyarch:LE:64:default" }

func (a *Arch) GetSpaceInfo(idx int) (varnode.SpaceInfo, bool) {
	for _, s := range a.GetAllSpaceInfo() {
		if s.Index == idx {
			return s, true
		}
	}
	return varnode.SpaceInfo{}, false
}

func (a *Arch) GetAllSpaceInfo() []varnode.SpaceInfo {
	return []varnode.SpaceInfo{
		{Name: "const", Index: spaceConst, Type: varnode.SpaceConstant, WordSize: 1, AddressSize: 8},
		{Name: "register", Index: spaceRegister, Type: varnode.SpaceProcessor, WordSize: 1, AddressSize: 8},
		{Name: "ram", Index: spaceRAM, Type: varnode.SpaceRAM, WordSize: 1, AddressSize: 8},
	}
}

func (a *Arch) GetCodeSpaceIndex() int { return spaceRAM }

// Register returns the varnode for a named register: "r0".."r15", or the
// alias "lr" (link register, r15). There is no "pc" register (the
// program counter is not a storage location here), so Register reports
// false for it.
func (a *Arch) Register(name string) (varnode.VarNode, bool) {
	name = strings.ToLower(name)
	if name == "lr" {
		name = fmt.Sprintf("r%d", linkRegIndex)
	}
	if !strings.HasPrefix(name, "r") {
		return varnode.VarNode{}, false
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil || n < 0 || n > 15 {
		return varnode.VarNode{}, false
	}
	return varnode.VarNode{Space: spaceRegister, Offset: uint64(n * regSize), Size: regSize}, true
}

func (a *Arch) Registers() map[string]varnode.VarNode {
	out := make(map[string]varnode.VarNode, 16)
	for i := 0; i < 16; i++ {
		vn, _ := a.Register(fmt.Sprintf("r%d", i))
		out[fmt.Sprintf("r%d", i)] = vn
	}
	return out
}

func (a *Arch) reg(n uint8) varnode.GeneralizedVarNode {
	vn, _ := a.Register(fmt.Sprintf("r%d", n))
	return varnode.Dir(vn)
}

func (a *Arch) constant(v uint64, size int) varnode.GeneralizedVarNode {
	return varnode.Dir(varnode.VarNode{Space: spaceConst, Offset: v, Size: size})
}

// decode reads the instruction at addr from data (relative to base) and
// returns it along with the IR ops it lifts to.
func (a *Arch) decode(data []byte, addr uint64, base uint64) (arch.Instruction, bool) {
	off := addr - base
	if off+2 > uint64(len(data)) {
		return arch.Instruction{}, false
	}
	word := uint16(data[off]) | uint16(data[off+1])<<8
	opcode := uint8((word >> 12) & 0xF)
	dst := uint8((word >> 8) & 0xF)
	src1 := uint8((word >> 4) & 0xF)
	src2 := uint8(word & 0xF)
	imm := int16(int8(word & 0xFF))
	off12 := int16(word&0x0FFF) << 4 >> 4 // sign-extend 12 bits

	inst := arch.Instruction{Address: addr, Length: 2}
	rd := a.reg(dst)

	switch opcode {
	case opADD:
		inst.Disassembly = arch.Disassembly{Mnemonic: "add", Args: fmt.Sprintf("r%d, r%d", src1, dst)}
		inst.Ops = []arch.PcodeOp{{Opcode: arch.OpIntAdd, Inputs: []varnode.GeneralizedVarNode{rd, a.reg(src1)}, Output: out(rd)}}
	case opSUB:
		inst.Disassembly = arch.Disassembly{Mnemonic: "sub", Args: fmt.Sprintf("r%d, r%d", src1, dst)}
		inst.Ops = []arch.PcodeOp{{Opcode: arch.OpIntSub, Inputs: []varnode.GeneralizedVarNode{rd, a.reg(src1)}, Output: out(rd)}}
	case opADDI:
		inst.Disassembly = arch.Disassembly{Mnemonic: "addi", Args: fmt.Sprintf("#%d, r%d", imm, dst)}
		inst.Ops = []arch.PcodeOp{{Opcode: arch.OpIntAdd, Inputs: []varnode.GeneralizedVarNode{rd, a.constant(uint64(imm), regSize)}, Output: out(rd)}}
	case opCMP:
		inst.Disassembly = arch.Disassembly{Mnemonic: "cmp", Args: fmt.Sprintf("r%d, r%d", src1, dst)}
		inst.Ops = []arch.PcodeOp{{Opcode: arch.OpIntEqual, Inputs: []varnode.GeneralizedVarNode{rd, a.reg(src1)}}}
	case opAND:
		inst.Disassembly = arch.Disassembly{Mnemonic: "and", Args: fmt.Sprintf("r%d, r%d", src1, dst)}
		inst.Ops = []arch.PcodeOp{{Opcode: arch.OpIntAnd, Inputs: []varnode.GeneralizedVarNode{rd, a.reg(src1)}, Output: out(rd)}}
	case opOR:
		inst.Disassembly = arch.Disassembly{Mnemonic: "or", Args: fmt.Sprintf("r%d, r%d", src1, dst)}
		inst.Ops = []arch.PcodeOp{{Opcode: arch.OpIntOr, Inputs: []varnode.GeneralizedVarNode{rd, a.reg(src1)}, Output: out(rd)}}
	case opXOR:
		inst.Disassembly = arch.Disassembly{Mnemonic: "xor", Args: fmt.Sprintf("r%d, r%d", src1, dst)}
		inst.Ops = []arch.PcodeOp{{Opcode: arch.OpIntXor, Inputs: []varnode.GeneralizedVarNode{rd, a.reg(src1)}, Output: out(rd)}}
	case opMOVL:
		ram := varnode.GeneralizedVarNode{Indirect: &varnode.IndirectVarNode{PointerLocation: mustVN(a.reg(src1)), PointerSpace: spaceRAM, AccessSizeBytes: regSize}}
		inst.Disassembly = arch.Disassembly{Mnemonic: "mov.l", Args: fmt.Sprintf("@r%d, r%d", src1, dst)}
		inst.Ops = []arch.PcodeOp{{Opcode: arch.OpLoad, Inputs: []varnode.GeneralizedVarNode{ram}, Output: out(rd)}}
	case opMOVS:
		ram := varnode.GeneralizedVarNode{Indirect: &varnode.IndirectVarNode{PointerLocation: mustVN(rd), PointerSpace: spaceRAM, AccessSizeBytes: regSize}}
		inst.Disassembly = arch.Disassembly{Mnemonic: "mov.l", Args: fmt.Sprintf("r%d, @r%d", src1, dst)}
		inst.Ops = []arch.PcodeOp{{Opcode: arch.OpStore, Inputs: []varnode.GeneralizedVarNode{rd, a.reg(src1)}, Output: out(ram)}}
	case opMOV:
		inst.Disassembly = arch.Disassembly{Mnemonic: "mov", Args: fmt.Sprintf("r%d, r%d", src1, dst)}
		inst.Ops = []arch.PcodeOp{{Opcode: arch.OpCopy, Inputs: []varnode.GeneralizedVarNode{a.reg(src1)}, Output: out(rd)}}
	case opMOVI:
		inst.Disassembly = arch.Disassembly{Mnemonic: "movi", Args: fmt.Sprintf("#%d, r%d", imm, dst)}
		inst.Ops = []arch.PcodeOp{{Opcode: arch.OpCopy, Inputs: []varnode.GeneralizedVarNode{a.constant(uint64(imm), regSize)}, Output: out(rd)}}
	case opBRA:
		target := uint64(int64(addr) + int64(off12))
		inst.Disassembly = arch.Disassembly{Mnemonic: "bra", Args: fmt.Sprintf("0x%x", target)}
		inst.Ops = []arch.PcodeOp{{Opcode: arch.OpBranch, BranchTarget: target, HasTarget: true}}
	case opBSR:
		target := uint64(int64(addr) + int64(off12))
		inst.Disassembly = arch.Disassembly{Mnemonic: "bsr", Args: fmt.Sprintf("0x%x", target)}
		lr := a.reg(linkRegIndex)
		inst.Ops = []arch.PcodeOp{{Opcode: arch.OpCall, Inputs: []varnode.GeneralizedVarNode{a.constant(addr+2, regSize)}, Output: out(lr), BranchTarget: target, HasTarget: true}}
	case opJMP:
		inst.Disassembly = arch.Disassembly{Mnemonic: "jmp", Args: fmt.Sprintf("@r%d", src1)}
		inst.Ops = []arch.PcodeOp{{Opcode: arch.OpBranchInd, Inputs: []varnode.GeneralizedVarNode{a.reg(src1)}}}
	case opRTS:
		inst.Disassembly = arch.Disassembly{Mnemonic: "rts"}
		inst.Ops = []arch.PcodeOp{{Opcode: arch.OpReturn, Inputs: []varnode.GeneralizedVarNode{a.reg(linkRegIndex)}}}
	default:
		inst.Disassembly = arch.Disassembly{Mnemonic: "unk", Args: fmt.Sprintf("0x%04x", word)}
		inst.Ops = []arch.PcodeOp{{Opcode: arch.OpGeneric}}
	}
	_ = dst
	_ = src2
	return inst, true
}

func out(g varnode.GeneralizedVarNode) *varnode.GeneralizedVarNode { return &g }

func mustVN(g varnode.GeneralizedVarNode) varnode.VarNode {
	if g.Direct == nil {
		panic("toyarch: expected direct varnode")
	}
	return *g.Direct
}

// readFrom decodes up to max instructions of data (mapped at base),
// starting at addr. It stops early at the first address it cannot
// decode and, when stopAtBranch is set, after (and including) the first
// block terminator.
func (a *Arch) readFrom(data []byte, base, addr uint64, max int, stopAtBranch bool) []arch.Instruction {
	var out []arch.Instruction
	cur := addr
	for i := 0; i < max; i++ {
		inst, ok := a.decode(data, cur, base)
		if !ok {
			break
		}
		out = append(out, inst)
		if stopAtBranch && inst.TerminatesBasicBlock() {
			break
		}
		cur += uint64(inst.Length)
	}
	return out
}

// ReadUntilBranch satisfies arch.Lifter for an Arch with no bytes
// attached and always returns nil, as does ReadN. Decoding real bytes
// goes through a BoundArch from Bind, which elflift.Image dispatches to.
func (a *Arch) ReadUntilBranch(addr uint64, max int) []arch.Instruction {
	return nil // requires bytes; see BoundArch below
}

func (a *Arch) ReadN(addr uint64, n int) []arch.Instruction {
	return nil
}

// ParsePcodeListing parses a textual listing of one op per line, of the
// form "OPCODE dst <- in1, in2" against register names, e.g.:
//
//	INT_ADD r0 <- r0, r1
//	LOAD r2 <- *r3
//	RETURN <- r15
//
// This is the toy stand-in for spec §6's RawPcode ingestion path used by
// unit tests that want to assert a gadget's semantics directly rather
// than carve it from bytes.
func (a *Arch) ParsePcodeListing(listing string) ([]arch.Instruction, error) {
	var insts []arch.Instruction
	scanner := bufio.NewScanner(strings.NewReader(listing))
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		op, err := a.parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		insts = append(insts, arch.Instruction{
			Disassembly: arch.Disassembly{Mnemonic: line},
			Ops:         []arch.PcodeOp{op},
			Length:      1,
		})
	}
	return insts, scanner.Err()
}

func (a *Arch) parseLine(line string) (arch.PcodeOp, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return arch.PcodeOp{}, fmt.Errorf("empty op line")
	}
	opcode := opcodeByName(fields[0])
	if opcode == arch.OpGeneric && fields[0] != "GENERIC" {
		return arch.PcodeOp{}, fmt.Errorf("unknown opcode %q", fields[0])
	}
	rest := strings.Join(fields[1:], " ")
	var outName string
	operandsPart := rest
	if idx := strings.Index(rest, "<-"); idx >= 0 {
		outName = strings.TrimSpace(rest[:idx])
		operandsPart = strings.TrimSpace(rest[idx+2:])
	}
	var inputs []varnode.GeneralizedVarNode
	if operandsPart != "" {
		for _, tok := range strings.Split(operandsPart, ",") {
			tok = strings.TrimSpace(tok)
			gv, err := a.parseOperand(tok)
			if err != nil {
				return arch.PcodeOp{}, err
			}
			inputs = append(inputs, gv)
		}
	}
	op := arch.PcodeOp{Opcode: opcode, Inputs: inputs}
	if outName != "" {
		gv, err := a.parseOperand(outName)
		if err != nil {
			return arch.PcodeOp{}, err
		}
		op.Output = &gv
	}
	return op, nil
}

func (a *Arch) parseOperand(tok string) (varnode.GeneralizedVarNode, error) {
	if strings.HasPrefix(tok, "*") {
		vn, ok := a.Register(tok[1:])
		if !ok {
			return varnode.GeneralizedVarNode{}, fmt.Errorf("bad indirect operand %q", tok)
		}
		return varnode.GeneralizedVarNode{Indirect: &varnode.IndirectVarNode{PointerLocation: vn, PointerSpace: spaceRAM, AccessSizeBytes: regSize}}, nil
	}
	if vn, ok := a.Register(tok); ok {
		return varnode.Dir(vn), nil
	}
	if strings.HasPrefix(tok, "#") {
		n, err := strconv.ParseInt(tok[1:], 0, 64)
		if err != nil {
			return varnode.GeneralizedVarNode{}, fmt.Errorf("bad immediate %q: %w", tok, err)
		}
		return a.constant(uint64(n), regSize), nil
	}
	return varnode.GeneralizedVarNode{}, fmt.Errorf("unrecognized operand %q", tok)
}

func opcodeByName(s string) arch.OpCode {
	m := map[string]arch.OpCode{
		"INT_ADD": arch.OpIntAdd, "INT_SUB": arch.OpIntSub, "INT_AND": arch.OpIntAnd,
		"INT_OR": arch.OpIntOr, "INT_XOR": arch.OpIntXor, "COPY": arch.OpCopy,
		"LOAD": arch.OpLoad, "STORE": arch.OpStore, "BRANCH": arch.OpBranch,
		"CBRANCH": arch.OpCBranch, "BRANCHIND": arch.OpBranchInd, "CALL": arch.OpCall,
		"CALLIND": arch.OpCallInd, "RETURN": arch.OpReturn, "SYSCALL": arch.OpSyscall,
		"INT_EQUAL": arch.OpIntEqual,
	}
	if op, ok := m[s]; ok {
		return op
	}
	return arch.OpGeneric
}

// BoundArch wraps an Arch with a fixed (base, data) byte image so it can
// satisfy arch.Lifter's ReadUntilBranch/ReadN without threading bytes
// through every call.
type BoundArch struct {
	*Arch
	Base uint64
	Data []byte
}

// Bind produces a Lifter over a flat byte buffer starting at base.
func Bind(base uint64, data []byte) *BoundArch {
	return &BoundArch{Arch: New(), Base: base, Data: data}
}

func (b *BoundArch) ReadUntilBranch(addr uint64, max int) []arch.Instruction {
	return b.Arch.readFrom(b.Data, b.Base, addr, max, true)
}

func (b *BoundArch) ReadN(addr uint64, n int) []arch.Instruction {
	return b.Arch.readFrom(b.Data, b.Base, addr, n, false)
}
