package gadget

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ropforge/ropforge/internal/arch"
	"github.com/ropforge/ropforge/internal/arch/toyarch"
	"github.com/ropforge/ropforge/internal/varnode"
)

func r(archInfo *toyarch.Arch, name string) varnode.VarNode {
	vn, ok := archInfo.Register(name)
	if !ok {
		panic("bad register " + name)
	}
	return vn
}

func TestCandidatesForInstructionFiltersBySignatureAndControlFlow(t *testing.T) {
	archInfo := toyarch.New()
	r0 := varnode.Dir(r(archInfo, "r0"))
	r1 := varnode.Dir(r(archInfo, "r1"))

	ref := arch.Instruction{Ops: []arch.PcodeOp{
		{Opcode: arch.OpIntAdd, Inputs: []varnode.GeneralizedVarNode{r0, r1}, Output: &r0},
	}}

	covering := Gadget{Instructions: []arch.Instruction{
		{Ops: []arch.PcodeOp{{Opcode: arch.OpIntAdd, Inputs: []varnode.GeneralizedVarNode{r0, r1}, Output: &r0}}},
		{Ops: []arch.PcodeOp{{Opcode: arch.OpReturn, Inputs: []varnode.GeneralizedVarNode{r1}}}},
	}}
	notCovering := Gadget{Instructions: []arch.Instruction{
		{Ops: []arch.PcodeOp{{Opcode: arch.OpCopy, Inputs: []varnode.GeneralizedVarNode{r1}, Output: &r1}}},
		{Ops: []arch.PcodeOp{{Opcode: arch.OpReturn, Inputs: []varnode.GeneralizedVarNode{r1}}}},
	}}
	noIndirectTransfer := Gadget{Instructions: []arch.Instruction{
		{Ops: []arch.PcodeOp{{Opcode: arch.OpIntAdd, Inputs: []varnode.GeneralizedVarNode{r0, r1}, Output: &r0}}},
	}}

	lib := &Library{Gadgets: []Gadget{covering, notCovering, noIndirectTransfer}}
	lib.spaces = archInfo.GetAllSpaceInfo()
	lib.codeIdx = archInfo.GetCodeSpaceIndex()

	got := lib.CandidatesForInstruction(ref, archInfo)
	require.Len(t, got, 1)
}

func TestHasCompatibleControlFlowSyscallRequiresExactMatch(t *testing.T) {
	archInfo := toyarch.New()
	r0 := varnode.Dir(r(archInfo, "r0"))

	syscallInstr := arch.Instruction{Ops: []arch.PcodeOp{{Opcode: arch.OpSyscall, Inputs: []varnode.GeneralizedVarNode{r0}}}}
	matching := Gadget{Instructions: []arch.Instruction{syscallInstr}}
	mismatched := Gadget{Instructions: []arch.Instruction{
		{Ops: []arch.PcodeOp{{Opcode: arch.OpSyscall, Inputs: []varnode.GeneralizedVarNode{}}}},
	}}

	require.True(t, hasCompatibleControlFlow(syscallInstr, matching))
	require.False(t, hasCompatibleControlFlow(syscallInstr, mismatched))
}

func TestGadgetAddressAndString(t *testing.T) {
	empty := Gadget{}
	_, ok := empty.Address()
	require.False(t, ok, "an empty gadget must report no address")

	g := Gadget{Instructions: []arch.Instruction{
		{Address: 0x1000, Disassembly: arch.Disassembly{Mnemonic: "mov", Args: "r0, r1"}},
		{Address: 0x1002, Disassembly: arch.Disassembly{Mnemonic: "rts"}},
	}}
	addr, ok := g.Address()
	require.True(t, ok)
	require.Equal(t, uint64(0x1000), addr)
	require.Equal(t, "mov r0, r1; rts", g.String())
}
