package synthesis

import (
	"fmt"
	"strings"

	"github.com/ropforge/ropforge/internal/arch"
	"github.com/ropforge/ropforge/internal/modeling"
	"github.com/ropforge/ropforge/internal/smt"
)

// Model is a solved chain: the gadgets selected for each slot, the
// satisfying SMT model binding their symbolic states, and the arch
// metadata needed to read registers out of it. Component K.
type Model struct {
	smtModel smt.Model
	Gadgets  []*modeling.ModeledBlock
	ArchInfo arch.ArchInfoProvider
}

// NewModel wraps a solved model over a chain of modeled blocks.
func NewModel(m smt.Model, gadgets []*modeling.ModeledBlock, info arch.ArchInfoProvider) *Model {
	return &Model{smtModel: m, Gadgets: gadgets, ArchInfo: info}
}

func (a *Model) InitialState() *modeling.State {
	if len(a.Gadgets) == 0 {
		return nil
	}
	return a.Gadgets[0].OriginalState()
}

func (a *Model) FinalState() *modeling.State {
	if len(a.Gadgets) == 0 {
		return nil
	}
	return a.Gadgets[len(a.Gadgets)-1].FinalState()
}

// ReadOriginalRegister evaluates a named register's value before the
// chain runs.
func (a *Model) ReadOriginalRegister(name string) (uint64, bool) {
	vn, ok := a.ArchInfo.Register(name)
	if !ok {
		return 0, false
	}
	bv := a.InitialState().ReadVarnode(vn)
	return a.smtModel.EvalBitVec(bv)
}

// ReadFinalRegister evaluates a named register's value after the chain
// runs.
func (a *Model) ReadFinalRegister(name string) (uint64, bool) {
	vn, ok := a.ArchInfo.Register(name)
	if !ok {
		return 0, false
	}
	bv := a.FinalState().ReadVarnode(vn)
	return a.smtModel.EvalBitVec(bv)
}

func (a *Model) String() string {
	var b strings.Builder
	fmt.Fprintln(&b, "Gadgets:")
	for _, g := range a.Gadgets {
		for _, mi := range g.Instructions {
			fmt.Fprintf(&b, "  %s\n", mi.Instr.Disassembly.String())
		}
	}
	return b.String()
}
