// Package gadget implements the gadget library (component B): harvesting
// candidate instruction sequences from an image, modeling them, and
// filtering them against a reference step's output signature.
package gadget

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ropforge/ropforge/internal/arch"
	"github.com/ropforge/ropforge/internal/modeling"
	"github.com/ropforge/ropforge/internal/smt"
	"github.com/ropforge/ropforge/internal/varnode"
)

// Gadget is one harvested candidate: an ordered instruction sequence
// ending at a control-flow transfer.
type Gadget struct {
	Instructions []arch.Instruction
}

// Address returns the gadget's entry address, if it has any instructions.
func (g Gadget) Address() (uint64, bool) {
	if len(g.Instructions) == 0 {
		return 0, false
	}
	return g.Instructions[0].Address, true
}

func (g Gadget) String() string {
	addr, _ := g.Address()
	return formatGadget(addr, g.Instructions)
}

func formatGadget(addr uint64, instrs []arch.Instruction) string {
	s := ""
	for i, in := range instrs {
		if i > 0 {
			s += "; "
		}
		s += in.Disassembly.String()
	}
	_ = addr
	return s
}

// Model lifts this gadget's instructions into a symbolic ModeledBlock
// under a fresh SMT context, mirroring Gadget::model in the original.
func (g Gadget) Model(ctx smt.Context, info arch.ArchInfoProvider) (*modeling.ModeledBlock, error) {
	return modeling.ModelBlock(ctx, info, g.Instructions)
}

// Library holds every gadget harvested from an image, plus the arch
// metadata needed to model them (component B).
type Library struct {
	Gadgets []Gadget
	spaces  []varnode.SpaceInfo
	codeIdx int
}

func (l *Library) GetSpaceInfo(idx int) (varnode.SpaceInfo, bool) {
	for _, s := range l.spaces {
		if s.Index == idx {
			return s, true
		}
	}
	return varnode.SpaceInfo{}, false
}

func (l *Library) GetAllSpaceInfo() []varnode.SpaceInfo { return l.spaces }
func (l *Library) GetCodeSpaceIndex() int               { return l.codeIdx }

// Size returns the number of harvested gadgets.
func (l *Library) Size() int { return len(l.Gadgets) }

// BuildFromImage harvests gadgets from every executable segment of img:
// at every byte offset, decode up to maxLen instructions and, if a block
// terminator appears within that window, keep the prefix ending there —
// matching GadgetLibrary::build_from_image's "slide by one byte, stop at
// the first terminator within a bounded lookahead" approach.
func BuildFromImage(img arch.Image, lifter arch.Lifter, maxLen int, log *logrus.Logger) (*Library, error) {
	lib := &Library{
		spaces:  lifter.GetAllSpaceInfo(),
		codeIdx: lifter.GetCodeSpaceIndex(),
	}
	for _, seg := range img.Segments() {
		if !seg.Executable {
			continue
		}
		start := seg.Base
		end := seg.Base + uint64(len(seg.Data))
		for cur := start; cur < end; cur++ {
			instrs := lifter.ReadN(cur, maxLen)
			term := -1
			for i, in := range instrs {
				if in.TerminatesBasicBlock() {
					term = i
					break
				}
			}
			if term >= 0 {
				lib.Gadgets = append(lib.Gadgets, Gadget{Instructions: append([]arch.Instruction(nil), instrs[:term+1]...)})
			}
		}
		if log != nil {
			log.WithField("segment_base", start).WithField("count", len(lib.Gadgets)).Info("harvested gadgets from segment")
		}
	}
	return lib, nil
}

// ModelGadget lifts a single library gadget, the Go analogue of
// GadgetLibrary::model_gadget.
func (l *Library) ModelGadget(ctx smt.Context, g Gadget) (*modeling.ModeledBlock, error) {
	return modeling.ModelBlock(ctx, l, g.Instructions)
}

// CandidatesForInstruction returns every gadget in the library whose
// output signature covers instr's, with compatible control flow, in
// library order (component E's per-step candidate filter, the Go
// analogue of GadgetIterator / get_modeled_gadgets_for_instruction).
func (l *Library) CandidatesForInstruction(instr arch.Instruction, archInfo arch.ArchInfoProvider) []Gadget {
	target := SignatureFromInstruction(instr, archInfo)
	var out []Gadget
	for _, g := range l.Gadgets {
		gsig := SignatureFromGadget(g, l)
		if !gsig.Covers(target) {
			continue
		}
		if !hasCompatibleControlFlow(instr, g) {
			continue
		}
		out = append(out, g)
	}
	return out
}

func hasCompatibleControlFlow(instr arch.Instruction, g Gadget) bool {
	if instr.HasSyscall() {
		for _, gi := range g.Instructions {
			if gi.OpsEqual(instr) {
				return true
			}
		}
		return false
	}
	for _, gi := range g.Instructions {
		for _, op := range gi.Ops {
			if op.Opcode.IsControllableIndirect() {
				return true
			}
		}
	}
	return false
}

// RandomCandidatesForTrace walks gadgets sequentially (not actually
// randomized — the original's name reflects that library order is
// considered arbitrary relative to any one trace step), yielding, for
// each gadget that covers *any* trace step, a per-step slice of
// optional matches, keeping a step's match only when uphold accepts the
// gadget for that step. The function runs no model check of its own
// (ctx and factory are not read); uphold is the only semantic filter.
// This is the Go analogue of
// TraceCandidateIterator (component E, another_iterator.rs).
func RandomCandidatesForTrace(
	ctx context.Context,
	factory smt.ContextFactory,
	archInfo arch.ArchInfoProvider,
	lib *Library,
	trace []arch.Instruction,
	uphold func(step arch.Instruction, g Gadget) (bool, error),
) func(yield func([]*Gadget) bool) {
	sigs := make([]Signature, len(trace))
	for i, in := range trace {
		sigs[i] = SignatureFromInstruction(in, archInfo)
	}
	return func(yield func([]*Gadget) bool) {
		for _, g := range lib.Gadgets {
			gsig := SignatureFromGadget(g, lib)
			entry := make([]*Gadget, len(trace))
			any := false
			for i, step := range trace {
				if !gsig.Covers(sigs[i]) || !hasCompatibleControlFlow(step, g) {
					continue
				}
				ok, err := uphold(step, g)
				if err != nil || !ok {
					continue
				}
				gCopy := g
				entry[i] = &gCopy
				any = true
			}
			if any {
				if !yield(entry) {
					return
				}
			}
		}
	}
}

var errNoModel = errors.New("gadget: model unavailable")
