package gadget

import (
	"github.com/ropforge/ropforge/internal/arch"
	"github.com/ropforge/ropforge/internal/modeling"
	"github.com/ropforge/ropforge/internal/varnode"
)

// Signature is a gadget or reference step's output footprint: the set of
// varnodes it writes, restricted per spec §4.2's stricter reading —
// direct outputs only when they land in the processor (register) space,
// indirect outputs always kept (component C).
type Signature struct {
	Outputs []varnode.GeneralizedVarNode
}

// Covers reports whether self's outputs cover every output in other —
// i.e. self can stand in for other wherever other's writes are needed.
func (s Signature) Covers(other Signature) bool {
	return varnode.CoversSet(s.Outputs, other.Outputs)
}

// Equal reports signature equality as mutual coverage, matching the
// original's PartialEq impl (each output of one found, by Eq, in the
// other).
func (s Signature) Equal(other Signature) bool {
	return s.Covers(other) && other.Covers(s)
}

func appendOutput(outputs []varnode.GeneralizedVarNode, out varnode.GeneralizedVarNode, sm varnode.SpaceManager) []varnode.GeneralizedVarNode {
	if out.Direct != nil {
		info, ok := sm.GetSpaceInfo(out.Direct.Space)
		if ok && info.Type == varnode.SpaceProcessor {
			return append(outputs, out)
		}
		return outputs
	}
	return append(outputs, out)
}

// SignatureFromInstruction computes a single instruction's output
// signature, the Go analogue of GadgetSignature::from_instr.
func SignatureFromInstruction(instr arch.Instruction, sm varnode.SpaceManager) Signature {
	var outputs []varnode.GeneralizedVarNode
	for _, op := range instr.Ops {
		out, ok := op.OutputVarNode()
		if !ok {
			continue
		}
		outputs = appendOutput(outputs, out, sm)
	}
	return Signature{Outputs: outputs}
}

// SignatureFromGadget computes a harvested gadget's output signature
// across all of its instructions.
func SignatureFromGadget(g Gadget, sm varnode.SpaceManager) Signature {
	var outputs []varnode.GeneralizedVarNode
	for _, instr := range g.Instructions {
		for _, op := range instr.Ops {
			out, ok := op.OutputVarNode()
			if !ok {
				continue
			}
			outputs = appendOutput(outputs, out, sm)
		}
	}
	return Signature{Outputs: outputs}
}

// SignatureFromModeledBlock computes a signature from a modeled block's
// instructions, without the processor-space restriction — matching
// From<&ModeledBlock> in the original, which keeps every output
// (used only for already-vetted gadget candidates, where the narrower
// from_instr/from Gadget filter has already run on the comparison side).
func SignatureFromModeledBlock(b *modeling.ModeledBlock) Signature {
	var outputs []varnode.GeneralizedVarNode
	for _, mi := range b.Instructions {
		for _, op := range mi.Instr.Ops {
			if out, ok := op.OutputVarNode(); ok {
				outputs = append(outputs, out)
			}
		}
	}
	return Signature{Outputs: outputs}
}
