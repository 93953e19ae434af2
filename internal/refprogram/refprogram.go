// Package refprogram implements the reference program (component D): the
// sequence of steps a synthesized gadget chain must refine, plus the
// initial memory valuation those steps are allowed to assume.
package refprogram

import (
	"fmt"
	"strings"

	"github.com/ropforge/ropforge/internal/arch"
)

// Step is one or more instructions a single synthesized slot must
// emulate; multiple instructions arise from partitioning (component L).
type Step struct {
	instructions []arch.Instruction
}

// NewStep wraps a single instruction as a step.
func NewStep(instr arch.Instruction) Step {
	return Step{instructions: []arch.Instruction{instr}}
}

// CombineSteps flattens several steps' instructions into one, the Go
// analogue of Step::combine — used when a partition groups consecutive
// reference steps behind a single synthesized slot.
func CombineSteps(steps []Step) Step {
	var all []arch.Instruction
	for _, s := range steps {
		all = append(all, s.instructions...)
	}
	return Step{instructions: all}
}

// Instructions returns the step's underlying instructions.
func (s Step) Instructions() []arch.Instruction { return s.instructions }

func (s Step) String() string {
	var b strings.Builder
	for _, in := range s.instructions {
		fmt.Fprintln(&b, in.Disassembly.String())
	}
	return b.String()
}

// Program is the reference computation to refine: an ordered sequence of
// steps plus the memory bytes they may read without being told how those
// bytes got there (component D).
type Program struct {
	steps         []Step
	initialMemory Valuation
}

// New builds a Program from steps and a precomputed initial memory
// valuation.
func New(steps []Step, initial Valuation) *Program {
	return &Program{steps: steps, initialMemory: initial}
}

func (p *Program) Steps() []Step            { return p.steps }
func (p *Program) InitialMemory() Valuation { return p.initialMemory }
func (p *Program) Len() int                 { return len(p.steps) }
func (p *Program) IsEmpty() bool            { return len(p.steps) == 0 }

// Instructions flattens every step's instructions in program order.
func (p *Program) Instructions() []arch.Instruction {
	var out []arch.Instruction
	for _, s := range p.steps {
		out = append(out, s.instructions...)
	}
	return out
}

func (p *Program) String() string {
	var b strings.Builder
	for i, s := range p.steps {
		fmt.Fprintf(&b, "Step %d:\n", i)
		for _, in := range s.instructions {
			fmt.Fprintf(&b, "  %s\n", in.Disassembly.String())
		}
	}
	return b.String()
}

// Partitions yields, for every way of grouping the program's steps into
// contiguous runs (component L), a Program whose steps are the combined
// runs — so a multi-gadget sub-chain can emulate what was originally a
// single reference step, or several.
func (p *Program) Partitions() func(yield func(*Program) bool) {
	return func(yield func(*Program) bool) {
		Partitions(p.steps, func(grouping [][]Step) bool {
			combined := make([]Step, len(grouping))
			for i, g := range grouping {
				combined[i] = CombineSteps(g)
			}
			return yield(New(combined, p.initialMemory))
		})
	}
}
