package theory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ropforge/ropforge/internal/arch"
	"github.com/ropforge/ropforge/internal/arch/toyarch"
	"github.com/ropforge/ropforge/internal/gadget"
	"github.com/ropforge/ropforge/internal/refprogram"
	"github.com/ropforge/ropforge/internal/smt"
	"github.com/ropforge/ropforge/internal/synthesis"
	"github.com/ropforge/ropforge/internal/varnode"
)

// symTerm is a fake smt.Bool/smt.BitVec built as a named s-expression
// leaf/node, standing in for a real solver term.
type symTerm struct {
	name string
	size uint
	kids []*symTerm
}

func (t *symTerm) Name() string { return t.name }
func (t *symTerm) Size() uint   { return t.size }

func sym(b interface{}) *symTerm {
	if t, ok := b.(*symTerm); ok {
		return t
	}
	return &symTerm{name: fmt.Sprintf("%v", b)}
}

// fakeSolver is a minimal smt.Solver building symTerm trees instead of
// delegating to a real binding, and always reporting Sat with an empty
// model — enough to exercise Builder's wiring without a z3 binding.
type fakeSolver struct {
	counter int
}

func (s *fakeSolver) FreshBool(prefix string) smt.Bool {
	s.counter++
	return &symTerm{name: fmt.Sprintf("%s_%d", prefix, s.counter), size: 1}
}
func (s *fakeSolver) BitVecConst(name string, size uint) smt.BitVec { return &symTerm{name: name, size: size} }
func (s *fakeSolver) BitVecVal(value uint64, size uint) smt.BitVec {
	return &symTerm{name: fmt.Sprintf("#x%x", value), size: size}
}
func (s *fakeSolver) Eq(a, b smt.BitVec) smt.Bool { return &symTerm{name: "=", kids: []*symTerm{sym(a), sym(b)}} }
func (s *fakeSolver) Ule(a, b smt.BitVec) smt.Bool {
	return &symTerm{name: "ule", kids: []*symTerm{sym(a), sym(b)}}
}
func (s *fakeSolver) And(terms ...smt.Bool) smt.Bool {
	var kids []*symTerm
	for _, t := range terms {
		kids = append(kids, sym(t))
	}
	return &symTerm{name: "and", kids: kids}
}
func (s *fakeSolver) Or(terms ...smt.Bool) smt.Bool {
	var kids []*symTerm
	for _, t := range terms {
		kids = append(kids, sym(t))
	}
	return &symTerm{name: "or", kids: kids}
}
func (s *fakeSolver) Not(b smt.Bool) smt.Bool { return &symTerm{name: "not", kids: []*symTerm{sym(b)}} }
func (s *fakeSolver) True() smt.Bool          { return &symTerm{name: "true"} }
func (s *fakeSolver) False() smt.Bool         { return &symTerm{name: "false"} }
func (s *fakeSolver) Add(a, b smt.BitVec) smt.BitVec {
	return &symTerm{name: "bvadd", size: a.Size(), kids: []*symTerm{sym(a), sym(b)}}
}
func (s *fakeSolver) Sub(a, b smt.BitVec) smt.BitVec {
	return &symTerm{name: "bvsub", size: a.Size(), kids: []*symTerm{sym(a), sym(b)}}
}
func (s *fakeSolver) BvAnd(a, b smt.BitVec) smt.BitVec {
	return &symTerm{name: "bvand", size: a.Size(), kids: []*symTerm{sym(a), sym(b)}}
}
func (s *fakeSolver) BvOr(a, b smt.BitVec) smt.BitVec {
	return &symTerm{name: "bvor", size: a.Size(), kids: []*symTerm{sym(a), sym(b)}}
}
func (s *fakeSolver) BvXor(a, b smt.BitVec) smt.BitVec {
	return &symTerm{name: "bvxor", size: a.Size(), kids: []*symTerm{sym(a), sym(b)}}
}
func (s *fakeSolver) Concat(hi, lo smt.BitVec) smt.BitVec {
	return &symTerm{name: "concat", size: hi.Size() + lo.Size(), kids: []*symTerm{sym(hi), sym(lo)}}
}
func (s *fakeSolver) Extract(hi, lo uint, bv smt.BitVec) smt.BitVec {
	return &symTerm{name: "extract", size: hi - lo + 1, kids: []*symTerm{sym(bv)}}
}
func (s *fakeSolver) Reset()                                          {}
func (s *fakeSolver) Assert(b smt.Bool)                               {}
func (s *fakeSolver) AssertAndTrack(b, tracker smt.Bool)              {}
func (s *fakeSolver) Check(ctx context.Context) (smt.Result, error)   { return smt.Sat, nil }
func (s *fakeSolver) UnsatCore() []smt.Bool                           { return nil }
func (s *fakeSolver) Model() (smt.Model, error)                       { return fakeModel{}, nil }
func (s *fakeSolver) PbEq(terms []smt.Bool, k int)                    {}
func (s *fakeSolver) PbEqTracked(terms []smt.Bool, k int, t smt.Bool) {}
func (s *fakeSolver) AssertSoft(b smt.Bool, weight int)               {}
func (s *fakeSolver) Close()                                          {}

type fakeModel struct{}

func (fakeModel) EvalBitVec(bv smt.BitVec) (uint64, bool) { return 0, false }
func (fakeModel) EvalBool(b smt.Bool) (bool, bool)        { return false, false }

func addInstr(archInfo *toyarch.Arch, addr uint64) arch.Instruction {
	r0, _ := archInfo.Register("r0")
	r1, _ := archInfo.Register("r1")
	out := varnode.Dir(r0)
	return arch.Instruction{
		Address: addr, Length: 4,
		Disassembly: arch.Disassembly{Mnemonic: "add", Args: "r0, r1"},
		Ops: []arch.PcodeOp{
			{Opcode: arch.OpIntAdd, Inputs: []varnode.GeneralizedVarNode{varnode.Dir(r0), varnode.Dir(r1)}, Output: &out},
			{Opcode: arch.OpReturn, Inputs: []varnode.GeneralizedVarNode{varnode.Dir(r1)}},
		},
	}
}

func oneSlotBuilder(archInfo *toyarch.Arch) *Builder {
	step := refprogram.NewStep(addInstr(archInfo, 0x1000))
	program := refprogram.New([]refprogram.Step{step}, refprogram.NewValuation(nil))

	candidate := gadget.Gadget{Instructions: []arch.Instruction{addInstr(archInfo, 0x2000)}}
	candidates := &gadget.Candidates{Slots: [][]gadget.Gadget{{candidate}}}

	return NewBuilder(candidates, archInfo).WithReferenceProgram(program)
}

func TestBuilderFluentSettersReturnSelf(t *testing.T) {
	archInfo := toyarch.New()
	b := NewBuilder(&gadget.Candidates{}, archInfo)
	got := b.WithPreconditions(nil).WithPostconditions(nil).WithPointerInvariants(nil).WithMaxCandidates(7)
	require.Same(t, b, got)
	require.Equal(t, 7, b.CandidatesPerSlot)
}

func TestNewBuilderDefaultsMaxCandidates(t *testing.T) {
	b := NewBuilder(&gadget.Candidates{}, toyarch.New())
	require.Equal(t, 200, b.CandidatesPerSlot)
}

func TestBuilderBuildProducesTheoryOverModeledTemplates(t *testing.T) {
	archInfo := toyarch.New()
	b := oneSlotBuilder(archInfo)
	solver := &fakeSolver{}

	th, err := b.Build(solver)
	require.NoError(t, err)
	require.NotNil(t, th)
}

func TestBuilderBuildAssignmentSelectsChosenCandidates(t *testing.T) {
	archInfo := toyarch.New()
	b := oneSlotBuilder(archInfo)
	solver := &fakeSolver{}

	assignment := synthesis.NewSlotAssignments([]int{0})
	a, err := b.BuildAssignment(solver, assignment)
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Len(t, a.gadgets, 1)
	require.Len(t, a.templates, 1)
}
