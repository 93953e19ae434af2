package pool

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ropforge/ropforge/internal/arch"
	"github.com/ropforge/ropforge/internal/arch/toyarch"
	"github.com/ropforge/ropforge/internal/gadget"
	"github.com/ropforge/ropforge/internal/refprogram"
	"github.com/ropforge/ropforge/internal/smt"
	"github.com/ropforge/ropforge/internal/synthesis"
	"github.com/ropforge/ropforge/internal/synthesis/theory"
	"github.com/ropforge/ropforge/internal/varnode"
)

// symTerm/fakeSolver mirror the theory package's test doubles: a
// solver whose Check outcome is scripted by checkSat, so CheckAssignment
// exercises the full constraint-building path without a real z3 binding.
type symTerm struct {
	name string
	size uint
}

func (t *symTerm) Name() string { return t.name }
func (t *symTerm) Size() uint   { return t.size }

type fakeSolver struct {
	counter    int
	checkSat   bool
	checkErr   error
}

func (s *fakeSolver) FreshBool(prefix string) smt.Bool {
	s.counter++
	return &symTerm{name: fmt.Sprintf("%s_%d", prefix, s.counter), size: 1}
}
func (s *fakeSolver) BitVecConst(name string, size uint) smt.BitVec { return &symTerm{name: name, size: size} }
func (s *fakeSolver) BitVecVal(value uint64, size uint) smt.BitVec {
	return &symTerm{name: fmt.Sprintf("#x%x", value), size: size}
}
func (s *fakeSolver) Eq(a, b smt.BitVec) smt.Bool                   { return &symTerm{name: "="} }
func (s *fakeSolver) Ule(a, b smt.BitVec) smt.Bool                  { return &symTerm{name: "ule"} }
func (s *fakeSolver) And(terms ...smt.Bool) smt.Bool                { return &symTerm{name: "and"} }
func (s *fakeSolver) Or(terms ...smt.Bool) smt.Bool                 { return &symTerm{name: "or"} }
func (s *fakeSolver) Not(b smt.Bool) smt.Bool                       { return &symTerm{name: "not"} }
func (s *fakeSolver) True() smt.Bool                                { return &symTerm{name: "true"} }
func (s *fakeSolver) False() smt.Bool                               { return &symTerm{name: "false"} }
func (s *fakeSolver) Add(a, b smt.BitVec) smt.BitVec                { return &symTerm{name: "bvadd", size: a.Size()} }
func (s *fakeSolver) Sub(a, b smt.BitVec) smt.BitVec                { return &symTerm{name: "bvsub", size: a.Size()} }
func (s *fakeSolver) BvAnd(a, b smt.BitVec) smt.BitVec { return &symTerm{name: "bvand", size: a.Size()} }
func (s *fakeSolver) BvOr(a, b smt.BitVec) smt.BitVec  { return &symTerm{name: "bvor", size: a.Size()} }
func (s *fakeSolver) BvXor(a, b smt.BitVec) smt.BitVec { return &symTerm{name: "bvxor", size: a.Size()} }
func (s *fakeSolver) Concat(hi, lo smt.BitVec) smt.BitVec {
	return &symTerm{name: "concat", size: hi.Size() + lo.Size()}
}
func (s *fakeSolver) Extract(hi, lo uint, bv smt.BitVec) smt.BitVec { return &symTerm{name: "extract", size: hi - lo + 1} }
func (s *fakeSolver) Reset()                             {}
func (s *fakeSolver) Assert(b smt.Bool)                  {}
func (s *fakeSolver) AssertAndTrack(b, tracker smt.Bool) {}
func (s *fakeSolver) Check(ctx context.Context) (smt.Result, error) {
	if s.checkErr != nil {
		return smt.Unknown, s.checkErr
	}
	if s.checkSat {
		return smt.Sat, nil
	}
	return smt.Unsat, nil
}
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

func buildTheory(t *testing.T, solver *fakeSolver) *theory.Theory {
	archInfo := toyarch.New()
	step := refprogram.NewStep(addInstr(archInfo, 0x1000))
	program := refprogram.New([]refprogram.Step{step}, refprogram.NewValuation(nil))
	candidate := gadget.Gadget{Instructions: []arch.Instruction{addInstr(archInfo, 0x2000)}}
	candidates := &gadget.Candidates{Slots: [][]gadget.Gadget{{candidate}}}

	th, err := theory.NewBuilder(candidates, archInfo).WithReferenceProgram(program).Build(solver)
	require.NoError(t, err)
	return th
}

func TestPoolRunReturnsSatOnFirstMatch(t *testing.T) {
	solver := &fakeSolver{checkSat: true}
	th := buildTheory(t, solver)

	p := New(1, func() (*theory.Theory, error) { return th, nil }, nil)
	out, err := p.Run(context.Background(), []Job{
		{ID: uuid.New(), Assignment: synthesis.NewSlotAssignments([]int{0})},
	})
	require.NoError(t, err)

	var responses []Response
	for r := range out {
		responses = append(responses, r)
	}
	require.Len(t, responses, 1)
	require.True(t, responses[0].Sat)
	require.Nil(t, responses[0].Err)
}

func TestPoolRunReturnsConflictOnUnsat(t *testing.T) {
	solver := &fakeSolver{checkSat: false}
	th := buildTheory(t, solver)

	p := New(1, func() (*theory.Theory, error) { return th, nil }, nil)
	out, err := p.Run(context.Background(), []Job{
		{ID: uuid.New(), Assignment: synthesis.NewSlotAssignments([]int{0})},
	})
	require.NoError(t, err)

	var responses []Response
	for r := range out {
		responses = append(responses, r)
	}
	require.Len(t, responses, 1)
	require.False(t, responses[0].Sat)
	require.NotNil(t, responses[0].Conflict)
}

func TestPoolRunPropagatesBuildError(t *testing.T) {
	buildErr := errors.New("solver unavailable")
	p := New(1, func() (*theory.Theory, error) { return nil, buildErr }, nil)

	out, err := p.Run(context.Background(), []Job{
		{ID: uuid.New(), Assignment: synthesis.NewSlotAssignments([]int{0})},
	})
	require.NoError(t, err, "Run itself only reports setup errors, not worker-build errors")

	select {
	case _, ok := <-out:
		require.False(t, ok, "a build failure must close the channel with no responses")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pool shutdown after build error")
	}
}

func TestPoolNewClampsConcurrencyToAtLeastOne(t *testing.T) {
	p := New(0, func() (*theory.Theory, error) { return nil, nil }, nil)
	require.Equal(t, 1, p.concurrency)
}
