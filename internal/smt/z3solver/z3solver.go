// Package z3solver is the only package in the tree that imports
// github.com/aclements/go-z3 directly. It implements internal/smt's
// Solver/Context interfaces so the rest of the engine never names a
// concrete solver type — matching how the original crate kept z3 behind
// jingle::JingleContext rather than spreading z3 types through
// synthesis/*.
package z3solver

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"

	z3 "github.com/aclements/go-z3/z3"

	"github.com/ropforge/ropforge/internal/smt"
)

var freshCounter uint64

func freshName(prefix string) string {
	n := atomic.AddUint64(&freshCounter, 1)
	return fmt.Sprintf("%s!%d", prefix, n)
}

// Factory builds independent z3 contexts, one per worker goroutine, the
// way the pool dedicates a solver per thread (spec §4.10).
type Factory struct {
	logic string
}

// NewFactory returns a ContextFactory that records the given SMT-LIB
// logic name (default "QF_ABV", matching the original's
// Solver::new_for_logic(ctx, "QF_ABV")). The name is not applied to the
// solvers: NewSolver builds a z3 Optimize without a logic restriction.
func NewFactory(logic string) *Factory {
	if logic == "" {
		logic = "QF_ABV"
	}
	return &Factory{logic: logic}
}

func (f *Factory) NewSolver() smt.Solver {
	cfg := z3.NewConfig()
	ctx := z3.NewContext(cfg)
	// z3's Optimize handles both plain hard assertions and weighted soft
	// ones under one incremental session, so every Solver here is
	// backed by one regardless of whether a given strategy ever calls
	// AssertSoft — matching how the original's SatProblem (z3::Solver)
	// and OptimizationProblem (z3::Optimize) both reduce to the same
	// assert/check/unsat-core/model shape.
	s := ctx.NewOptimize()
	return &solverImpl{ctx: ctx, s: s, tracked: make(map[string]z3.Bool)}
}

type boolTerm struct {
	name string
	ast  z3.Bool
}

func (b boolTerm) Name() string { return b.name }

type bvTerm struct {
	ast  z3.BV
	size uint
}

func (b bvTerm) Size() uint { return b.size }

type solverImpl struct {
	ctx      *z3.Context
	s        *z3.Optimize
	tracked  map[string]z3.Bool
	lastCore []smt.Bool
}

func (s *solverImpl) FreshBool(prefix string) smt.Bool {
	name := freshName(prefix)
	b := s.ctx.FreshBoolConst(prefix)
	s.tracked[name] = b
	return boolTerm{name: name, ast: b}
}

func (s *solverImpl) BitVecConst(name string, size uint) smt.BitVec {
	return bvTerm{ast: s.ctx.BVConst(name, int(size)), size: size}
}

func (s *solverImpl) BitVecVal(value uint64, size uint) smt.BitVec {
	ast := s.ctx.FromBigInt(new(big.Int).SetUint64(value), s.ctx.BVSort(int(size))).(z3.BV)
	return bvTerm{ast: ast, size: size}
}

func asBV(b smt.BitVec) z3.BV { return b.(bvTerm).ast }
func asBool(b smt.Bool) z3.Bool { return b.(boolTerm).ast }

func (s *solverImpl) Eq(a, b smt.BitVec) smt.Bool {
	name := freshName("eq")
	ast := asBV(a).Eq(asBV(b))
	return boolTerm{name: name, ast: ast}
}

func (s *solverImpl) Ule(a, b smt.BitVec) smt.Bool {
	name := freshName("ule")
	ast := asBV(a).ULE(asBV(b))
	return boolTerm{name: name, ast: ast}
}

func (s *solverImpl) And(terms ...smt.Bool) smt.Bool {
	name := freshName("and")
	asts := make([]z3.Bool, len(terms))
	for i, t := range terms {
		asts[i] = asBool(t)
	}
	return boolTerm{name: name, ast: s.ctx.BoolAnd(asts...)}
}

func (s *solverImpl) Or(terms ...smt.Bool) smt.Bool {
	name := freshName("or")
	asts := make([]z3.Bool, len(terms))
	for i, t := range terms {
		asts[i] = asBool(t)
	}
	return boolTerm{name: name, ast: s.ctx.BoolOr(asts...)}
}

func (s *solverImpl) Not(b smt.Bool) smt.Bool {
	return boolTerm{name: freshName("not"), ast: asBool(b).Not()}
}

func (s *solverImpl) True() smt.Bool {
	return boolTerm{name: freshName("true"), ast: s.ctx.BoolVal(true)}
}

func (s *solverImpl) False() smt.Bool {
	return boolTerm{name: freshName("false"), ast: s.ctx.BoolVal(false)}
}

func (s *solverImpl) Add(a, b smt.BitVec) smt.BitVec {
	return bvTerm{ast: asBV(a).Add(asBV(b)), size: a.Size()}
}

func (s *solverImpl) Sub(a, b smt.BitVec) smt.BitVec {
	return bvTerm{ast: asBV(a).Sub(asBV(b)), size: a.Size()}
}

func (s *solverImpl) BvAnd(a, b smt.BitVec) smt.BitVec {
	return bvTerm{ast: asBV(a).And(asBV(b)), size: a.Size()}
}

func (s *solverImpl) BvOr(a, b smt.BitVec) smt.BitVec {
	return bvTerm{ast: asBV(a).Or(asBV(b)), size: a.Size()}
}

func (s *solverImpl) BvXor(a, b smt.BitVec) smt.BitVec {
	return bvTerm{ast: asBV(a).Xor(asBV(b)), size: a.Size()}
}

func (s *solverImpl) Concat(hi, lo smt.BitVec) smt.BitVec {
	return bvTerm{ast: asBV(hi).Concat(asBV(lo)), size: hi.Size() + lo.Size()}
}

func (s *solverImpl) Extract(hi, lo uint, bv smt.BitVec) smt.BitVec {
	return bvTerm{ast: asBV(bv).Extract(int(hi), int(lo)), size: hi - lo + 1}
}

func (s *solverImpl) Reset() {
	s.s.Reset()
	s.tracked = make(map[string]z3.Bool)
	s.lastCore = nil
}

func (s *solverImpl) Assert(b smt.Bool) {
	s.s.Assert(asBool(b))
}

func (s *solverImpl) AssertAndTrack(b smt.Bool, tracker smt.Bool) {
	t := tracker.(boolTerm)
	s.tracked[t.name] = t.ast
	s.s.AssertAndTrack(asBool(b), t.ast)
}

func (s *solverImpl) Check(ctx context.Context) (smt.Result, error) {
	done := make(chan struct{})
	var res z3.Sat
	go func() {
		res = s.s.Check()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.s.Interrupt()
		<-done
		return smt.Unknown, ctx.Err()
	}
	switch res {
	case z3.Sat:
		return smt.Sat, nil
	case z3.Unsat:
		core := s.s.UnsatCore()
		s.lastCore = make([]smt.Bool, 0, len(core))
		for _, c := range core {
			for name, ast := range s.tracked {
				if ast.String() == c.String() {
					s.lastCore = append(s.lastCore, boolTerm{name: name, ast: ast})
					break
				}
			}
		}
		return smt.Unsat, nil
	default:
		return smt.Unknown, nil
	}
}

func (s *solverImpl) UnsatCore() []smt.Bool { return s.lastCore }

func (s *solverImpl) Model() (smt.Model, error) {
	m := s.s.Model()
	if m == nil {
		return nil, fmt.Errorf("z3solver: no model available")
	}
	return modelImpl{m: m}, nil
}

func (s *solverImpl) PbEq(terms []smt.Bool, k int) {
	asts := make([]z3.Bool, len(terms))
	coeffs := make([]int, len(terms))
	for i, t := range terms {
		asts[i] = asBool(t)
		coeffs[i] = 1
	}
	s.s.Assert(s.ctx.PBEq(asts, coeffs, k))
}

func (s *solverImpl) AssertSoft(b smt.Bool, weight int) {
	s.s.AssertSoft(asBool(b), weight, "")
}

func (s *solverImpl) PbEqTracked(terms []smt.Bool, k int, tracker smt.Bool) {
	asts := make([]z3.Bool, len(terms))
	coeffs := make([]int, len(terms))
	for i, t := range terms {
		asts[i] = asBool(t)
		coeffs[i] = 1
	}
	t := tracker.(boolTerm)
	s.tracked[t.name] = t.ast
	s.s.AssertAndTrack(s.ctx.PBEq(asts, coeffs, k), t.ast)
}

func (s *solverImpl) Close() {
	s.s = nil
}

type modelImpl struct {
	m *z3.Model
}

func (m modelImpl) EvalBitVec(bv smt.BitVec) (uint64, bool) {
	v := m.m.Eval(asBV(bv), true)
	if v == nil {
		return 0, false
	}
	i, ok := v.(z3.BV).AsInt64()
	if !ok {
		return 0, false
	}
	return uint64(i), true
}

func (m modelImpl) EvalBool(b smt.Bool) (bool, bool) {
	v := m.m.Eval(asBool(b), true)
	if v == nil {
		return false, false
	}
	bl, ok := v.(z3.Bool).AsBool()
	return bl, ok
}
