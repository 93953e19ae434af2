// Package varnode defines the address-space data model shared by every
// layer of the synthesis engine: the (space, offset, size) triples that
// name slices of registers, RAM, constants, and temporaries, and the
// "generalized" direct/indirect distinction used throughout signature
// filtering and semantic modeling.
package varnode

import "fmt"

// SpaceType classifies an address space the way the external lifter
// reports it. The engine branches on two types only: processor
// (register-like) spaces in signature filtering and constant spaces in
// modeling; the rest round-trip as opaque values.
type SpaceType int

const (
	SpaceConstant SpaceType = iota
	SpaceProcessor
	SpaceRAM
	SpaceCode
	SpaceUnique
	SpaceOther
)

// SpaceInfo describes one named address space: its index (as referenced by
// VarNode.Space), word size, and endianness.
type SpaceInfo struct {
	Name        string
	Index       int
	Type        SpaceType
	WordSize    int
	BigEndian   bool
	AddressSize int
}

// SpaceManager exposes arch-level address-space metadata. Every component
// that needs to reason about which space a varnode lives in (signature
// filtering, pointer-range invariants, memory valuation) takes one of
// these rather than a concrete library or arch-info type.
type SpaceManager interface {
	GetSpaceInfo(idx int) (SpaceInfo, bool)
	GetAllSpaceInfo() []SpaceInfo
	GetCodeSpaceIndex() int
}

// VarNode is a direct reference to a slice of an address space:
// (space, offset, size_bytes).
type VarNode struct {
	Space  int
	Offset uint64
	Size   int
}

// Covers reports whether vn fully contains other: same space, and other's
// byte range is a subrange of vn's.
func (vn VarNode) Covers(other VarNode) bool {
	if vn.Space != other.Space {
		return false
	}
	return other.Offset >= vn.Offset && other.End() <= vn.End()
}

// End returns the first offset past the varnode's range.
func (vn VarNode) End() uint64 { return vn.Offset + uint64(vn.Size) }

func (vn VarNode) String() string {
	return fmt.Sprintf("(space=%d, off=0x%x, size=%d)", vn.Space, vn.Offset, vn.Size)
}

// IndirectVarNode names a value read through a pointer: the varnode
// holding the pointer, the space the pointer addresses into, the access
// width of the indirected read, and a byte offset added to the pointer
// before dereferencing (used to name the distinct bytes of a
// pointed-to string one at a time).
type IndirectVarNode struct {
	PointerLocation VarNode
	PointerSpace    int
	AccessSizeBytes int
	Offset          uint64
}

func (i IndirectVarNode) String() string {
	return fmt.Sprintf("*%s+%d[space=%d, size=%d]", i.PointerLocation, i.Offset, i.PointerSpace, i.AccessSizeBytes)
}

// GeneralizedVarNode is either a Direct varnode or an Indirect
// (pointer + access size) reference — the unit that IR-op inputs/outputs
// are expressed over.
type GeneralizedVarNode struct {
	Direct   *VarNode
	Indirect *IndirectVarNode
}

// Dir builds a direct GeneralizedVarNode.
func Dir(vn VarNode) GeneralizedVarNode { return GeneralizedVarNode{Direct: &vn} }

// Ind builds an indirect GeneralizedVarNode.
func Ind(ivn IndirectVarNode) GeneralizedVarNode { return GeneralizedVarNode{Indirect: &ivn} }

// IsDirect reports whether this is a direct reference.
func (g GeneralizedVarNode) IsDirect() bool { return g.Direct != nil }

// Equal reports pointwise equality; used for op-equality comparisons.
func (g GeneralizedVarNode) Equal(o GeneralizedVarNode) bool {
	switch {
	case g.Direct != nil && o.Direct != nil:
		return *g.Direct == *o.Direct
	case g.Indirect != nil && o.Indirect != nil:
		return g.Indirect.PointerLocation == o.Indirect.PointerLocation &&
			g.Indirect.PointerSpace == o.Indirect.PointerSpace &&
			g.Indirect.AccessSizeBytes == o.Indirect.AccessSizeBytes &&
			g.Indirect.Offset == o.Indirect.Offset
	default:
		return false
	}
}

func (g GeneralizedVarNode) String() string {
	if g.Direct != nil {
		return g.Direct.String()
	}
	if g.Indirect != nil {
		return g.Indirect.String()
	}
	return "<nil-varnode>"
}

// CoversSet reports whether every element of others is covered by some
// element of self, per spec §4.2: a direct output is covered by a direct
// output containing it; an indirect output is covered by an indirect
// output whose pointer location covers the other's and whose access size
// is at least as large.
func CoversSet(self, others []GeneralizedVarNode) bool {
	var directs []VarNode
	var indirects []IndirectVarNode
	for _, s := range self {
		if s.Direct != nil {
			directs = append(directs, *s.Direct)
		}
		if s.Indirect != nil {
			indirects = append(indirects, *s.Indirect)
		}
	}
	for _, o := range others {
		switch {
		case o.Direct != nil:
			covered := false
			for _, d := range directs {
				if d.Covers(*o.Direct) {
					covered = true
					break
				}
			}
			if !covered {
				return false
			}
		case o.Indirect != nil:
			covered := false
			for _, ind := range indirects {
				if ind.PointerLocation.Covers(o.Indirect.PointerLocation) &&
					ind.AccessSizeBytes >= o.Indirect.AccessSizeBytes {
					covered = true
					break
				}
			}
			if !covered {
				return false
			}
		}
	}
	return true
}
