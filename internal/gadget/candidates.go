package gadget

import (
	"github.com/ropforge/ropforge/internal/arch"
	"github.com/ropforge/ropforge/internal/modeling"
	"github.com/ropforge/ropforge/internal/rerr"
	"github.com/ropforge/ropforge/internal/smt"
)

// Builder accumulates a bounded random sample of candidate gadgets per
// reference-program slot, the Go analogue of CandidateBuilder.
type Builder struct {
	RandomSampleSize int
}

// WithRandomSampleSize sets the per-slot candidate cap and returns the
// builder for chaining, mirroring the original's builder-style API.
func (b Builder) WithRandomSampleSize(size int) Builder {
	b.RandomSampleSize = size
	return b
}

// Build consumes a sequence of per-gadget "which slots does this gadget
// fill" rows (as produced by RandomCandidatesForTrace) and accumulates up
// to RandomSampleSize gadgets per slot, stopping once every slot is
// full. It fails with UnsimulatedOperation if any slot never received a
// single candidate.
func (b Builder) Build(rows func(yield func([]*Gadget) bool)) (*Candidates, error) {
	var candidates [][]Gadget
	rows(func(row []*Gadget) bool {
		if len(row) != len(candidates) {
			candidates = make([][]Gadget, len(row))
		}
		for i, g := range row {
			if g == nil {
				continue
			}
			if len(candidates[i]) < b.RandomSampleSize {
				candidates[i] = append(candidates[i], *g)
			}
		}
		for _, c := range candidates {
			if len(c) < b.RandomSampleSize {
				return true
			}
		}
		return false
	})

	if len(candidates) == 0 {
		return nil, &rerr.UnsimulatedOperation{Index: 0}
	}
	for i, c := range candidates {
		if len(c) == 0 {
			return nil, &rerr.UnsimulatedOperation{Index: i}
		}
	}
	return &Candidates{Slots: candidates}, nil
}

// Candidates is the per-slot candidate gadget table produced for a
// reference program, ready to be modeled for the theory.
type Candidates struct {
	Slots [][]Gadget
}

// Model lifts every candidate in every slot into a ModeledBlock, the Go
// analogue of Candidates::model.
func (c *Candidates) Model(ctx smt.Context, info arch.ArchInfoProvider) ([][]*modeling.ModeledBlock, error) {
	result := make([][]*modeling.ModeledBlock, len(c.Slots))
	for i, slot := range c.Slots {
		modeled := make([]*modeling.ModeledBlock, len(slot))
		for j, g := range slot {
			mb, err := modeling.ModelBlock(ctx, info, g.Instructions)
			if err != nil {
				return nil, err
			}
			modeled[j] = mb
		}
		result[i] = modeled
	}
	return result, nil
}
