package refprogram

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ropforge/ropforge/internal/arch"
)

func TestPartitionsCountsAllGroupings(t *testing.T) {
	items := []int{1, 2, 3}
	var groupings [][][]int
	Partitions(items, func(g [][]int) bool {
		groupings = append(groupings, append([][]int(nil), g...))
		return true
	})
	// n=3 items yields 2^(n-1) = 4 contiguous groupings.
	require.Len(t, groupings, 4)

	for _, g := range groupings {
		var flat []int
		for _, run := range g {
			flat = append(flat, run...)
		}
		require.Equal(t, items, flat, "grouping %v must reconstruct the original items in order", g)
	}
}

func TestPartitionsStopsOnFalse(t *testing.T) {
	items := []int{1, 2, 3}
	count := 0
	Partitions(items, func(g [][]int) bool {
		count++
		return false
	})
	require.Equal(t, 1, count, "expected iteration to stop after the first yield")
}

func TestPartitionsEmptyYieldsNothing(t *testing.T) {
	called := false
	Partitions([]int{}, func(g [][]int) bool {
		called = true
		return true
	})
	require.False(t, called, "an empty input must yield no groupings")
}

func TestProgramPartitionsCombinesSteps(t *testing.T) {
	steps := []Step{
		NewStep(arch.Instruction{Address: 0, Length: 4}),
		NewStep(arch.Instruction{Address: 4, Length: 4}),
	}
	p := New(steps, NewValuation(nil))
	var seen int
	p.Partitions()(func(part *Program) bool {
		seen++
		require.GreaterOrEqual(t, part.Len(), 1)
		require.LessOrEqual(t, part.Len(), 2)
		require.Len(t, part.Instructions(), 2, "a partition must not lose instructions")
		return true
	})
	require.Equal(t, 2, seen, "a 2-step program has 2 partitions")
}
