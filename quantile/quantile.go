// Package quantile estimates interpolated quantiles from unsorted numeric
// samples. Read-outs sort a private snapshot of the input, never the input
// itself, so a sampler's live buffer stays untouched by finalization.
package quantile

import (
	"math"
	"slices"

	"github.com/go-skim/skim"
)

// Interpolated estimates the level-quantile of sample by linear interpolation
// between adjacent order statistics. Levels outside [0, 1] are clamped. An
// empty sample yields NaN, which callers producing integral results narrow
// to zero.
func Interpolated[T skim.Value](sample []T, level float64) float64 {
	if len(sample) == 0 {
		return math.NaN()
	}
	scratch := slices.Clone(sample)
	slices.Sort(scratch)
	return fromSorted(scratch, clamp(level))
}

// Multi estimates one quantile per level from a single sorted snapshot,
// appending results to out in the caller's level order. Levels need not be
// sorted.
func Multi[T skim.Value](sample []T, levels []float64, out []float64) []float64 {
	if out == nil {
		out = make([]float64, 0, len(levels))
	}
	if len(sample) == 0 {
		for range levels {
			out = append(out, math.NaN())
		}
		return out
	}
	scratch := slices.Clone(sample)
	slices.Sort(scratch)
	for _, level := range levels {
		out = append(out, fromSorted(scratch, clamp(level)))
	}
	return out
}

// fromSorted interpolates the level-quantile of an ascending non-empty sample
func fromSorted[T skim.Value](sorted []T, level float64) float64 {
	rank := level * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return float64(sorted[lo])
	}
	frac := rank - float64(lo)
	return float64(sorted[lo])*(1-frac) + float64(sorted[hi])*frac
}

// clamp pins level into [0, 1]; NaN pins low
func clamp(level float64) float64 {
	if !(level >= 0) {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}
