package weighting

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// feasibilityEps absorbs float noise in min*n <= 1 <= max*n
const feasibilityEps = 1e-12

// clipRenormalize clips every weight to [lo, hi] then rescales to sum 1.
// Renormalizing can push a clipped weight back outside its bound.
func clipRenormalize(weights []float64, lo, hi float64) []float64 {
	out := make([]float64, len(weights))
	for i, w := range weights {
		out[i] = clip(w, lo, hi)
	}

	total := floats.Sum(out)
	if total <= 0 {
		return out
	}

	// divide rather than scale by 1/total: a singleton must come out exactly 1
	for i := range out {
		out[i] /= total
	}
	return out
}

// feasible reports whether n weights in [lo, hi] can sum to 1
func feasible(n int, lo, hi float64) bool {
	fn := float64(n)
	return lo*fn <= 1+feasibilityEps && hi*fn >= 1-feasibilityEps
}

// waterFill pins weights at their violated bound and spreads the remaining
// mass over the free names in proportion to their unconstrained weight.
// Upper violators are pinned before lower ones; each round pins at least one
// name, so it finishes within n rounds. The second result is false when the
// bounds cannot be met, in which case the caller falls back.
func waterFill(weights []float64, lo, hi float64) ([]float64, bool) {
	n := len(weights)
	if n == 0 || !feasible(n, lo, hi) {
		return nil, false
	}

	out := make([]float64, n)
	pinned := make([]bool, n)

	for round := 0; round <= n; round++ {
		remaining := 1.0
		base := 0.0
		free := 0
		for i := range weights {
			if pinned[i] {
				remaining -= out[i]
				continue
			}
			base += weights[i]
			free++
		}

		if free == 0 {
			if math.Abs(remaining) > feasibilityEps {
				return nil, false
			}
			return out, true
		}

		for i := range weights {
			if pinned[i] {
				continue
			}
			if base > 0 {
				out[i] = weights[i] / base * remaining
			} else {
				out[i] = remaining / float64(free)
			}
		}

		if !pinViolations(out, pinned, lo, hi) {
			return out, true
		}
	}

	return nil, false
}

// pinViolations pins free weights above hi; if there are none, those below lo.
// Returns true when anything was pinned.
func pinViolations(out []float64, pinned []bool, lo, hi float64) bool {
	changed := false
	for i, w := range out {
		if !pinned[i] && w > hi {
			out[i] = hi
			pinned[i] = true
			changed = true
		}
	}
	if changed {
		return true
	}

	for i, w := range out {
		if !pinned[i] && w < lo {
			out[i] = lo
			pinned[i] = true
			changed = true
		}
	}
	return changed
}
