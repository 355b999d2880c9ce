package weighting

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// GrowthFloor and GrowthCeiling bound raw growth (percent) before scaling
	GrowthFloor   = -50.0
	GrowthCeiling = 200.0

	// NeutralScore is assigned when every candidate shares the same value
	NeutralScore = 50.0

	scoreScale = 100.0
)

// NormalizeExposure passes exposure through; it is already a 0~100 score.
func NormalizeExposure(exposure []float64) []float64 {
	out := make([]float64, len(exposure))
	copy(out, exposure)
	return out
}

// NormalizeMarketCap scales log10(market cap) cross-sectionally to 0~100.
// Caps <= 0 are unknown: excluded from min/max and scored 0.
func NormalizeMarketCap(caps []float64) []float64 {
	out := make([]float64, len(caps))
	known := make([]bool, len(caps))
	logs := make([]float64, 0, len(caps))

	for i, c := range caps {
		if c > 0 && !math.IsInf(c, 1) {
			out[i] = math.Log10(c)
			known[i] = true
			logs = append(logs, out[i])
		}
	}

	if len(logs) == 0 {
		return out
	}

	scaled := minMaxScale(logs)
	j := 0
	for i := range out {
		if !known[i] {
			out[i] = 0
			continue
		}
		out[i] = scaled[j]
		j++
	}

	return out
}

// NormalizeGrowth clips growth to [GrowthFloor, GrowthCeiling] and scales to 0~100
func NormalizeGrowth(growth []float64) []float64 {
	clipped := make([]float64, len(growth))
	for i, g := range growth {
		clipped[i] = clip(g, GrowthFloor, GrowthCeiling)
	}
	return minMaxScale(clipped)
}

// minMaxScale maps values onto [0, 100]; all-identical input maps to NeutralScore
func minMaxScale(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	lo, hi := floats.Min(values), floats.Max(values)
	span := hi - lo
	if span <= 0 {
		for i := range out {
			out[i] = NeutralScore
		}
		return out
	}

	for i, v := range values {
		out[i] = (v - lo) / span * scoreScale
	}
	return out
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
