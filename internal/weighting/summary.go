package weighting

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/futureindex/internal/contracts"
)

// Summarize aggregates a constituent set. Empty input returns a zero Summary.
func Summarize(constituents []contracts.Constituent) contracts.Summary {
	n := len(constituents)
	if n == 0 {
		return contracts.Summary{}
	}

	weights := make([]float64, n)
	exposure := make([]float64, n)
	growth := make([]float64, n)
	caps := make([]float64, n)
	for i, c := range constituents {
		weights[i] = c.Weight
		exposure[i] = c.ExposurePct
		growth[i] = c.GrowthRate
		caps[i] = c.MarketCap
	}

	summary := contracts.Summary{
		Count:       n,
		TotalWeight: floats.Sum(weights),
		MaxWeight:   floats.Max(weights),
		MinWeight:   floats.Min(weights),
	}

	// stat.Mean divides by Σweights; a zero total would give NaN
	if summary.TotalWeight > 0 {
		summary.WeightedAvgExposure = stat.Mean(exposure, weights)
		summary.WeightedAvgGrowth = stat.Mean(growth, weights)
		summary.WeightedAvgMarketCap = stat.Mean(caps, weights)
	}

	return summary
}
