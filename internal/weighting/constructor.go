package weighting

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/wonny/futureindex/internal/contracts"
	"github.com/wonny/futureindex/pkg/logger"
)

// Engine turns candidate records into constrained index weights
// ⭐ SSOT: 정규화 → 블렌딩 → 비중 변환 → 제약 적용은 여기서만
//
// Engine holds no mutable state and is safe for concurrent use.
type Engine struct {
	config Config
	logger *logger.Logger
}

// NewEngine validates cfg and creates an engine
func NewEngine(cfg Config, log *logger.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Engine{
		config: cfg,
		logger: log.WithComponent("weighting"),
	}, nil
}

// Config returns the engine's configuration
func (e *Engine) Config() Config {
	return e.config
}

// Calculate validates records and returns constituents sorted by descending
// weight (ties keep input order). Empty input yields an empty slice.
func (e *Engine) Calculate(records []contracts.CompanyRecord) ([]contracts.Constituent, error) {
	if err := contracts.ValidateRecords(records); err != nil {
		return nil, fmt.Errorf("failed to validate records: %w", err)
	}

	n := len(records)
	if n == 0 {
		return []contracts.Constituent{}, nil
	}

	exposure := make([]float64, n)
	caps := make([]float64, n)
	growth := make([]float64, n)
	for i, r := range records {
		exposure[i] = r.ExposurePct
		caps[i] = r.MarketCap
		growth[i] = r.GrowthRate
	}

	// 1. Normalize
	expScores := NormalizeExposure(exposure)
	capScores := NormalizeMarketCap(caps)
	growthScores := NormalizeGrowth(growth)

	// 2. Blend
	raw := e.blend(expScores, capScores, growthScores)

	// 3. Raw score → weight
	weights := e.toWeights(raw)

	// 4. Position bounds
	weights = e.applyConstraints(weights)

	constituents := make([]contracts.Constituent, n)
	for i, r := range records {
		rec := r.Clone()
		constituents[i] = contracts.Constituent{
			Ticker:      rec.Ticker,
			Name:        rec.Name,
			MarketCap:   rec.MarketCap,
			ExposurePct: rec.ExposurePct,
			GrowthRate:  rec.GrowthRate,
			CapScore:    capScores[i],
			GrowthScore: growthScores[i],
			RawScore:    raw[i],
			Weight:      weights[i],
			Segments:    rec.Segments,
		}
	}

	slices.SortStableFunc(constituents, func(a, b contracts.Constituent) int {
		return cmp.Compare(b.Weight, a.Weight)
	})
	for i := range constituents {
		constituents[i].Rank = i + 1
	}

	e.logger.WithFields(map[string]interface{}{
		"count":      n,
		"mode":       string(e.config.mode()),
		"max_weight": constituents[0].Weight,
		"min_weight": constituents[n-1].Weight,
	}).Debug("Weights calculated")

	return constituents, nil
}

// blend computes the linear combination of the three normalized factors
func (e *Engine) blend(exposure, capScore, growth []float64) []float64 {
	raw := make([]float64, len(exposure))
	for i := range raw {
		raw[i] = exposure[i]*e.config.ExposureWeight +
			capScore[i]*e.config.MarketCapWeight +
			growth[i]*e.config.GrowthWeight
	}
	return raw
}

// toWeights divides each score by the total.
// A non-positive or non-finite total falls back to equal weight.
func (e *Engine) toWeights(raw []float64) []float64 {
	n := len(raw)
	weights := make([]float64, n)

	total := 0.0
	for _, s := range raw {
		total += s
	}

	if !(total > 0) || math.IsInf(total, 0) {
		e.logger.WithField("total_score", total).Warn("Non-positive total score, using equal weight")
		for i := range weights {
			weights[i] = 1.0 / float64(n)
		}
		return weights
	}

	for i, s := range raw {
		weights[i] = s / total
	}
	return weights
}

// applyConstraints reconciles weights with [MinWeight, MaxWeight]
func (e *Engine) applyConstraints(weights []float64) []float64 {
	lo, hi := e.config.MinWeight, e.config.MaxWeight

	if e.config.mode() == ModeWaterFill {
		if out, ok := waterFill(weights, lo, hi); ok {
			return out
		}
		e.logger.WithFields(map[string]interface{}{
			"count":        len(weights),
			"min_position": lo,
			"max_position": hi,
		}).Debug("Bounds infeasible for water-fill, using clip-renormalize")
	}

	return clipRenormalize(weights, lo, hi)
}
