package contracts

import (
	"time"
)

// Constituent is one weighted member of a computed index
// ⭐ SSOT: 가중치 계산 결과 → 저장/API/리밸런싱 전달
type Constituent struct {
	Rank        int      `json:"rank"` // 1-based, after sorting by weight
	Ticker      string   `json:"ticker"`
	Name        string   `json:"name"`
	MarketCap   float64  `json:"market_cap"`
	ExposurePct float64  `json:"exposure_pct"`
	GrowthRate  float64  `json:"growth_rate"`
	CapScore    float64  `json:"cap_score"`    // normalized 0 ~ 100
	GrowthScore float64  `json:"growth_score"` // normalized 0 ~ 100
	RawScore    float64  `json:"raw_score"`    // blended, before weight conversion
	Weight      float64  `json:"weight"`       // final weight (0.0 ~ 1.0)
	Segments    []string `json:"segments,omitempty"`
}

// Summary aggregates a constituent set
type Summary struct {
	Count                int     `json:"count"`
	TotalWeight          float64 `json:"total_weight"`
	WeightedAvgExposure  float64 `json:"weighted_avg_exposure_pct"`
	WeightedAvgGrowth    float64 `json:"weighted_avg_growth"`
	WeightedAvgMarketCap float64 `json:"weighted_avg_market_cap"`
	MaxWeight            float64 `json:"max_weight"`
	MinWeight            float64 `json:"min_weight"`
}

// IndexComposition is the canonical, immutable snapshot of one weighting run
type IndexComposition struct {
	RunID         string        `json:"run_id"`
	IndexName     string        `json:"index_name"`
	RebalanceDate time.Time     `json:"rebalance_date"`
	ConfigHash    string        `json:"config_hash"`
	Constituents  []Constituent `json:"constituents"`
	Summary       Summary       `json:"summary"`
	CreatedAt     time.Time     `json:"created_at"`
}

// TotalWeight returns the sum of all constituent weights
func (c *IndexComposition) TotalWeight() float64 {
	total := 0.0
	for _, m := range c.Constituents {
		total += m.Weight
	}
	return total
}

// Count returns the number of constituents
func (c *IndexComposition) Count() int {
	return len(c.Constituents)
}

// Get finds a constituent by ticker
func (c *IndexComposition) Get(ticker string) (*Constituent, bool) {
	for i := range c.Constituents {
		if c.Constituents[i].Ticker == ticker {
			return &c.Constituents[i], true
		}
	}
	return nil, false
}

// Weights returns ticker → weight
func (c *IndexComposition) Weights() map[string]float64 {
	out := make(map[string]float64, len(c.Constituents))
	for _, m := range c.Constituents {
		out[m.Ticker] = m.Weight
	}
	return out
}

// IndexInfo describes an index for listings
type IndexInfo struct {
	Name            string     `json:"name"`
	DisplayName     string     `json:"display_name"`
	Description     string     `json:"description"`
	NumConstituents int        `json:"num_constituents"`
	TotalMarketCap  float64    `json:"total_market_cap"`
	LastRebalance   *time.Time `json:"last_rebalance,omitempty"`
	NextRebalance   *time.Time `json:"next_rebalance,omitempty"`
	InceptionDate   time.Time  `json:"inception_date"`
}

// PerformancePoint is one daily index level
type PerformancePoint struct {
	Date        time.Time `json:"date"`
	Value       float64   `json:"value"`
	DailyReturn *float64  `json:"daily_return,omitempty"`
}
