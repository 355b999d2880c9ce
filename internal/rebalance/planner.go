package rebalance

import (
	"cmp"
	"math"
	"slices"

	"github.com/wonny/futureindex/internal/contracts"
	"github.com/wonny/futureindex/pkg/logger"
)

// Action is what happens to a ticker's weight at rebalance
type Action string

const (
	ActionAdd      Action = "ADD"
	ActionRemove   Action = "REMOVE"
	ActionIncrease Action = "INCREASE"
	ActionDecrease Action = "DECREASE"
	ActionHold     Action = "HOLD"
)

// DefaultHoldThreshold treats weight moves under 5bp as HOLD
const DefaultHoldThreshold = 0.0005

// WeightChange is one ticker's move from the current to the target weight
type WeightChange struct {
	Ticker string  `json:"ticker"`
	Name   string  `json:"name"`
	From   float64 `json:"from_weight"`
	To     float64 `json:"to_weight"`
	Delta  float64 `json:"delta"`
	Action Action  `json:"action"`
}

// Plan is the full set of weight changes between two compositions
type Plan struct {
	IndexName string         `json:"index_name"`
	Changes   []WeightChange `json:"changes"`
	Turnover  float64        `json:"turnover"` // one-way, Σ|Δ|/2
	Added     int            `json:"added"`
	Removed   int            `json:"removed"`
}

// Planner diffs compositions
// ⭐ SSOT: 리밸런싱 비중 변화 계산은 여기서만
type Planner struct {
	holdThreshold float64
	logger        *logger.Logger
}

// NewPlanner creates a planner; threshold <= 0 uses DefaultHoldThreshold
func NewPlanner(holdThreshold float64, log *logger.Logger) *Planner {
	if holdThreshold <= 0 {
		holdThreshold = DefaultHoldThreshold
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Planner{holdThreshold: holdThreshold, logger: log.WithComponent("rebalance")}
}

// Plan diffs current (nil for a first build) against target.
// Changes are sorted by |Δ| descending, ties by ticker.
func (p *Planner) Plan(current, target *contracts.IndexComposition) *Plan {
	plan := &Plan{IndexName: target.IndexName}

	from := map[string]contracts.Constituent{}
	if current != nil {
		for _, c := range current.Constituents {
			from[c.Ticker] = c
		}
	}

	seen := make(map[string]struct{}, len(target.Constituents))
	for _, t := range target.Constituents {
		seen[t.Ticker] = struct{}{}
		prev, held := from[t.Ticker]

		change := WeightChange{Ticker: t.Ticker, Name: t.Name, To: t.Weight}
		if held {
			change.From = prev.Weight
		}
		change.Delta = change.To - change.From
		change.Action = p.classify(held, change.Delta)
		plan.Changes = append(plan.Changes, change)
	}

	if current != nil {
		for _, c := range current.Constituents {
			if _, ok := seen[c.Ticker]; ok {
				continue
			}
			plan.Changes = append(plan.Changes, WeightChange{
				Ticker: c.Ticker,
				Name:   c.Name,
				From:   c.Weight,
				Delta:  -c.Weight,
				Action: ActionRemove,
			})
		}
	}

	total := 0.0
	for _, c := range plan.Changes {
		total += math.Abs(c.Delta)
		switch c.Action {
		case ActionAdd:
			plan.Added++
		case ActionRemove:
			plan.Removed++
		}
	}
	plan.Turnover = total / 2

	slices.SortStableFunc(plan.Changes, func(a, b WeightChange) int {
		if c := cmp.Compare(math.Abs(b.Delta), math.Abs(a.Delta)); c != 0 {
			return c
		}
		return cmp.Compare(a.Ticker, b.Ticker)
	})

	p.logger.WithFields(map[string]interface{}{
		"index":    plan.IndexName,
		"changes":  len(plan.Changes),
		"added":    plan.Added,
		"removed":  plan.Removed,
		"turnover": plan.Turnover,
	}).Info("Rebalance plan created")

	return plan
}

// classify labels a ticker present in the target
func (p *Planner) classify(held bool, delta float64) Action {
	switch {
	case !held:
		return ActionAdd
	case math.Abs(delta) < p.holdThreshold:
		return ActionHold
	case delta > 0:
		return ActionIncrease
	default:
		return ActionDecrease
	}
}
