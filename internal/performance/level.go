package performance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/futureindex/internal/contracts"
	"github.com/wonny/futureindex/pkg/logger"
)

// BaseValue is the index level on the first tracked day
const BaseValue = 1000.0

// Levels computes a constant-weight index series from constituent closes.
// The day's return is Σ w·(close/previous close − 1) over constituents
// priced on both their previous day and this one; others contribute 0.
// The first date carries start and no daily return.
func Levels(weights map[string]float64, closes map[string][]contracts.PriceBar, start float64) []contracts.PerformancePoint {
	byDate := make(map[time.Time]map[string]float64)
	for ticker, bars := range closes {
		if _, weighted := weights[ticker]; !weighted {
			continue
		}
		for _, b := range bars {
			if b.Close <= 0 {
				continue
			}
			row, ok := byDate[b.Date]
			if !ok {
				row = make(map[string]float64)
				byDate[b.Date] = row
			}
			row[ticker] = b.Close
		}
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	points := make([]contracts.PerformancePoint, 0, len(dates))
	lastClose := make(map[string]float64, len(weights))
	value := start

	for i, d := range dates {
		row := byDate[d]
		tickers := make([]string, 0, len(row))
		for ticker := range row {
			tickers = append(tickers, ticker)
		}
		sort.Strings(tickers)

		ret := 0.0
		for _, ticker := range tickers {
			c := row[ticker]
			if prev, ok := lastClose[ticker]; ok {
				ret += weights[ticker] * (c/prev - 1)
			}
			lastClose[ticker] = c
		}

		if i == 0 {
			points = append(points, contracts.PerformancePoint{Date: d, Value: value})
			continue
		}

		value *= 1 + ret
		r := ret
		points = append(points, contracts.PerformancePoint{Date: d, Value: value, DailyReturn: &r})
	}

	return points
}

// Tracker fetches closes for a composition and turns them into index levels
type Tracker struct {
	prices      contracts.PriceSource
	concurrency int
	logger      *logger.Logger
}

// NewTracker creates a tracker over a price source
func NewTracker(prices contracts.PriceSource, concurrency int, log *logger.Logger) *Tracker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Tracker{prices: prices, concurrency: concurrency, logger: log.WithComponent("tracker")}
}

// Track computes levels for comp's weights over [from, to].
// Constituents whose prices cannot be fetched are logged and contribute 0.
func (t *Tracker) Track(ctx context.Context, comp *contracts.IndexComposition, from, to time.Time, start float64) ([]contracts.PerformancePoint, error) {
	var mu sync.Mutex
	closes := make(map[string][]contracts.PriceBar, comp.Count())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)

	for _, c := range comp.Constituents {
		ticker := c.Ticker
		g.Go(func() error {
			bars, err := t.prices.DailyCloses(gctx, ticker, from, to)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				t.logger.WithError(err).WithField("ticker", ticker).Warn("Prices unavailable, excluded from index level")
				return nil
			}
			mu.Lock()
			closes[ticker] = bars
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch closes: %w", err)
	}

	points := Levels(comp.Weights(), closes, start)
	t.logger.WithFields(map[string]interface{}{
		"index":  comp.IndexName,
		"points": len(points),
	}).Info("Index levels computed")

	return points, nil
}
