package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/futureindex/internal/contracts"
	"github.com/wonny/futureindex/pkg/logger"
	"github.com/wonny/futureindex/pkg/redis"
)

// revenuePeriods is how many annual periods are requested for growth
const revenuePeriods = 2

// GrowthEstimator supplies a policy growth rate when revenues cannot be used
type GrowthEstimator interface {
	Estimate(ticker string) float64
}

// GrowthSource tells how a record's growth rate was obtained
type GrowthSource string

const (
	GrowthFromUniverse GrowthSource = "universe"
	GrowthFromRevenues GrowthSource = "revenues"
	GrowthEstimated    GrowthSource = "estimate"
)

// Result is the output of one enrichment pass
type Result struct {
	Records      []contracts.CompanyRecord
	GrowthSource map[string]GrowthSource
	MissingCap   []string // tickers left with an unknown market cap
}

// Enricher fills market cap and growth on classified candidates.
// Fetch failures never surface: the cap stays unknown and growth falls back
// to the policy estimate.
type Enricher struct {
	source      contracts.MarketDataSource
	cache       *redis.Cache
	concurrency int
	logger      *logger.Logger
}

// NewEnricher creates an enricher; source and cache may be nil
func NewEnricher(source contracts.MarketDataSource, cache *redis.Cache, concurrency int, log *logger.Logger) *Enricher {
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Enricher{
		source:      source,
		cache:       cache,
		concurrency: concurrency,
		logger:      log.WithComponent("enricher"),
	}
}

// Enrich returns records in candidate order. Only context cancellation is an error.
func (e *Enricher) Enrich(ctx context.Context, candidates []contracts.Candidate, policy GrowthEstimator) (*Result, error) {
	records := make([]contracts.CompanyRecord, len(candidates))
	sources := make([]GrowthSource, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i], sources[i] = e.enrichOne(gctx, candidates[i], policy)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("enrichment cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("enrichment cancelled: %w", err)
	}

	result := &Result{
		Records:      records,
		GrowthSource: make(map[string]GrowthSource, len(records)),
	}
	for i, r := range records {
		result.GrowthSource[r.Ticker] = sources[i]
		if !r.HasMarketCap() {
			result.MissingCap = append(result.MissingCap, r.Ticker)
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"candidates":  len(records),
		"missing_cap": len(result.MissingCap),
	}).Info("Market data enrichment completed")

	return result, nil
}

func (e *Enricher) enrichOne(ctx context.Context, c contracts.Candidate, policy GrowthEstimator) (contracts.CompanyRecord, GrowthSource) {
	rec := c.Record.Clone()
	log := e.logger.WithField("ticker", rec.Ticker)

	if !rec.HasMarketCap() && e.source != nil {
		mcap, err := e.marketCap(ctx, rec.Ticker)
		if err != nil {
			log.WithError(err).Warn("Market cap unavailable, treating as unknown")
		} else {
			rec.MarketCap = mcap
		}
	}

	if c.GrowthKnown {
		return rec, GrowthFromUniverse
	}

	if e.source != nil {
		periods, err := e.revenues(ctx, rec.Ticker)
		if err != nil {
			log.WithError(err).Warn("Revenues unavailable, using growth estimate")
		} else if growth, ok := RevenueGrowth(periods); ok {
			rec.GrowthRate = growth
			return rec, GrowthFromRevenues
		}
	}

	rec.GrowthRate = policy.Estimate(rec.Ticker)
	log.WithField("growth_rate", rec.GrowthRate).Debug("Using estimated growth")
	return rec, GrowthEstimated
}

func (e *Enricher) marketCap(ctx context.Context, ticker string) (float64, error) {
	key := redis.MarketCapKey(ticker)

	var cached float64
	if found, err := e.cache.Get(ctx, key, &cached); err == nil && found {
		return cached, nil
	}

	mcap, err := e.source.MarketCap(ctx, ticker)
	if err != nil {
		return 0, err
	}
	if mcap > 0 {
		e.store(ctx, key, mcap, redis.TTLMarketCap)
	}
	return mcap, nil
}

func (e *Enricher) revenues(ctx context.Context, ticker string) ([]contracts.RevenuePeriod, error) {
	key := redis.RevenuesKey(ticker, revenuePeriods)

	var cached []contracts.RevenuePeriod
	if found, err := e.cache.Get(ctx, key, &cached); err == nil && found {
		return cached, nil
	}

	periods, err := e.source.AnnualRevenues(ctx, ticker, revenuePeriods)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	e.store(ctx, key, periods, redis.TTLRevenues)
	return periods, nil
}

// Invalidate drops cached market cap and revenues for tickers so the next
// Enrich refetches them
func (e *Enricher) Invalidate(ctx context.Context, tickers []string) error {
	var errs []error
	for _, t := range tickers {
		for _, key := range []string{redis.MarketCapKey(t), redis.RevenuesKey(t, revenuePeriods)} {
			if err := e.cache.Delete(ctx, key); err != nil {
				errs = append(errs, fmt.Errorf("failed to invalidate %s: %w", key, err))
			}
		}
	}
	return errors.Join(errs...)
}

// store writes to the cache; a cache failure only costs a refetch
func (e *Enricher) store(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if err := e.cache.Set(ctx, key, value, ttl); err != nil {
		e.logger.WithError(err).WithField("key", key).Warn("Failed to cache market data")
	}
}
