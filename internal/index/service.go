package index

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/futureindex/internal/contracts"
	"github.com/wonny/futureindex/internal/indexconfig"
	"github.com/wonny/futureindex/internal/marketdata"
	"github.com/wonny/futureindex/internal/universe"
	"github.com/wonny/futureindex/internal/weighting"
	"github.com/wonny/futureindex/pkg/logger"
)

// Enricher fills market data on classified candidates
type Enricher interface {
	Enrich(ctx context.Context, candidates []contracts.Candidate, policy marketdata.GrowthEstimator) (*marketdata.Result, error)
	Invalidate(ctx context.Context, tickers []string) error
}

// BuildOptions controls one Build run
type BuildOptions struct {
	UniversePath  string         // overrides the definition's universe file
	Mode          weighting.Mode // overrides the definition's weighting mode
	RebalanceDate time.Time      // zero → today (UTC)
	Save          bool
	Refresh       bool // drop cached market data for the universe before enriching
}

// BuildResult is a composition plus how its inputs were obtained
type BuildResult struct {
	Composition  *contracts.IndexComposition        `json:"composition"`
	Excluded     []string                           `json:"excluded"` // not relevant per classification
	GrowthSource map[string]marketdata.GrowthSource `json:"growth_source"`
	MissingCap   []string                           `json:"missing_market_cap"`
	Saved        bool                               `json:"saved"`
}

// Service runs the index pipeline: universe → enrich → weight → save → publish
// ⭐ SSOT: IndexComposition 생성은 여기서만
type Service struct {
	enricher  Enricher
	store     contracts.CompositionStore
	publisher contracts.CompositionPublisher
	logger    *logger.Logger
	now       func() time.Time
}

// NewService creates a service. store and publisher may be nil.
func NewService(enricher Enricher, store contracts.CompositionStore, publisher contracts.CompositionPublisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	if enricher == nil {
		enricher = marketdata.NewEnricher(nil, nil, 1, log)
	}
	return &Service{
		enricher:  enricher,
		store:     store,
		publisher: publisher,
		logger:    log.WithComponent("index"),
		now:       time.Now,
	}
}

// Calculate weights records under def and stamps the snapshot metadata
func (s *Service) Calculate(ctx context.Context, def *indexconfig.Index, records []contracts.CompanyRecord, rebalanceDate time.Time) (*contracts.IndexComposition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	engine, err := weighting.NewEngine(def.Weighting, s.logger)
	if err != nil {
		return nil, fmt.Errorf("invalid weighting for %s: %w", def.Name, err)
	}

	constituents, err := engine.Calculate(records)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate %s: %w", def.Name, err)
	}

	hash, err := indexconfig.Hash(def)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if rebalanceDate.IsZero() {
		rebalanceDate = now
	}

	comp := &contracts.IndexComposition{
		RunID:         uuid.NewString(),
		IndexName:     def.Name,
		RebalanceDate: truncateDay(rebalanceDate),
		ConfigHash:    hash,
		Constituents:  constituents,
		Summary:       weighting.Summarize(constituents),
		CreatedAt:     now,
	}

	s.logger.WithFields(map[string]interface{}{
		"index":        comp.IndexName,
		"run_id":       comp.RunID,
		"constituents": comp.Summary.Count,
		"max_weight":   comp.Summary.MaxWeight,
	}).Info("Index composition calculated")

	return comp, nil
}

// Build loads the universe, enriches it and calculates the composition.
// With opts.Save the result is persisted and then published.
func (s *Service) Build(ctx context.Context, def *indexconfig.Index, opts BuildOptions) (*BuildResult, error) {
	path := opts.UniversePath
	if path == "" {
		path = def.UniversePath()
	}

	u, err := universe.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe for %s: %w", def.Name, err)
	}

	if opts.Refresh {
		tickers := make([]string, 0, u.Len())
		for _, c := range u.Candidates() {
			tickers = append(tickers, c.Record.Ticker)
		}
		if err := s.enricher.Invalidate(ctx, tickers); err != nil {
			return nil, fmt.Errorf("failed to refresh market data: %w", err)
		}
		s.logger.WithFields(map[string]interface{}{
			"index":   def.Name,
			"tickers": len(tickers),
		}).Info("Cached market data invalidated")
	}

	result, err := s.Preview(ctx, def, u, opts)
	if err != nil {
		return nil, err
	}

	if opts.Save {
		if err := s.Save(ctx, result.Composition); err != nil {
			return nil, err
		}
		result.Saved = true
	}

	return result, nil
}

// Preview enriches and weights an already loaded universe without saving.
// opts.UniversePath and opts.Save are ignored.
func (s *Service) Preview(ctx context.Context, def *indexconfig.Index, u *universe.Universe, opts BuildOptions) (*BuildResult, error) {
	effective := *def
	if opts.Mode != "" {
		mode, err := weighting.ParseMode(string(opts.Mode))
		if err != nil {
			return nil, err
		}
		effective.Weighting = effective.Weighting.WithMode(mode)
	}

	enriched, err := s.enricher.Enrich(ctx, u.Candidates(), def.Growth)
	if err != nil {
		return nil, err
	}

	comp, err := s.Calculate(ctx, &effective, enriched.Records, opts.RebalanceDate)
	if err != nil {
		return nil, err
	}

	return &BuildResult{
		Composition:  comp,
		Excluded:     u.Excluded(),
		GrowthSource: enriched.GrowthSource,
		MissingCap:   enriched.MissingCap,
	}, nil
}

// Save persists comp and publishes it to subscribers
func (s *Service) Save(ctx context.Context, comp *contracts.IndexComposition) error {
	if s.store == nil {
		return fmt.Errorf("no composition store configured")
	}
	if err := s.store.SaveComposition(ctx, comp); err != nil {
		return fmt.Errorf("failed to save composition: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"index":          comp.IndexName,
		"run_id":         comp.RunID,
		"rebalance_date": comp.RebalanceDate.Format(indexconfig.DateLayout),
	}).Info("Index composition saved")

	if s.publisher != nil {
		s.publisher.Publish(comp)
	}
	return nil
}

// Latest returns the most recent stored composition
func (s *Service) Latest(ctx context.Context, name string) (*contracts.IndexComposition, error) {
	if s.store == nil {
		return nil, fmt.Errorf("no composition store configured")
	}
	return s.store.GetLatestComposition(ctx, name)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
