package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/futureindex/internal/api"
	"github.com/wonny/futureindex/internal/contracts"
	"github.com/wonny/futureindex/internal/index"
	"github.com/wonny/futureindex/internal/indexconfig"
	"github.com/wonny/futureindex/internal/marketdata"
	"github.com/wonny/futureindex/internal/store"
	"github.com/wonny/futureindex/pkg/config"
	"github.com/wonny/futureindex/pkg/database"
	"github.com/wonny/futureindex/pkg/logger"
	"github.com/wonny/futureindex/pkg/redis"
)

// cachePrefix namespaces every Redis key of this service
const cachePrefix = "futureindex"

type dbMode int

const (
	dbNone dbMode = iota
	dbOptional
	dbRequired
)

// app holds the wired dependencies of one command invocation
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	defs    *indexconfig.Config
	db      *database.DB      // nil unless opened
	repo    *store.Repository // nil unless db is open
	redis   *redis.Client
	polygon *marketdata.PolygonClient // nil without POLYGON_API_KEY
	enrich  *marketdata.Enricher
	service *index.Service
}

// newApp loads config, index definitions and opens the requested connections
func newApp(ctx context.Context, mode dbMode) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if indexConfigPath != "" {
		cfg.IndexConfigPath = indexConfigPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	log := logger.New(cfg)

	defs, _, err := indexconfig.Load(cfg.IndexConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load index definitions: %w", err)
	}

	a := &app{cfg: cfg, log: log, defs: defs}

	if mode != dbNone {
		db, err := database.New(ctx, cfg)
		switch {
		case err == nil:
			a.db = db
			a.repo = store.NewRepository(db.Pool)
			log.Info("Connected to database")
		case mode == dbOptional && errors.Is(err, database.ErrNoDatabaseURL):
			log.Warn("DATABASE_URL not set, running without persistence")
		default:
			return nil, fmt.Errorf("connect to database: %w", err)
		}
	}

	rc, err := redis.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, market data caching disabled")
		rc = nil
	}
	a.redis = rc

	var source contracts.MarketDataSource
	if cfg.Polygon.Enabled() {
		a.polygon = marketdata.NewPolygonClient(cfg.Polygon, log)
		source = a.polygon
	} else {
		log.Warn("POLYGON_API_KEY not set, using universe values and growth estimates only")
	}

	a.enrich = marketdata.NewEnricher(source, redis.NewCache(rc, cachePrefix), cfg.Polygon.Concurrency, log)
	a.setPublisher(nil)

	return a, nil
}

// setPublisher rebuilds the service so saved compositions reach p
func (a *app) setPublisher(p contracts.CompositionPublisher) {
	var compositions contracts.CompositionStore
	if a.repo != nil {
		compositions = a.repo
	}
	a.service = index.NewService(a.enrich, compositions, p, a.log)
}

// index resolves a configured index by name
func (a *app) index(name string) (*indexconfig.Index, error) {
	def, ok := a.defs.Find(name)
	if !ok {
		return nil, fmt.Errorf("index %q not found (configured: %v)", name, a.defs.Names())
	}
	return def, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close redis")
		}
	}
}

// healthChecks lists the dependencies /health reports on
func (a *app) healthChecks() []api.HealthCheck {
	var checks []api.HealthCheck
	if a.db != nil {
		checks = append(checks, api.HealthCheck{Name: "database", Check: a.db.Ping})
	}
	if a.redis.Enabled() {
		checks = append(checks, api.HealthCheck{Name: "redis", Check: a.redis.Ping})
	}
	return checks
}
