package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/futureindex/internal/contracts"
)

// Repository handles index composition and performance persistence
// ⭐ SSOT: index_runs / index_compositions / index_performance 접근은 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

var _ contracts.CompositionStore = (*Repository)(nil)

// psql builds read queries with $n placeholders
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// IndexSummary is the latest stored state of one index
type IndexSummary struct {
	IndexName       string
	NumConstituents int
	TotalMarketCap  float64
	LastRebalance   time.Time
}

// SaveComposition replaces the snapshot for (index, rebalance date)
func (r *Repository) SaveComposition(ctx context.Context, comp *contracts.IndexComposition) error {
	runID, err := uuid.Parse(comp.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", comp.RunID, err)
	}
	date := dateOnly(comp.RebalanceDate)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Constituents cascade with the run
	_, err = tx.Exec(ctx, "DELETE FROM index_runs WHERE index_name = $1 AND rebalance_date = $2", comp.IndexName, date)
	if err != nil {
		return fmt.Errorf("failed to delete old run: %w", err)
	}

	runQuery := `
		INSERT INTO index_runs (
			run_id, index_name, rebalance_date, config_hash, num_constituents, total_weight,
			weighted_avg_exposure, weighted_avg_growth, weighted_avg_market_cap,
			max_weight, min_weight, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	s := comp.Summary
	createdAt := comp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = tx.Exec(ctx, runQuery,
		runID, comp.IndexName, date, comp.ConfigHash, s.Count, s.TotalWeight,
		s.WeightedAvgExposure, s.WeightedAvgGrowth, s.WeightedAvgMarketCap,
		s.MaxWeight, s.MinWeight, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if err := insertConstituents(ctx, tx, runID, comp.IndexName, date, comp.Constituents); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertConstituents(ctx context.Context, tx pgx.Tx, runID uuid.UUID, indexName string, date time.Time, members []contracts.Constituent) error {
	if len(members) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO index_compositions (
			run_id, index_name, rebalance_date, rank, ticker, name, weight, market_cap,
			exposure_pct, growth_rate, cap_score, growth_score, raw_score, segments
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	for _, m := range members {
		segments := m.Segments
		if segments == nil {
			segments = []string{}
		}
		batch.Queue(query,
			runID, indexName, date, m.Rank, m.Ticker, m.Name, m.Weight, m.MarketCap,
			m.ExposurePct, m.GrowthRate, m.CapScore, m.GrowthScore, m.RawScore, segments,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for _, m := range members {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to insert constituent %s: %w", m.Ticker, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}
	return nil
}

// GetLatestComposition returns the most recent snapshot of an index
func (r *Repository) GetLatestComposition(ctx context.Context, indexName string) (*contracts.IndexComposition, error) {
	query := `
		SELECT run_id::text, index_name, rebalance_date, config_hash, num_constituents, total_weight,
			   weighted_avg_exposure, weighted_avg_growth, weighted_avg_market_cap,
			   max_weight, min_weight, created_at
		FROM index_runs
		WHERE index_name = $1
		ORDER BY rebalance_date DESC, created_at DESC
		LIMIT 1
	`
	return r.loadComposition(ctx, query, indexName)
}

// GetComposition returns the snapshot for an exact rebalance date
func (r *Repository) GetComposition(ctx context.Context, indexName string, date time.Time) (*contracts.IndexComposition, error) {
	query := `
		SELECT run_id::text, index_name, rebalance_date, config_hash, num_constituents, total_weight,
			   weighted_avg_exposure, weighted_avg_growth, weighted_avg_market_cap,
			   max_weight, min_weight, created_at
		FROM index_runs
		WHERE index_name = $1 AND rebalance_date = $2
	`
	return r.loadComposition(ctx, query, indexName, dateOnly(date))
}

func (r *Repository) loadComposition(ctx context.Context, query string, args ...interface{}) (*contracts.IndexComposition, error) {
	var comp contracts.IndexComposition
	s := &comp.Summary
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&comp.RunID, &comp.IndexName, &comp.RebalanceDate, &comp.ConfigHash, &s.Count, &s.TotalWeight,
		&s.WeightedAvgExposure, &s.WeightedAvgGrowth, &s.WeightedAvgMarketCap,
		&s.MaxWeight, &s.MinWeight, &comp.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	runID, err := uuid.Parse(comp.RunID)
	if err != nil {
		return nil, fmt.Errorf("invalid stored run id %q: %w", comp.RunID, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT rank, ticker, name, weight, market_cap, exposure_pct, growth_rate,
			   cap_score, growth_score, raw_score, segments
		FROM index_compositions
		WHERE run_id = $1
		ORDER BY rank
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query constituents: %w", err)
	}
	defer rows.Close()

	comp.Constituents = make([]contracts.Constituent, 0, s.Count)
	for rows.Next() {
		var m contracts.Constituent
		if err := rows.Scan(
			&m.Rank, &m.Ticker, &m.Name, &m.Weight, &m.MarketCap, &m.ExposurePct, &m.GrowthRate,
			&m.CapScore, &m.GrowthScore, &m.RawScore, &m.Segments,
		); err != nil {
			return nil, fmt.Errorf("failed to scan constituent: %w", err)
		}
		comp.Constituents = append(comp.Constituents, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating constituents: %w", err)
	}

	return &comp, nil
}

// GetRebalanceDates returns stored rebalance dates, newest first
func (r *Repository) GetRebalanceDates(ctx context.Context, indexName string) ([]time.Time, error) {
	query, args, err := psql.Select("rebalance_date").
		From("index_runs").
		Where(sq.Eq{"index_name": indexName}).
		OrderBy("rebalance_date DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rebalance dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// ListIndexSummaries returns the latest run of every stored index
func (r *Repository) ListIndexSummaries(ctx context.Context) (map[string]IndexSummary, error) {
	query := `
		SELECT DISTINCT ON (r.index_name)
			   r.index_name, r.num_constituents, r.rebalance_date,
			   COALESCE((SELECT SUM(c.market_cap) FROM index_compositions c WHERE c.run_id = r.run_id), 0)
		FROM index_runs r
		ORDER BY r.index_name, r.rebalance_date DESC, r.created_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query index summaries: %w", err)
	}
	defer rows.Close()

	out := make(map[string]IndexSummary)
	for rows.Next() {
		var s IndexSummary
		if err := rows.Scan(&s.IndexName, &s.NumConstituents, &s.LastRebalance, &s.TotalMarketCap); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		out[s.IndexName] = s
	}
	return out, rows.Err()
}

// SavePerformance upserts daily index levels
func (r *Repository) SavePerformance(ctx context.Context, indexName string, points []contracts.PerformancePoint) error {
	if len(points) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO index_performance (index_name, date, value, daily_return)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (index_name, date) DO UPDATE SET
			value = EXCLUDED.value,
			daily_return = EXCLUDED.daily_return,
			created_at = NOW()
	`
	for _, p := range points {
		batch.Queue(query, indexName, dateOnly(p.Date), p.Value, p.DailyReturn)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range points {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to save performance: %w", err)
		}
	}
	return nil
}

// GetPerformance returns daily levels within [from, to], oldest first.
// A zero from or to leaves that side unbounded.
func (r *Repository) GetPerformance(ctx context.Context, indexName string, from, to time.Time) ([]contracts.PerformancePoint, error) {
	q := psql.Select("date", "value", "daily_return").
		From("index_performance").
		Where(sq.Eq{"index_name": indexName}).
		OrderBy("date")
	if !from.IsZero() {
		q = q.Where(sq.GtOrEq{"date": dateOnly(from)})
	}
	if !to.IsZero() {
		q = q.Where(sq.LtOrEq{"date": dateOnly(to)})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance: %w", err)
	}
	defer rows.Close()

	var points []contracts.PerformancePoint
	for rows.Next() {
		var p contracts.PerformancePoint
		if err := rows.Scan(&p.Date, &p.Value, &p.DailyReturn); err != nil {
			return nil, fmt.Errorf("failed to scan performance: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
