package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/futureindex/internal/contracts"
	"github.com/wonny/futureindex/internal/performance"
	"github.com/wonny/futureindex/pkg/logger"
)

// PerformanceSchedule runs after the US close on weekdays (UTC)
const PerformanceSchedule = "0 30 22 * * 1-5"

// PerformanceStore reads compositions and stores index levels
type PerformanceStore interface {
	GetLatestComposition(ctx context.Context, indexName string) (*contracts.IndexComposition, error)
	GetPerformance(ctx context.Context, indexName string, from, to time.Time) ([]contracts.PerformancePoint, error)
	SavePerformance(ctx context.Context, indexName string, points []contracts.PerformancePoint) error
}

// LevelTracker turns a composition into daily index levels
type LevelTracker interface {
	Track(ctx context.Context, comp *contracts.IndexComposition, from, to time.Time, start float64) ([]contracts.PerformancePoint, error)
}

// PerformanceJob records daily index levels for the current composition
type PerformanceJob struct {
	indexName string
	inception time.Time
	store     PerformanceStore
	tracker   LevelTracker
	logger    *logger.Logger
	now       func() time.Time
}

// NewPerformanceJob creates a new performance job
func NewPerformanceJob(indexName string, inception time.Time, store PerformanceStore, tracker LevelTracker, log *logger.Logger) *PerformanceJob {
	return &PerformanceJob{
		indexName: indexName,
		inception: inception,
		store:     store,
		tracker:   tracker,
		logger:    log.WithIndex(indexName),
		now:       time.Now,
	}
}

// Name returns the job name
func (j *PerformanceJob) Name() string {
	return "performance_" + strings.ToLower(j.indexName)
}

// Schedule returns the cron schedule
func (j *PerformanceJob) Schedule() string {
	return PerformanceSchedule
}

// Run extends the level series from the composition's rebalance date to today.
// The series continues from the last stored level on or before that date.
func (j *PerformanceJob) Run(ctx context.Context) error {
	comp, err := j.store.GetLatestComposition(ctx, j.indexName)
	if errors.Is(err, contracts.ErrNotFound) {
		j.logger.Info("No composition stored yet, skipping performance update")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load composition: %w", err)
	}

	from := comp.RebalanceDate
	to := j.now().UTC()

	history, err := j.store.GetPerformance(ctx, j.indexName, j.inception, from)
	if err != nil {
		return fmt.Errorf("load performance history: %w", err)
	}

	start := performance.BaseValue
	var anchor *contracts.PerformancePoint
	if len(history) > 0 {
		anchor = &history[len(history)-1]
		start = anchor.Value
	}

	points, err := j.tracker.Track(ctx, comp, from, to, start)
	if err != nil {
		return fmt.Errorf("track levels: %w", err)
	}

	// the first tracked point repeats the anchor level without a return
	if anchor != nil && len(points) > 0 && points[0].Date.Equal(anchor.Date) {
		points = points[1:]
	}

	if err := j.store.SavePerformance(ctx, j.indexName, points); err != nil {
		return fmt.Errorf("save performance: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"points": len(points),
		"from":   from.Format("2006-01-02"),
		"start":  start,
	}).Info("Performance updated")

	return nil
}
