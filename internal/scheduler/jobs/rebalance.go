package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/futureindex/internal/contracts"
	"github.com/wonny/futureindex/internal/index"
	"github.com/wonny/futureindex/internal/indexconfig"
	"github.com/wonny/futureindex/internal/rebalance"
	"github.com/wonny/futureindex/pkg/logger"
)

// IndexBuilder rebuilds and reads index compositions
type IndexBuilder interface {
	Build(ctx context.Context, def *indexconfig.Index, opts index.BuildOptions) (*index.BuildResult, error)
	Latest(ctx context.Context, name string) (*contracts.IndexComposition, error)
}

// RebalanceJob recalculates and saves one index on its rebalance schedule
// ⭐ SSOT: 정기 리밸런싱 스케줄은 이 Job에서만
type RebalanceJob struct {
	def     *indexconfig.Index
	builder IndexBuilder
	planner *rebalance.Planner
	logger  *logger.Logger
	now     func() time.Time
}

// NewRebalanceJob creates a new rebalance job
func NewRebalanceJob(def *indexconfig.Index, builder IndexBuilder, planner *rebalance.Planner, log *logger.Logger) *RebalanceJob {
	return &RebalanceJob{
		def:     def,
		builder: builder,
		planner: planner,
		logger:  log.WithIndex(def.Name),
		now:     time.Now,
	}
}

// Name returns the job name
func (j *RebalanceJob) Name() string {
	return "rebalance_" + strings.ToLower(j.def.Name)
}

// Schedule returns the index's cron schedule (quarterly by default)
func (j *RebalanceJob) Schedule() string {
	return j.def.CronSchedule()
}

// Run rebuilds the composition, saves it and logs the change against the previous one
func (j *RebalanceJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled rebalance")

	previous, err := j.builder.Latest(ctx, j.def.Name)
	if err != nil && !errors.Is(err, contracts.ErrNotFound) {
		return fmt.Errorf("load previous composition: %w", err)
	}

	result, err := j.builder.Build(ctx, j.def, index.BuildOptions{
		RebalanceDate: j.now(),
		Save:          true,
	})
	if err != nil {
		return fmt.Errorf("rebuild %s: %w", j.def.Name, err)
	}

	plan := j.planner.Plan(previous, result.Composition)

	j.logger.WithFields(map[string]interface{}{
		"run_id":       result.Composition.RunID,
		"constituents": result.Composition.Count(),
		"added":        plan.Added,
		"removed":      plan.Removed,
		"turnover":     plan.Turnover,
		"missing_cap":  len(result.MissingCap),
	}).Info("Rebalance completed")

	return nil
}
