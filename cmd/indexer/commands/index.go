package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/futureindex/internal/contracts"
	"github.com/wonny/futureindex/internal/index"
	"github.com/wonny/futureindex/internal/indexconfig"
	"github.com/wonny/futureindex/internal/performance"
	"github.com/wonny/futureindex/internal/rebalance"
	"github.com/wonny/futureindex/internal/store"
	"github.com/wonny/futureindex/internal/weighting"
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "인덱스 계산 및 관리",
	Long: `인덱스 구성을 계산하고 리밸런싱/성과를 관리합니다.

Subcommands:
  calculate  - 구성 계산 (선택적으로 저장)
  rebalance  - 저장된 최신 구성 대비 변경 계획
  list       - 설정된 인덱스 목록
  track      - 일별 인덱스 레벨 계산 및 성과 통계

Example:
  go run ./cmd/indexer index calculate --name SPACEINFRA --json
  go run ./cmd/indexer index track --name SPACEINFRA --save`,
}

var (
	indexCalculateCmd = &cobra.Command{
		Use:   "calculate",
		Short: "인덱스 구성 계산",
		RunE:  runIndexCalculate,
	}

	indexRebalanceCmd = &cobra.Command{
		Use:   "rebalance",
		Short: "리밸런싱 계획 (현재 → 신규)",
		RunE:  runIndexRebalance,
	}

	indexListCmd = &cobra.Command{
		Use:   "list",
		Short: "설정된 인덱스 목록",
		RunE:  runIndexList,
	}

	indexTrackCmd = &cobra.Command{
		Use:   "track",
		Short: "최신 구성의 일별 레벨 계산",
		RunE:  runIndexTrack,
	}
)

var (
	indexName     string
	indexUniverse string
	indexMode     string
	indexDate     string
	indexSave     bool
	indexRefresh  bool
	indexJSON     bool
	trackFrom     string
	trackTo       string
)

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexCalculateCmd)
	indexCmd.AddCommand(indexRebalanceCmd)
	indexCmd.AddCommand(indexListCmd)
	indexCmd.AddCommand(indexTrackCmd)

	for _, c := range []*cobra.Command{indexCalculateCmd, indexRebalanceCmd, indexTrackCmd} {
		c.Flags().StringVar(&indexName, "name", "", "index name (e.g. SPACEINFRA)")
		c.MarkFlagRequired("name")
		c.Flags().BoolVar(&indexSave, "save", false, "persist the result")
		c.Flags().BoolVar(&indexJSON, "json", false, "print JSON instead of tables")
	}

	for _, c := range []*cobra.Command{indexCalculateCmd, indexRebalanceCmd} {
		c.Flags().StringVar(&indexUniverse, "universe", "", "universe file (default from index config)")
		c.Flags().StringVar(&indexMode, "mode", "", "bound reconciliation: clip_renormalize | water_fill")
		c.Flags().StringVar(&indexDate, "date", "", "rebalance date YYYY-MM-DD (default today)")
		c.Flags().BoolVar(&indexRefresh, "refresh", false, "drop cached market data before enriching")
	}

	indexTrackCmd.Flags().StringVar(&trackFrom, "from", "", "start date YYYY-MM-DD (default latest rebalance date)")
	indexTrackCmd.Flags().StringVar(&trackTo, "to", "", "end date YYYY-MM-DD (default today)")
}

func buildOptions() (index.BuildOptions, error) {
	opts := index.BuildOptions{
		UniversePath: indexUniverse,
		Mode:         weighting.Mode(indexMode),
		Save:         indexSave,
		Refresh:      indexRefresh,
	}
	if indexDate != "" {
		d, err := time.Parse(indexconfig.DateLayout, indexDate)
		if err != nil {
			return opts, fmt.Errorf("invalid --date: %w", err)
		}
		opts.RebalanceDate = d
	}
	return opts, nil
}

func runIndexCalculate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	mode := dbNone
	if indexSave {
		mode = dbRequired
	}
	a, err := newApp(ctx, mode)
	if err != nil {
		return err
	}
	defer a.Close()

	def, err := a.index(indexName)
	if err != nil {
		return err
	}
	opts, err := buildOptions()
	if err != nil {
		return err
	}

	result, err := a.service.Build(ctx, def, opts)
	if err != nil {
		return err
	}

	if indexJSON {
		return printJSON(out, result)
	}

	printComposition(out, result.Composition)
	if len(result.Excluded) > 0 {
		printKeyValue(out, "Excluded (not relevant)", fmt.Sprintf("%v", result.Excluded))
	}
	if len(result.MissingCap) > 0 {
		printWarning(out, fmt.Sprintf("Market cap unknown for %v (scored 0)", result.MissingCap))
	}
	if result.Saved {
		printSuccess(out, "Composition saved")
	}
	return nil
}

func runIndexRebalance(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := newApp(ctx, dbRequired)
	if err != nil {
		return err
	}
	defer a.Close()

	def, err := a.index(indexName)
	if err != nil {
		return err
	}
	opts, err := buildOptions()
	if err != nil {
		return err
	}

	current, err := a.service.Latest(ctx, def.Name)
	if err != nil && !errors.Is(err, contracts.ErrNotFound) {
		return err
	}

	result, err := a.service.Build(ctx, def, opts)
	if err != nil {
		return err
	}

	plan := rebalance.NewPlanner(0, a.log).Plan(current, result.Composition)

	if indexJSON {
		return printJSON(out, plan)
	}

	if current == nil {
		printWarning(out, "No stored composition, every constituent is an ADD")
	}
	printPlan(out, plan)
	if result.Saved {
		printSuccess(out, "New composition saved")
	}
	return nil
}

func runIndexList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := newApp(ctx, dbOptional)
	if err != nil {
		return err
	}
	defer a.Close()

	var summaries map[string]store.IndexSummary
	if a.repo != nil {
		if summaries, err = a.repo.ListIndexSummaries(ctx); err != nil {
			return err
		}
	}

	now := time.Now()
	rows := make([][]string, 0, len(a.defs.Indices))
	for _, def := range a.defs.Indices {
		next := "-"
		if t, err := def.NextRebalance(now); err == nil {
			next = t.Format(indexconfig.DateLayout)
		}
		last, count := "-", "-"
		if s, ok := summaries[def.Name]; ok {
			last = s.LastRebalance.Format(indexconfig.DateLayout)
			count = fmt.Sprintf("%d", s.NumConstituents)
		}
		rows = append(rows, []string{def.Name, def.DisplayName, string(def.Weighting.Mode), count, last, next})
	}

	if indexJSON {
		return printJSON(out, a.defs.Indices)
	}

	printHeader(out, "Configured indices")
	printTable(out,
		[]string{"Name", "Display name", "Mode", "N", "Last", "Next"},
		[]int{12, 30, 16, 4, 10, 10},
		rows,
	)
	return nil
}

func runIndexTrack(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := newApp(ctx, dbRequired)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.polygon == nil {
		return fmt.Errorf("index track needs POLYGON_API_KEY for daily closes")
	}

	def, err := a.index(indexName)
	if err != nil {
		return err
	}

	comp, err := a.service.Latest(ctx, def.Name)
	if err != nil {
		return fmt.Errorf("load composition for %s: %w", def.Name, err)
	}

	from := comp.RebalanceDate
	to := time.Now().UTC()
	if trackFrom != "" {
		if from, err = time.Parse(indexconfig.DateLayout, trackFrom); err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
	}
	if trackTo != "" {
		if to, err = time.Parse(indexconfig.DateLayout, trackTo); err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}
	}

	tracker := performance.NewTracker(a.polygon, a.cfg.Polygon.Concurrency, a.log)
	points, err := tracker.Track(ctx, comp, from, to, performance.BaseValue)
	if err != nil {
		return err
	}

	report, err := performance.Analyze(def.Name, from, to, points)
	if err != nil {
		return err
	}

	if indexSave {
		if err := a.repo.SavePerformance(ctx, def.Name, points); err != nil {
			return err
		}
	}

	if indexJSON {
		return printJSON(out, report)
	}
	printReport(out, report)
	if indexSave {
		printSuccess(out, fmt.Sprintf("%d levels saved", len(points)))
	}
	return nil
}
