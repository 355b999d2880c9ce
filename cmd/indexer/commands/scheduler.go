package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/futureindex/internal/performance"
	"github.com/wonny/futureindex/internal/rebalance"
	"github.com/wonny/futureindex/internal/scheduler"
	"github.com/wonny/futureindex/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `정기 리밸런싱 및 일별 성과 기록 스케줄러.

등록되는 작업 (인덱스별):
- rebalance_<name>: 인덱스 schedule (기본 분기 첫날 06:00)
- performance_<name>: 평일 22:30 (SCHEDULER_TZ, POLYGON_API_KEY 필요)

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/indexer scheduler start
  go run ./cmd/indexer scheduler run rebalance_spaceinfra`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		RunE:  runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// newScheduler registers every index's jobs. Rebalance jobs need a database.
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	if a.repo == nil {
		return nil, fmt.Errorf("scheduler requires DATABASE_URL")
	}

	loc, err := a.cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(a.log,
		scheduler.WithLocation(loc),
		scheduler.WithRetry(a.cfg.Scheduler.Retries, a.cfg.Scheduler.RetryDelay),
	)
	planner := rebalance.NewPlanner(0, a.log)

	var tracker *performance.Tracker
	if a.polygon != nil {
		tracker = performance.NewTracker(a.polygon, a.cfg.Polygon.Concurrency, a.log)
	}

	for i := range a.defs.Indices {
		def := &a.defs.Indices[i]

		if err := sched.AddJob(jobs.NewRebalanceJob(def, a.service, planner, a.log)); err != nil {
			return nil, err
		}

		if tracker == nil {
			continue
		}
		inception, err := def.Inception()
		if err != nil {
			return nil, err
		}
		if err := sched.AddJob(jobs.NewPerformanceJob(def.Name, inception, a.repo, tracker, a.log)); err != nil {
			return nil, err
		}
	}

	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	a, err := newApp(cmd.Context(), dbRequired)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// Start scheduler
	sched.Start()

	printSuccess(out, "Scheduler started successfully")
	printJobTable(out, sched)
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Fprintln(out, "\nShutting down scheduler...")
	sched.Stop()
	fmt.Fprintln(out, "Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), dbRequired)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	printJobTable(cmd.OutOrStdout(), sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	jobName := args[0]

	a, err := newApp(cmd.Context(), dbRequired)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Fprintf(out, "Running job: %s\n", jobName)
	result, err := sched.RunJob(cmd.Context(), jobName)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("job %s failed after %d attempts: %s", jobName, result.Attempts, result.Error)
	}

	printSuccess(out, fmt.Sprintf("Job %s completed in %s", jobName, result.Duration.Round(time.Millisecond)))
	return nil
}

func printJobTable(w io.Writer, sched *scheduler.Scheduler) {
	stats := sched.Stats()
	rows := make([][]string, 0, len(stats))
	for _, name := range sched.Jobs() {
		st := stats[name]
		next := "-"
		if st.NextRun != nil {
			next = st.NextRun.Format(time.RFC3339)
		}
		rows = append(rows, []string{name, st.Schedule, next})
	}

	printHeader(w, "Registered jobs")
	printTable(w, []string{"Job", "Schedule", "Next run"}, []int{26, 20, 25}, rows)
}
