package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/futureindex/pkg/config"
	"github.com/wonny/futureindex/pkg/database"
	"github.com/wonny/futureindex/pkg/logger"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "데이터베이스 관리",
	Long: `PostgreSQL 스키마를 생성하거나 상태를 확인합니다.

Subcommands:
  init    - 스키마 생성 (idempotent)
  status  - 연결/테이블 상태

Example:
  go run ./cmd/indexer db init
  go run ./cmd/indexer db status`,
}

var (
	dbInitCmd = &cobra.Command{
		Use:   "init",
		Short: "스키마 생성",
		RunE:  runDBInit,
	}

	dbStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "연결 및 테이블 상태",
		RunE:  runDBStatus,
	}
)

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbInitCmd)
	dbCmd.AddCommand(dbStatusCmd)
}

// openDB connects without loading index definitions
func openDB(ctx context.Context) (*database.DB, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, log, nil
}

func runDBInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, log, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	log.WithField("tables", database.Tables).Info("Schema applied")
	printSuccess(cmd.OutOrStdout(), "Schema applied")
	return nil
}

func runDBStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	out := cmd.OutOrStdout()

	db, _, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	health, err := db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	tables, err := db.Status(ctx)
	if err != nil {
		return err
	}

	printHeader(out, "Database status")
	printKeyValue(out, "Response time", health.ResponseTime.String())
	printKeyValue(out, "Connections", fmt.Sprintf("%d total / %d idle / %d max", health.Stats.TotalConns, health.Stats.IdleConns, health.Stats.MaxConns))
	fmt.Fprintln(out, singleLine)

	rows := make([][]string, 0, len(tables))
	missing := 0
	for _, t := range tables {
		state, count := "ok", fmt.Sprintf("%d", t.Rows)
		if !t.Exists {
			state, count = "missing", "-"
			missing++
		}
		rows = append(rows, []string{t.Name, state, count})
	}
	printTable(out, []string{"Table", "State", "Rows"}, []int{20, 8, 10}, rows)

	if missing > 0 {
		printWarning(out, "Run `indexer db init` to create missing tables")
	}
	return nil
}
