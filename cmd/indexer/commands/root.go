package commands

import (
	"context"

	"github.com/spf13/cobra"
)

// Global flags
var (
	indexConfigPath string
	logLevel        string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "Future Economy Index - 테마 인덱스 가중치 엔진",
	Long: `Future Economy Index CLI

노출도 · 시가총액 · 성장률 3팩터로 테마 인덱스 비중을 계산합니다.
분류된 유니버스 → 시장 데이터 보강 → 가중치 → 저장 → 리밸런싱.

Usage:
  go run ./cmd/indexer [command]

Examples:
  go run ./cmd/indexer index calculate --name SPACEINFRA
  go run ./cmd/indexer index rebalance --name SPACEINFRA --save
  go run ./cmd/indexer api --port 8080
  go run ./cmd/indexer db init`,
	SilenceUsage: true,
}

// Execute runs the CLI; commands inherit ctx
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&indexConfigPath, "index-config", "", "index definitions file (default $INDEX_CONFIG or config/indices.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error (default $LOG_LEVEL)")
}
