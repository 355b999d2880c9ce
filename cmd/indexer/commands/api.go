package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/futureindex/internal/api"
	"github.com/wonny/futureindex/internal/api/handlers"
	"github.com/wonny/futureindex/internal/api/stream"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

DATABASE_URL이 없으면 저장된 구성/성과 없이 preview만 제공합니다.

Endpoints:
  GET  /health                              - Health check
  GET  /api/indices                         - 인덱스 목록
  GET  /api/indices/{name}                  - 인덱스 상세
  GET  /api/indices/{name}/composition      - 최신 구성 (?date=YYYY-MM-DD)
  GET  /api/indices/{name}/performance      - 성과 (?from=&to=)
  POST /api/indices/{name}/preview          - 유니버스 JSON 가중치 미리보기
  GET  /ws/compositions                     - 신규 구성 실시간 피드

Example:
  go run ./cmd/indexer api
  go run ./cmd/indexer api --port 8080
  go run ./cmd/indexer api --scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort      string
	apiScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default $PORT)")
	apiCmd.Flags().BoolVar(&apiScheduler, "scheduler", false, "run rebalance/performance jobs in-process (feeds /ws/compositions)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	// 1. Config, database, market data
	a, err := newApp(ctx, dbOptional)
	if err != nil {
		return err
	}
	defer a.Close()

	// 2. Feed hub (compositions saved by this process are pushed to subscribers)
	hub := stream.NewHub(a.log)
	defer hub.Close()
	a.setPublisher(hub)

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	a.log.WithFields(map[string]interface{}{
		"port":    a.cfg.Port,
		"env":     a.cfg.Env,
		"indices": a.defs.Names(),
	}).Info("Initializing API server")

	if apiScheduler {
		sched, err := newScheduler(a)
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	// 3. Handlers and router
	var st handlers.Store
	if a.repo != nil {
		st = a.repo
	}
	indexHandler := handlers.NewIndexHandler(a.defs, st, a.service, a.log)
	router := api.NewRouter(indexHandler, hub, a.log, a.healthChecks()...)

	// 4. Server until SIGINT/SIGTERM
	server := api.NewServer(":"+a.cfg.Port, router, a.log)
	server.OnShutdown(hub.Close)

	fmt.Fprintf(out, "\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(runCtx); err != nil {
		return err
	}

	a.log.Info("Server stopped")
	return nil
}
