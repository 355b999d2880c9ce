package main

import (
	"context"
	"os"

	"github.com/wonny/futureindex/cmd/indexer/commands"
)

// main is the entry point for the indexer CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/indexer [command]
func main() {
	if err := commands.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
