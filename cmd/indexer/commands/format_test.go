package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/futureindex/internal/contracts"
	"github.com/wonny/futureindex/internal/rebalance"
)

func TestFormatMarketCap(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "n/a"},
		{-1, "n/a"},
		{2.5e12, "$2.50T"},
		{12.34e9, "$12.3B"},
		{450e6, "$450.0M"},
		{999, "$999"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatMarketCap(tt.in))
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Rocket Lab", truncate("Rocket Lab", 26))
	assert.Equal(t, "Rock…", truncate("Rocket Lab", 5))
}

func TestPrintComposition(t *testing.T) {
	comp := &contracts.IndexComposition{
		RunID:         "run-1",
		IndexName:     "SPACEINFRA",
		RebalanceDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		ConfigHash:    strings.Repeat("ab", 32),
		Constituents: []contracts.Constituent{
			{Rank: 1, Ticker: "RKLB", Name: "Rocket Lab", Weight: 0.6, MarketCap: 12e9},
			{Rank: 2, Ticker: "ASTS", Name: "AST SpaceMobile", Weight: 0.4},
		},
		Summary: contracts.Summary{Count: 2, TotalWeight: 1, MaxWeight: 0.6, MinWeight: 0.4},
	}

	var buf bytes.Buffer
	printComposition(&buf, comp)
	out := buf.String()

	assert.Contains(t, out, "SPACEINFRA  (2025-04-01)")
	assert.Contains(t, out, "abababababab")
	assert.Contains(t, out, "RKLB")
	assert.Contains(t, out, "60.00%")
	assert.Contains(t, out, "$12.0B")
	assert.Contains(t, out, "n/a")
}

func TestPrintPlan(t *testing.T) {
	plan := &rebalance.Plan{
		IndexName: "SPACEINFRA",
		Changes: []rebalance.WeightChange{
			{Ticker: "RKLB", From: 0, To: 0.1, Delta: 0.1, Action: rebalance.ActionAdd},
		},
		Turnover: 0.05,
		Added:    1,
	}

	var buf bytes.Buffer
	printPlan(&buf, plan)
	out := buf.String()

	assert.Contains(t, out, "SPACEINFRA rebalance")
	assert.Contains(t, out, "+10.00%")
	assert.Contains(t, out, "1 / 0")
	assert.Contains(t, out, "5.00%")
}

func TestRootCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"index", "api", "db", "scheduler"} {
		assert.True(t, names[want], want)
	}
}
