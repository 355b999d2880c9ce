package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/wonny/futureindex/internal/contracts"
	"github.com/wonny/futureindex/internal/performance"
	"github.com/wonny/futureindex/internal/rebalance"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	doubleLine = "═══════════════════════════════════════════════════════════"
	singleLine = "───────────────────────────────────────────────────────────"
)

// printHeader prints a titled block
func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, doubleLine)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, singleLine)
}

func printSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "✅ %s\n", message)
}

func printWarning(w io.Writer, message string) {
	fmt.Fprintf(w, "⚠️  %s\n", message)
}

func printKeyValue(w io.Writer, key, value string) {
	fmt.Fprintf(w, "   %-22s : %s\n", key, value)
}

// printTable prints left-aligned columns with a rule under the header
func printTable(w io.Writer, columns []string, widths []int, rows [][]string) {
	printRow(w, columns, widths)

	total := 0
	for i, width := range widths {
		total += width
		if i < len(widths)-1 {
			total += 2
		}
	}
	fmt.Fprintln(w, strings.Repeat("─", total))

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, values []string, widths []int) {
	for i, val := range values {
		if i == len(values)-1 {
			fmt.Fprint(w, val)
			break
		}
		fmt.Fprintf(w, "%-*s  ", widths[i], val)
	}
	fmt.Fprintln(w)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatMarketCap renders a dollar amount as $12.3B / $450.0M; 0 is unknown
func formatMarketCap(v float64) string {
	switch {
	case v <= 0:
		return "n/a"
	case v >= 1e12:
		return fmt.Sprintf("$%.2fT", v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("$%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.1fM", v/1e6)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

func formatPct(weight float64) string {
	return fmt.Sprintf("%.2f%%", weight*100)
}

// printComposition prints constituents and summary statistics
func printComposition(w io.Writer, comp *contracts.IndexComposition) {
	printHeader(w, fmt.Sprintf("%s  (%s)", comp.IndexName, comp.RebalanceDate.Format("2006-01-02")))
	printKeyValue(w, "Run ID", comp.RunID)
	printKeyValue(w, "Config hash", shortHash(comp.ConfigHash))
	fmt.Fprintln(w, singleLine)

	rows := make([][]string, 0, len(comp.Constituents))
	for _, c := range comp.Constituents {
		rows = append(rows, []string{
			fmt.Sprintf("%d", c.Rank),
			c.Ticker,
			truncate(c.Name, 26),
			formatPct(c.Weight),
			fmt.Sprintf("%.0f", c.ExposurePct),
			formatMarketCap(c.MarketCap),
			fmt.Sprintf("%.1f%%", c.GrowthRate),
		})
	}
	printTable(w,
		[]string{"#", "Ticker", "Name", "Weight", "Exp", "Market Cap", "Growth"},
		[]int{3, 7, 26, 8, 4, 10, 8},
		rows,
	)

	s := comp.Summary
	fmt.Fprintln(w, singleLine)
	printKeyValue(w, "Constituents", fmt.Sprintf("%d", s.Count))
	printKeyValue(w, "Total weight", fmt.Sprintf("%.6f", s.TotalWeight))
	printKeyValue(w, "Max / min weight", formatPct(s.MaxWeight)+" / "+formatPct(s.MinWeight))
	printKeyValue(w, "Wtd avg exposure", fmt.Sprintf("%.1f%%", s.WeightedAvgExposure))
	printKeyValue(w, "Wtd avg growth", fmt.Sprintf("%.1f%%", s.WeightedAvgGrowth))
	printKeyValue(w, "Wtd avg market cap", formatMarketCap(s.WeightedAvgMarketCap))
	fmt.Fprintln(w, doubleLine)
}

// printPlan prints weight changes between two compositions
func printPlan(w io.Writer, plan *rebalance.Plan) {
	printHeader(w, fmt.Sprintf("%s rebalance", plan.IndexName))

	rows := make([][]string, 0, len(plan.Changes))
	for _, c := range plan.Changes {
		rows = append(rows, []string{
			c.Ticker,
			string(c.Action),
			formatPct(c.From),
			formatPct(c.To),
			fmt.Sprintf("%+.2f%%", c.Delta*100),
		})
	}
	printTable(w, []string{"Ticker", "Action", "From", "To", "Delta"}, []int{7, 9, 8, 8, 8}, rows)

	fmt.Fprintln(w, singleLine)
	printKeyValue(w, "Added / removed", fmt.Sprintf("%d / %d", plan.Added, plan.Removed))
	printKeyValue(w, "Turnover (one-way)", formatPct(plan.Turnover))
	fmt.Fprintln(w, doubleLine)
}

// printReport prints performance statistics
func printReport(w io.Writer, r *performance.Report) {
	printHeader(w, fmt.Sprintf("%s performance  %s ~ %s", r.IndexName, r.FromDate.Format("2006-01-02"), r.ToDate.Format("2006-01-02")))
	printKeyValue(w, "Points", fmt.Sprintf("%d", len(r.Data)))
	printKeyValue(w, "Total return", fmt.Sprintf("%.2f%%", r.TotalReturn))
	printKeyValue(w, "Annualized return", fmt.Sprintf("%.2f%%", r.AnnualizedReturn))
	printKeyValue(w, "Volatility", fmt.Sprintf("%.2f%%", r.Volatility))
	sharpe := "n/a"
	if r.SharpeRatio != nil {
		sharpe = fmt.Sprintf("%.2f", *r.SharpeRatio)
	}
	printKeyValue(w, "Sharpe", sharpe)
	fmt.Fprintln(w, doubleLine)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
