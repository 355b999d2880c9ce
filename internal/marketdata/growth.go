package marketdata

import (
	"sort"

	"github.com/wonny/futureindex/internal/contracts"
)

// RevenueGrowth returns year-over-year revenue growth in percent,
// (latest - previous) / previous * 100, using the two most recent fiscal years.
// ok is false with fewer than two periods or a zero previous revenue.
func RevenueGrowth(periods []contracts.RevenuePeriod) (growth float64, ok bool) {
	if len(periods) < 2 {
		return 0, false
	}

	sorted := append([]contracts.RevenuePeriod(nil), periods...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FiscalYear > sorted[j].FiscalYear
	})

	latest, previous := sorted[0].Revenue, sorted[1].Revenue
	if previous == 0 {
		return 0, false
	}

	return (latest - previous) / previous * 100, true
}
