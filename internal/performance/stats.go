package performance

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/futureindex/internal/contracts"
)

// ErrNoData is returned when a range holds no index levels
var ErrNoData = errors.New("no performance data")

const (
	daysPerYear        = 365.0
	tradingDaysPerYear = 252.0
)

// Point is one index level with its cumulative return since the range start
type Point struct {
	Date             time.Time `json:"date"`
	IndexValue       float64   `json:"index_value"`
	DailyReturn      *float64  `json:"daily_return,omitempty"`
	CumulativeReturn float64   `json:"cumulative_return"` // percent
}

// Report summarises index performance over a date range. Returns are in percent.
type Report struct {
	IndexName        string    `json:"index_name"`
	FromDate         time.Time `json:"from_date"`
	ToDate           time.Time `json:"to_date"`
	Data             []Point   `json:"data"`
	TotalReturn      float64   `json:"total_return"`
	AnnualizedReturn float64   `json:"annualized_return"`
	Volatility       float64   `json:"volatility"`
	SharpeRatio      *float64  `json:"sharpe_ratio,omitempty"` // risk-free rate 0
}

// Analyze computes return and risk statistics for a series ordered by date.
// A zero from/to defaults to the first/last point's date.
func Analyze(indexName string, from, to time.Time, series []contracts.PerformancePoint) (*Report, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("%s: %w", indexName, ErrNoData)
	}

	first := series[0].Value
	last := series[len(series)-1].Value
	if !(first > 0) {
		return nil, fmt.Errorf("%s: first index value must be > 0, got %v", indexName, first)
	}

	if from.IsZero() {
		from = series[0].Date
	}
	if to.IsZero() {
		to = series[len(series)-1].Date
	}

	report := &Report{
		IndexName: indexName,
		FromDate:  from,
		ToDate:    to,
		Data:      make([]Point, len(series)),
	}

	returns := make([]float64, 0, len(series))
	for i, p := range series {
		report.Data[i] = Point{
			Date:             p.Date,
			IndexValue:       p.Value,
			DailyReturn:      p.DailyReturn,
			CumulativeReturn: (p.Value/first - 1) * 100,
		}
		if p.DailyReturn != nil {
			returns = append(returns, *p.DailyReturn)
		}
	}

	report.TotalReturn = (last/first - 1) * 100

	years := to.Sub(from).Hours() / 24 / daysPerYear
	if years > 0 {
		report.AnnualizedReturn = (math.Pow(last/first, 1/years) - 1) * 100
	} else {
		report.AnnualizedReturn = report.TotalReturn
	}

	// 일간 수익률 표본 표준편차 × √252
	if len(returns) > 1 {
		report.Volatility = stat.StdDev(returns, nil) * math.Sqrt(tradingDaysPerYear) * 100
	}

	if report.Volatility > 0 {
		sharpe := report.AnnualizedReturn / report.Volatility
		report.SharpeRatio = &sharpe
	}

	return report, nil
}
