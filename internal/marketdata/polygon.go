package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/futureindex/internal/contracts"
	"github.com/wonny/futureindex/pkg/config"
	"github.com/wonny/futureindex/pkg/httputil"
	"github.com/wonny/futureindex/pkg/logger"
)

const dateLayout = "2006-01-02"

// PolygonClient reads reference data from Polygon.io
// ⭐ SSOT: Polygon API 호출은 여기서만
type PolygonClient struct {
	client  *httputil.Client
	baseURL string
	apiKey  string
	logger  *logger.Logger
}

// TickerDetails is the subset of /v3/reference/tickers/{ticker} we read
type TickerDetails struct {
	Ticker          string   `json:"ticker"`
	Name            string   `json:"name"`
	MarketCap       *float64 `json:"market_cap"`
	Description     string   `json:"description"`
	PrimaryExchange string   `json:"primary_exchange"`
}

type tickerDetailsResponse struct {
	Status  string        `json:"status"`
	Results TickerDetails `json:"results"`
}

type aggregateBar struct {
	Timestamp int64   `json:"t"` // ms since epoch
	Close     float64 `json:"c"`
}

type aggregatesResponse struct {
	Status  string         `json:"status"`
	Results []aggregateBar `json:"results"`
}

type financialValue struct {
	Value *float64 `json:"value"`
	Unit  string   `json:"unit"`
}

type financial struct {
	FiscalYear   string `json:"fiscal_year"`
	FiscalPeriod string `json:"fiscal_period"`
	Financials   struct {
		IncomeStatement struct {
			Revenues *financialValue `json:"revenues"`
		} `json:"income_statement"`
	} `json:"financials"`
}

type financialsResponse struct {
	Status  string      `json:"status"`
	Results []financial `json:"results"`
}

// NewPolygonClient creates a rate-limited Polygon client
func NewPolygonClient(cfg config.PolygonConfig, log *logger.Logger) *PolygonClient {
	if log == nil {
		log = logger.NewNop()
	}
	return &PolygonClient{
		client:  httputil.NewWithTimeout(log, cfg.Timeout).WithRateLimit(cfg.RequestsPerMinute),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  log.WithComponent("polygon"),
	}
}

// TickerDetails fetches reference details for a ticker
func (p *PolygonClient) TickerDetails(ctx context.Context, ticker string) (*TickerDetails, error) {
	endpoint := "/v3/reference/tickers/" + url.PathEscape(ticker)

	var resp tickerDetailsResponse
	if err := p.client.GetJSON(ctx, p.url(endpoint, nil), &resp); err != nil {
		return nil, p.wrap(ticker, "ticker details", err)
	}
	return &resp.Results, nil
}

// MarketCap returns the current market cap; 0 means Polygon has none
func (p *PolygonClient) MarketCap(ctx context.Context, ticker string) (float64, error) {
	details, err := p.TickerDetails(ctx, ticker)
	if err != nil {
		return 0, err
	}
	if details.MarketCap == nil {
		return 0, nil
	}
	return *details.MarketCap, nil
}

// AnnualRevenues returns up to limit annual revenue figures, latest first.
// Periods without a revenue line are skipped.
func (p *PolygonClient) AnnualRevenues(ctx context.Context, ticker string, limit int) ([]contracts.RevenuePeriod, error) {
	params := url.Values{}
	params.Set("ticker", ticker)
	params.Set("timeframe", "annual")
	params.Set("limit", strconv.Itoa(limit))

	var resp financialsResponse
	if err := p.client.GetJSON(ctx, p.url("/vX/reference/financials", params), &resp); err != nil {
		return nil, p.wrap(ticker, "financials", err)
	}

	periods := make([]contracts.RevenuePeriod, 0, len(resp.Results))
	for _, f := range resp.Results {
		rev := f.Financials.IncomeStatement.Revenues
		if rev == nil || rev.Value == nil {
			continue
		}
		year, err := strconv.Atoi(f.FiscalYear)
		if err != nil {
			p.logger.WithFields(map[string]interface{}{
				"ticker":      ticker,
				"fiscal_year": f.FiscalYear,
			}).Debug("Skipping financials with unparseable fiscal year")
			continue
		}
		periods = append(periods, contracts.RevenuePeriod{FiscalYear: year, Revenue: *rev.Value})
	}

	sort.SliceStable(periods, func(i, j int) bool {
		return periods[i].FiscalYear > periods[j].FiscalYear
	})
	return periods, nil
}

// DailyCloses returns adjusted daily closes in [from, to], oldest first
func (p *PolygonClient) DailyCloses(ctx context.Context, ticker string, from, to time.Time) ([]contracts.PriceBar, error) {
	endpoint := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s",
		url.PathEscape(ticker), from.Format(dateLayout), to.Format(dateLayout))

	params := url.Values{}
	params.Set("adjusted", "true")
	params.Set("sort", "asc")
	params.Set("limit", "50000")

	var resp aggregatesResponse
	if err := p.client.GetJSON(ctx, p.url(endpoint, params), &resp); err != nil {
		return nil, p.wrap(ticker, "aggregates", err)
	}

	bars := make([]contracts.PriceBar, 0, len(resp.Results))
	for _, b := range resp.Results {
		t := time.UnixMilli(b.Timestamp).UTC()
		bars = append(bars, contracts.PriceBar{
			Date:  time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
			Close: b.Close,
		})
	}
	return bars, nil
}

func (p *PolygonClient) url(endpoint string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", p.apiKey)
	return p.baseURL + endpoint + "?" + params.Encode()
}

func (p *PolygonClient) wrap(ticker, what string, err error) error {
	var statusErr *httputil.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("polygon %s for %s: %w", what, ticker, contracts.ErrNotFound)
	}
	return fmt.Errorf("failed to fetch polygon %s for %s: %w", what, ticker, err)
}
