package contracts

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores and sources when nothing matches
var ErrNotFound = errors.New("not found")

// ClassificationSource supplies sector exposure per company
// ⭐ SSOT: 분류(LLM 등)는 외부 협력자, 엔진은 ExposurePct/Segments만 사용
type ClassificationSource interface {
	Classify(ctx context.Context, ticker string) (*Classification, error)
}

// RevenuePeriod is one fiscal period's reported revenue
type RevenuePeriod struct {
	FiscalYear int     `json:"fiscal_year"`
	Revenue    float64 `json:"revenue"`
}

// MarketDataSource supplies market capitalisation and revenue history
type MarketDataSource interface {
	MarketCap(ctx context.Context, ticker string) (float64, error)
	AnnualRevenues(ctx context.Context, ticker string, limit int) ([]RevenuePeriod, error)
}

// CompositionStore persists and serves index snapshots
type CompositionStore interface {
	SaveComposition(ctx context.Context, comp *IndexComposition) error
	GetLatestComposition(ctx context.Context, indexName string) (*IndexComposition, error)
	GetRebalanceDates(ctx context.Context, indexName string) ([]time.Time, error)
	GetPerformance(ctx context.Context, indexName string, from, to time.Time) ([]PerformancePoint, error)
}

// CompositionPublisher fans out freshly computed compositions (websocket feed)
type CompositionPublisher interface {
	Publish(comp *IndexComposition)
}

// PriceBar is one daily close
type PriceBar struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceSource supplies daily closes for index level tracking
type PriceSource interface {
	DailyCloses(ctx context.Context, ticker string, from, to time.Time) ([]PriceBar, error)
}
