package contracts

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// CompanyRecord is one index candidate as handed to the weighting engine
// ⭐ SSOT: 외부 데이터는 여기서 한 번만 검증, 엔진 내부에서는 재검사하지 않음
type CompanyRecord struct {
	Ticker      string   `json:"ticker" yaml:"ticker"`
	Name        string   `json:"name" yaml:"name"`
	MarketCap   float64  `json:"market_cap" yaml:"market_cap"`       // 0 = unknown
	ExposurePct float64  `json:"exposure_pct" yaml:"exposure_pct"`   // 0 ~ 100
	GrowthRate  float64  `json:"growth_rate" yaml:"growth_rate"`     // percent, e.g. 45 for 45%
	Segments    []string `json:"segments,omitempty" yaml:"segments"` // free-form tags
}

// ErrInvalidRecord is wrapped by every RecordError
var ErrInvalidRecord = errors.New("invalid company record")

// RecordError describes why a record was rejected at the boundary
type RecordError struct {
	Ticker string
	Field  string
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s: %s %s", e.Ticker, e.Field, e.Reason)
}

func (e *RecordError) Unwrap() error {
	return ErrInvalidRecord
}

// Validate checks a single record's fields
func (r CompanyRecord) Validate() error {
	if strings.TrimSpace(r.Ticker) == "" {
		return &RecordError{Ticker: "<empty>", Field: "ticker", Reason: "is required"}
	}

	if math.IsNaN(r.MarketCap) || math.IsInf(r.MarketCap, 0) || r.MarketCap < 0 {
		return &RecordError{Ticker: r.Ticker, Field: "market_cap", Reason: "must be a finite value >= 0"}
	}

	if math.IsNaN(r.ExposurePct) || r.ExposurePct < 0 || r.ExposurePct > 100 {
		return &RecordError{Ticker: r.Ticker, Field: "exposure_pct", Reason: "must be in [0, 100]"}
	}

	// no range limit, the normalizer clips into band; must still be finite
	if math.IsNaN(r.GrowthRate) || math.IsInf(r.GrowthRate, 0) {
		return &RecordError{Ticker: r.Ticker, Field: "growth_rate", Reason: "must be a finite number"}
	}

	return nil
}

// HasMarketCap reports whether the market cap is known
func (r CompanyRecord) HasMarketCap() bool {
	return r.MarketCap > 0
}

// ValidateRecords validates every record and rejects duplicate tickers
// (case-insensitive). The first failure is returned.
func ValidateRecords(records []CompanyRecord) error {
	seen := make(map[string]struct{}, len(records))

	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}

		key := strings.ToUpper(strings.TrimSpace(r.Ticker))
		if _, dup := seen[key]; dup {
			return &RecordError{Ticker: r.Ticker, Field: "ticker", Reason: "is duplicated"}
		}
		seen[key] = struct{}{}
	}

	return nil
}

// Clone returns a deep copy (segments included)
func (r CompanyRecord) Clone() CompanyRecord {
	c := r
	if r.Segments != nil {
		c.Segments = append([]string(nil), r.Segments...)
	}
	return c
}

// Confidence is the classifier's advisory confidence label
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Classification is what the (external) sector classifier returns per company.
// Confidence is carried for reporting only; weighting never reads it.
type Classification struct {
	Ticker      string     `json:"ticker" yaml:"ticker"`
	IsRelevant  bool       `json:"is_relevant" yaml:"is_relevant"`
	ExposurePct float64    `json:"exposure_pct" yaml:"exposure_pct"`
	Confidence  Confidence `json:"confidence" yaml:"confidence"`
	Segments    []string   `json:"segments" yaml:"segments"`
}

// Candidate is a classified company before market data enrichment
type Candidate struct {
	Record      CompanyRecord
	Confidence  Confidence
	GrowthKnown bool // Record.GrowthRate was supplied, skip derivation
}

// Valid reports whether c is a known confidence label
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}
