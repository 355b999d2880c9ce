package universe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wonny/futureindex/internal/contracts"
)

// Format of a universe file
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Entry is one classified company as written in a universe file
type Entry struct {
	Ticker      string               `yaml:"ticker" json:"ticker"`
	Name        string               `yaml:"name" json:"name"`
	IsRelevant  bool                 `yaml:"is_relevant" json:"is_relevant"`
	ExposurePct float64              `yaml:"exposure_pct" json:"exposure_pct"`
	Confidence  contracts.Confidence `yaml:"confidence" json:"confidence"`
	Segments    []string             `yaml:"segments" json:"segments"`
	MarketCap   float64              `yaml:"market_cap" json:"market_cap"`   // 0 = fetch from market data
	GrowthRate  *float64             `yaml:"growth_rate" json:"growth_rate"` // nil = derive from revenues
}

type file struct {
	Companies []Entry `yaml:"companies" json:"companies"`
}

// Universe is a validated candidate list plus the classifications behind it
type Universe struct {
	candidates      []contracts.Candidate
	classifications map[string]contracts.Classification
	excluded        []string
}

// Load reads a universe file; the format follows the extension (.json or YAML)
func Load(path string) (*Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe file: %w", err)
	}

	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = FormatJSON
	}

	u, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("universe %s: %w", path, err)
	}
	return u, nil
}

// Parse decodes a universe document and validates every relevant entry.
// Entries with is_relevant=false are kept for Classify but never weighted.
func Parse(data []byte, format Format) (*Universe, error) {
	var f file
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode universe json: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode universe yaml: %w", err)
		}
	}

	u := &Universe{
		candidates:      make([]contracts.Candidate, 0, len(f.Companies)),
		classifications: make(map[string]contracts.Classification, len(f.Companies)),
	}

	for _, e := range f.Companies {
		e.Ticker = strings.ToUpper(strings.TrimSpace(e.Ticker))

		if e.Confidence != "" && !e.Confidence.Valid() {
			return nil, &contracts.RecordError{Ticker: e.Ticker, Field: "confidence", Reason: "must be high, medium or low"}
		}

		if _, dup := u.classifications[e.Ticker]; dup {
			return nil, &contracts.RecordError{Ticker: e.Ticker, Field: "ticker", Reason: "is duplicated"}
		}
		u.classifications[e.Ticker] = contracts.Classification{
			Ticker:      e.Ticker,
			IsRelevant:  e.IsRelevant,
			ExposurePct: e.ExposurePct,
			Confidence:  e.Confidence,
			Segments:    e.Segments,
		}

		if !e.IsRelevant {
			u.excluded = append(u.excluded, e.Ticker)
			continue
		}

		c := contracts.Candidate{
			Record: contracts.CompanyRecord{
				Ticker:      e.Ticker,
				Name:        e.Name,
				MarketCap:   e.MarketCap,
				ExposurePct: e.ExposurePct,
				Segments:    e.Segments,
			},
			Confidence: e.Confidence,
		}
		if e.GrowthRate != nil {
			c.Record.GrowthRate = *e.GrowthRate
			c.GrowthKnown = true
		}
		u.candidates = append(u.candidates, c)
	}

	if err := contracts.ValidateRecords(u.Records()); err != nil {
		return nil, err
	}

	return u, nil
}

// Candidates returns copies of the relevant entries in file order
func (u *Universe) Candidates() []contracts.Candidate {
	out := make([]contracts.Candidate, len(u.candidates))
	for i, c := range u.candidates {
		out[i] = c
		out[i].Record = c.Record.Clone()
	}
	return out
}

// Records returns the relevant companies as engine records
func (u *Universe) Records() []contracts.CompanyRecord {
	out := make([]contracts.CompanyRecord, len(u.candidates))
	for i, c := range u.candidates {
		out[i] = c.Record.Clone()
	}
	return out
}

// Excluded lists tickers dropped as not relevant
func (u *Universe) Excluded() []string {
	return append([]string(nil), u.excluded...)
}

// Len returns the number of relevant candidates
func (u *Universe) Len() int {
	return len(u.candidates)
}

// Classify implements contracts.ClassificationSource from the file contents
func (u *Universe) Classify(ctx context.Context, ticker string) (*contracts.Classification, error) {
	c, ok := u.classifications[strings.ToUpper(ticker)]
	if !ok {
		return nil, fmt.Errorf("classification %s: %w", ticker, contracts.ErrNotFound)
	}
	return &c, nil
}
