package universe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/futureindex/internal/contracts"
)

const sampleYAML = `
companies:
  - ticker: asts
    name: AST SpaceMobile
    is_relevant: true
    exposure_pct: 100
    confidence: high
    segments: [Satellites]
  - ticker: RKLB
    name: Rocket Lab
    is_relevant: true
    exposure_pct: 95
    market_cap: 12000000000
    growth_rate: 55.5
  - ticker: CMCSA
    name: Comcast
    is_relevant: false
    exposure_pct: 2
    confidence: high
`

func TestParse_YAML(t *testing.T) {
	u, err := Parse([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, 2, u.Len())
	assert.Equal(t, []string{"CMCSA"}, u.Excluded())

	cands := u.Candidates()
	assert.Equal(t, "ASTS", cands[0].Record.Ticker, "tickers are upper-cased")
	assert.False(t, cands[0].GrowthKnown)
	assert.Equal(t, contracts.ConfidenceHigh, cands[0].Confidence)

	assert.True(t, cands[1].GrowthKnown)
	assert.Equal(t, 55.5, cands[1].Record.GrowthRate)
	assert.Equal(t, 12e9, cands[1].Record.MarketCap)
}

func TestParse_JSON(t *testing.T) {
	data := `{"companies":[{"ticker":"IRDM","name":"Iridium","is_relevant":true,"exposure_pct":90,"segments":["Satellites"]}]}`

	u, err := Parse([]byte(data), FormatJSON)
	require.NoError(t, err)
	require.Equal(t, 1, u.Len())
	assert.Equal(t, []string{"Satellites"}, u.Records()[0].Segments)
}

func TestParse_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
		want   string
	}{
		{"exposure out of range", "companies:\n  - {ticker: X, is_relevant: true, exposure_pct: 150}", FormatYAML, "exposure_pct"},
		{"duplicate", "companies:\n  - {ticker: X, is_relevant: true}\n  - {ticker: x, is_relevant: false}", FormatYAML, "duplicated"},
		{"bad confidence", "companies:\n  - {ticker: X, is_relevant: true, confidence: certain}", FormatYAML, "confidence"},
		{"unknown yaml field", "companies:\n  - {ticker: X, relevant: true}", FormatYAML, "relevant"},
		{"unknown json field", `{"companies":[{"ticker":"X","score":1}]}`, FormatJSON, "score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_ExcludedEntriesAreNotValidatedAsRecords(t *testing.T) {
	// non-relevant rows may carry sloppy classifier output
	data := "companies:\n  - {ticker: X, is_relevant: true, exposure_pct: 50}\n  - {ticker: Y, is_relevant: false, exposure_pct: 120}"
	u, err := Parse([]byte(data), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Len())
}

func TestUniverse_Classify(t *testing.T) {
	u, err := Parse([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)

	c, err := u.Classify(context.Background(), "cmcsa")
	require.NoError(t, err)
	assert.False(t, c.IsRelevant)
	assert.Equal(t, 2.0, c.ExposurePct)

	_, err = u.Classify(context.Background(), "NOPE")
	assert.True(t, errors.Is(err, contracts.ErrNotFound))
}

func TestUniverse_ReturnsCopies(t *testing.T) {
	u, err := Parse([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)

	recs := u.Records()
	recs[0].Segments[0] = "changed"
	assert.Equal(t, "Satellites", u.Records()[0].Segments[0])
}

func TestLoad_ByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "u.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"companies":[{"ticker":"GSAT","is_relevant":true,"exposure_pct":85}]}`), 0o644))

	u, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Len())

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_RepositoryUniverses(t *testing.T) {
	for _, name := range []string{"spaceinfra.yaml", "aiinfra.yaml"} {
		path := filepath.Join("../../config/universe", name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Skip("universe files not found")
		}

		u, err := Load(path)
		require.NoError(t, err, name)
		assert.Greater(t, u.Len(), 0, name)
	}
}
