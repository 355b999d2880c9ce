package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/futureindex/internal/contracts"
	"github.com/wonny/futureindex/internal/indexconfig"
	"github.com/wonny/futureindex/internal/marketdata"
	"github.com/wonny/futureindex/internal/weighting"
)

const testUniverse = `
companies:
  - ticker: AAA
    name: Alpha
    is_relevant: true
    exposure_pct: 90
    market_cap: 10000000000
    growth_rate: 40
  - ticker: BBB
    name: Beta
    is_relevant: true
    exposure_pct: 60
    market_cap: 1000000000
    growth_rate: 10
  - ticker: CCC
    name: Gamma
    is_relevant: true
    exposure_pct: 30
    market_cap: 100000000
  - ticker: ZZZ
    name: Zeta
    is_relevant: false
    exposure_pct: 1
`

type fakeStore struct {
	mu    sync.Mutex
	saved []*contracts.IndexComposition
	err   error
}

func (f *fakeStore) SaveComposition(ctx context.Context, comp *contracts.IndexComposition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, comp)
	return nil
}

func (f *fakeStore) GetLatestComposition(ctx context.Context, name string) (*contracts.IndexComposition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.saved) - 1; i >= 0; i-- {
		if f.saved[i].IndexName == name {
			return f.saved[i], nil
		}
	}
	return nil, contracts.ErrNotFound
}

func (f *fakeStore) GetRebalanceDates(ctx context.Context, name string) ([]time.Time, error) {
	return nil, nil
}

func (f *fakeStore) GetPerformance(ctx context.Context, name string, from, to time.Time) ([]contracts.PerformancePoint, error) {
	return nil, nil
}

type fakePublisher struct {
	published []*contracts.IndexComposition
}

func (f *fakePublisher) Publish(comp *contracts.IndexComposition) {
	f.published = append(f.published, comp)
}

type refreshingEnricher struct {
	*marketdata.Enricher
	invalidated []string
	err         error
}

func (f *refreshingEnricher) Invalidate(ctx context.Context, tickers []string) error {
	f.invalidated = append(f.invalidated, tickers...)
	return f.err
}

func testDefinition(t *testing.T) *indexconfig.Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "universe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testUniverse), 0o644))

	cfg, err := weighting.NewConfig(0.4, 0.3, 0.3, 0.6, 0.01)
	require.NoError(t, err)

	return &indexconfig.Index{
		Name:          "TESTIDX",
		DisplayName:   "Test Index",
		InceptionDate: "2025-01-01",
		Universe:      path,
		Weighting:     cfg,
		Growth: indexconfig.GrowthPolicy{
			DefaultEstimate: 5,
			Estimates:       map[string]float64{"CCC": 25},
		},
	}
}

func TestService_Build(t *testing.T) {
	def := testDefinition(t)
	svc := NewService(nil, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2025, 4, 1, 15, 30, 0, 0, time.UTC) }

	res, err := svc.Build(context.Background(), def, BuildOptions{})
	require.NoError(t, err)

	comp := res.Composition
	assert.Equal(t, "TESTIDX", comp.IndexName)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), comp.RebalanceDate)
	_, err = uuid.Parse(comp.RunID)
	assert.NoError(t, err)
	assert.Len(t, comp.ConfigHash, 64)

	require.Equal(t, 3, comp.Count())
	assert.InDelta(t, 1.0, comp.TotalWeight(), 1e-9)
	assert.Equal(t, "AAA", comp.Constituents[0].Ticker)
	assert.Equal(t, 1, comp.Constituents[0].Rank)
	assert.Equal(t, 3, comp.Summary.Count)

	assert.Equal(t, []string{"ZZZ"}, res.Excluded)
	assert.Equal(t, marketdata.GrowthEstimated, res.GrowthSource["CCC"])
	assert.Equal(t, marketdata.GrowthFromUniverse, res.GrowthSource["AAA"])
	assert.Empty(t, res.MissingCap)
	assert.False(t, res.Saved)

	ccc, ok := comp.Get("CCC")
	require.True(t, ok)
	assert.Equal(t, 25.0, ccc.GrowthRate)
}

func TestService_BuildSaveAndPublish(t *testing.T) {
	def := testDefinition(t)
	store := &fakeStore{}
	pub := &fakePublisher{}
	svc := NewService(nil, store, pub, nil)

	date := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	res, err := svc.Build(context.Background(), def, BuildOptions{Save: true, RebalanceDate: date})
	require.NoError(t, err)
	assert.True(t, res.Saved)

	require.Len(t, store.saved, 1)
	require.Len(t, pub.published, 1)
	assert.Same(t, res.Composition, store.saved[0])
	assert.Equal(t, date, store.saved[0].RebalanceDate)

	latest, err := svc.Latest(context.Background(), "TESTIDX")
	require.NoError(t, err)
	assert.Equal(t, res.Composition.RunID, latest.RunID)
}

func TestService_BuildRefresh(t *testing.T) {
	def := testDefinition(t)
	enr := &refreshingEnricher{Enricher: marketdata.NewEnricher(nil, nil, 1, nil)}
	svc := NewService(enr, nil, nil, nil)

	_, err := svc.Build(context.Background(), def, BuildOptions{})
	require.NoError(t, err)
	assert.Empty(t, enr.invalidated)

	_, err = svc.Build(context.Background(), def, BuildOptions{Refresh: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"AAA", "BBB", "CCC"}, enr.invalidated)

	enr.err = errors.New("connection refused")
	_, err = svc.Build(context.Background(), def, BuildOptions{Refresh: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to refresh market data")
}

func TestService_SaveFailureDoesNotPublish(t *testing.T) {
	def := testDefinition(t)
	store := &fakeStore{err: errors.New("connection refused")}
	pub := &fakePublisher{}
	svc := NewService(nil, store, pub, nil)

	_, err := svc.Build(context.Background(), def, BuildOptions{Save: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save composition")
	assert.Empty(t, pub.published)
}

func TestService_SaveWithoutStore(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)
	err := svc.Save(context.Background(), &contracts.IndexComposition{})
	assert.Error(t, err)
}

func TestService_ModeOverrideChangesHash(t *testing.T) {
	def := testDefinition(t)
	svc := NewService(nil, nil, nil, nil)

	base, err := svc.Build(context.Background(), def, BuildOptions{})
	require.NoError(t, err)
	filled, err := svc.Build(context.Background(), def, BuildOptions{Mode: weighting.ModeWaterFill})
	require.NoError(t, err)

	assert.NotEqual(t, base.Composition.ConfigHash, filled.Composition.ConfigHash)
	assert.Equal(t, weighting.ModeClipRenormalize, def.Weighting.Mode, "definition must not be mutated")

	_, err = svc.Build(context.Background(), def, BuildOptions{Mode: "greedy"})
	assert.ErrorIs(t, err, weighting.ErrInvalidConfig)
}

func TestService_BuildMissingUniverse(t *testing.T) {
	def := testDefinition(t)
	svc := NewService(nil, nil, nil, nil)

	_, err := svc.Build(context.Background(), def, BuildOptions{UniversePath: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load universe")
}

func TestService_CalculateInvalidRecords(t *testing.T) {
	def := testDefinition(t)
	svc := NewService(nil, nil, nil, nil)

	records := []contracts.CompanyRecord{
		{Ticker: "AAA", ExposurePct: 50},
		{Ticker: "aaa", ExposurePct: 50},
	}
	_, err := svc.Calculate(context.Background(), def, records, time.Time{})
	assert.Error(t, err)
}

func TestService_CalculateCancelled(t *testing.T) {
	def := testDefinition(t)
	svc := NewService(nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Calculate(ctx, def, nil, time.Time{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_CalculateEmpty(t *testing.T) {
	def := testDefinition(t)
	svc := NewService(nil, nil, nil, nil)

	comp, err := svc.Calculate(context.Background(), def, nil, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, comp.Constituents)
	assert.Equal(t, contracts.Summary{}, comp.Summary)
}
