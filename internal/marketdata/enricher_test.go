package marketdata

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/futureindex/internal/contracts"
	"github.com/wonny/futureindex/pkg/redis"
)

type fakeSource struct {
	mu       sync.Mutex
	caps     map[string]float64
	revenues map[string][]contracts.RevenuePeriod
	capErr   error
	revErr   error
	calls    int
}

func (f *fakeSource) MarketCap(ctx context.Context, ticker string) (float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.capErr != nil {
		return 0, f.capErr
	}
	return f.caps[ticker], nil
}

func (f *fakeSource) AnnualRevenues(ctx context.Context, ticker string, limit int) ([]contracts.RevenuePeriod, error) {
	if f.revErr != nil {
		return nil, f.revErr
	}
	p, ok := f.revenues[ticker]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return p, nil
}

type fixedEstimates map[string]float64

func (e fixedEstimates) Estimate(ticker string) float64 {
	if v, ok := e[ticker]; ok {
		return v
	}
	return 10
}

func candidates() []contracts.Candidate {
	return []contracts.Candidate{
		{Record: contracts.CompanyRecord{Ticker: "ASTS", ExposurePct: 100}},
		{Record: contracts.CompanyRecord{Ticker: "RKLB", ExposurePct: 95}},
		{Record: contracts.CompanyRecord{Ticker: "IRDM", ExposurePct: 90, MarketCap: 3e9, GrowthRate: 7}, GrowthKnown: true},
	}
}

func TestEnricher_Enrich(t *testing.T) {
	src := &fakeSource{
		caps: map[string]float64{"ASTS": 8e9, "RKLB": 12e9, "IRDM": 99},
		revenues: map[string][]contracts.RevenuePeriod{
			"RKLB": {{FiscalYear: 2024, Revenue: 436}, {FiscalYear: 2023, Revenue: 245}},
		},
	}
	e := NewEnricher(src, nil, 2, nil)

	res, err := e.Enrich(context.Background(), candidates(), fixedEstimates{"ASTS": 150})
	require.NoError(t, err)
	require.Len(t, res.Records, 3)

	// order preserved
	assert.Equal(t, "ASTS", res.Records[0].Ticker)
	assert.Equal(t, "IRDM", res.Records[2].Ticker)

	assert.Equal(t, 8e9, res.Records[0].MarketCap)
	assert.Equal(t, 150.0, res.Records[0].GrowthRate)
	assert.Equal(t, GrowthEstimated, res.GrowthSource["ASTS"])

	assert.InDelta(t, (436.0-245)/245*100, res.Records[1].GrowthRate, 1e-9)
	assert.Equal(t, GrowthFromRevenues, res.GrowthSource["RKLB"])

	// supplied values are never overwritten
	assert.Equal(t, 3e9, res.Records[2].MarketCap)
	assert.Equal(t, 7.0, res.Records[2].GrowthRate)
	assert.Equal(t, GrowthFromUniverse, res.GrowthSource["IRDM"])

	assert.Empty(t, res.MissingCap)
	assert.Equal(t, 2, src.calls, "known caps are not fetched")
}

func TestEnricher_FailuresDegrade(t *testing.T) {
	src := &fakeSource{capErr: errors.New("timeout"), revErr: errors.New("timeout")}
	e := NewEnricher(src, nil, 4, nil)

	res, err := e.Enrich(context.Background(), candidates(), fixedEstimates{})
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Records[0].MarketCap)
	assert.Equal(t, 10.0, res.Records[0].GrowthRate)
	assert.Equal(t, []string{"ASTS", "RKLB"}, res.MissingCap)
	assert.NoError(t, contracts.ValidateRecords(res.Records))
}

func TestEnricher_NoSource(t *testing.T) {
	e := NewEnricher(nil, nil, 0, nil)

	res, err := e.Enrich(context.Background(), candidates(), fixedEstimates{"RKLB": 50})
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.Records[1].GrowthRate)
	assert.Equal(t, GrowthEstimated, res.GrowthSource["RKLB"])
}

func TestEnricher_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEnricher(&fakeSource{}, nil, 1, nil)
	_, err := e.Enrich(ctx, candidates(), fixedEstimates{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEnricher_DoesNotMutateCandidates(t *testing.T) {
	cands := candidates()
	cands[0].Record.Segments = []string{"Satellites"}

	e := NewEnricher(&fakeSource{caps: map[string]float64{"ASTS": 1e9}}, nil, 1, nil)
	res, err := e.Enrich(context.Background(), cands, fixedEstimates{})
	require.NoError(t, err)

	res.Records[0].Segments[0] = "changed"
	assert.Equal(t, 0.0, cands[0].Record.MarketCap)
	assert.Equal(t, "Satellites", cands[0].Record.Segments[0])
}

// recordingHook captures commands instead of sending them to a server
type recordingHook struct {
	mu   sync.Mutex
	cmds [][]interface{}
}

func (h *recordingHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("dial disabled")
	}
}

func (h *recordingHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		h.mu.Lock()
		h.cmds = append(h.cmds, cmd.Args())
		h.mu.Unlock()
		return nil
	}
}

func (h *recordingHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

func TestEnricher_Invalidate(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = rdb.Close() })
	hook := &recordingHook{}
	rdb.AddHook(hook)

	cache := redis.NewCache(redis.NewFromRedis(rdb), "test")
	e := NewEnricher(&fakeSource{}, cache, 1, nil)

	require.NoError(t, e.Invalidate(context.Background(), []string{"ASTS", "RKLB"}))

	assert.Equal(t, [][]interface{}{
		{"del", "test:cache:marketcap:ASTS"},
		{"del", "test:cache:revenues:ASTS:2"},
		{"del", "test:cache:marketcap:RKLB"},
		{"del", "test:cache:revenues:RKLB:2"},
	}, hook.cmds)
}

func TestEnricher_Invalidate_NoCache(t *testing.T) {
	e := NewEnricher(&fakeSource{}, nil, 1, nil)
	assert.NoError(t, e.Invalidate(context.Background(), []string{"ASTS"}))
}
