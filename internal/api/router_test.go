package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/futureindex/internal/api/handlers"
	"github.com/wonny/futureindex/internal/contracts"
	"github.com/wonny/futureindex/internal/index"
	"github.com/wonny/futureindex/internal/indexconfig"
	"github.com/wonny/futureindex/internal/performance"
	"github.com/wonny/futureindex/internal/store"
	"github.com/wonny/futureindex/pkg/logger"
)

const testIndices = `
indices:
  - name: SPACEINFRA
    display_name: Space Infrastructure Index
    description: test
    inception_date: "2024-01-01"
    universe: universe/spaceinfra.yaml
    weighting:
      exposure_weight: 0.4
      market_cap_weight: 0.3
      growth_weight: 0.3
      max_position: 0.5
      min_position: 0.01
    growth:
      default_estimate: 10
`

type fakeStore struct {
	comp   *contracts.IndexComposition
	points []contracts.PerformancePoint
}

func (f *fakeStore) SaveComposition(ctx context.Context, comp *contracts.IndexComposition) error {
	f.comp = comp
	return nil
}

func (f *fakeStore) GetLatestComposition(ctx context.Context, name string) (*contracts.IndexComposition, error) {
	if f.comp == nil || f.comp.IndexName != name {
		return nil, contracts.ErrNotFound
	}
	return f.comp, nil
}

func (f *fakeStore) GetComposition(ctx context.Context, name string, date time.Time) (*contracts.IndexComposition, error) {
	if f.comp == nil || !f.comp.RebalanceDate.Equal(date) {
		return nil, contracts.ErrNotFound
	}
	return f.comp, nil
}

func (f *fakeStore) GetRebalanceDates(ctx context.Context, name string) ([]time.Time, error) {
	if f.comp == nil {
		return nil, nil
	}
	return []time.Time{f.comp.RebalanceDate}, nil
}

func (f *fakeStore) GetPerformance(ctx context.Context, name string, from, to time.Time) ([]contracts.PerformancePoint, error) {
	var out []contracts.PerformancePoint
	for _, p := range f.points {
		if !p.Date.Before(from) && !p.Date.After(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ListIndexSummaries(ctx context.Context) (map[string]store.IndexSummary, error) {
	out := map[string]store.IndexSummary{}
	if f.comp != nil {
		out[f.comp.IndexName] = store.IndexSummary{
			IndexName:       f.comp.IndexName,
			NumConstituents: f.comp.Count(),
			TotalMarketCap:  3e9,
			LastRebalance:   f.comp.RebalanceDate,
		}
	}
	return out, nil
}

var q2 = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T, st handlers.Store) http.Handler {
	t.Helper()
	defs, err := indexconfig.Parse([]byte(testIndices))
	require.NoError(t, err)

	log := logger.NewNop()
	svc := index.NewService(nil, nil, nil, log)
	return NewRouter(handlers.NewIndexHandler(defs, st, svc, log), nil, log)
}

func seededStore() *fakeStore {
	ret := 0.02
	return &fakeStore{
		comp: &contracts.IndexComposition{
			RunID:         "run-1",
			IndexName:     "SPACEINFRA",
			RebalanceDate: q2,
			Constituents: []contracts.Constituent{
				{Rank: 1, Ticker: "RKLB", Weight: 0.6},
				{Rank: 2, Ticker: "ASTS", Weight: 0.4},
			},
		},
		points: []contracts.PerformancePoint{
			{Date: q2, Value: 1000},
			{Date: q2.AddDate(0, 0, 1), Value: 1020, DailyReturn: &ret},
		},
	}
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handlers.ErrorResponse {
	t.Helper()
	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestRouter(t, nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHealth_Degraded(t *testing.T) {
	defs, err := indexconfig.Parse([]byte(testIndices))
	require.NoError(t, err)
	log := logger.NewNop()
	h := NewRouter(handlers.NewIndexHandler(defs, nil, index.NewService(nil, nil, nil, log), log), nil, log,
		HealthCheck{Name: "database", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	)

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := do(t, h, http.MethodGet, "/anything", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, handlers.CodeInternal, decodeError(t, rec).Error)
}

func TestListIndices(t *testing.T) {
	rec := do(t, newTestRouter(t, seededStore()), http.MethodGet, "/api/indices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []contracts.IndexInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "SPACEINFRA", infos[0].Name)
	assert.Equal(t, 2, infos[0].NumConstituents)
	require.NotNil(t, infos[0].LastRebalance)
	assert.True(t, q2.Equal(*infos[0].LastRebalance))
	assert.NotNil(t, infos[0].NextRebalance)
}

func TestListIndices_WithoutStore(t *testing.T) {
	rec := do(t, newTestRouter(t, nil), http.MethodGet, "/api/indices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []contracts.IndexInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Nil(t, infos[0].LastRebalance)
}

func TestGetIndex(t *testing.T) {
	rec := do(t, newTestRouter(t, seededStore()), http.MethodGet, "/api/indices/spaceinfra", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var detail handlers.IndexDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "SPACEINFRA", detail.Name)
	assert.Equal(t, []string{"2025-04-01"}, detail.RebalanceDates)
	assert.Equal(t, 0.5, detail.Weighting.MaxWeight)
	assert.Equal(t, indexconfig.DefaultSchedule, detail.Schedule)
}

func TestGetIndex_Unknown(t *testing.T) {
	rec := do(t, newTestRouter(t, seededStore()), http.MethodGet, "/api/indices/NOPE", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, handlers.CodeIndexNotFound, decodeError(t, rec).Error)
}

func TestGetComposition(t *testing.T) {
	router := newTestRouter(t, seededStore())

	rec := do(t, router, http.MethodGet, "/api/indices/SPACEINFRA/composition", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var comp contracts.IndexComposition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &comp))
	assert.Equal(t, "run-1", comp.RunID)
	assert.Len(t, comp.Constituents, 2)

	rec = do(t, router, http.MethodGet, "/api/indices/SPACEINFRA/composition?date=2025-04-01", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/indices/SPACEINFRA/composition?date=2025-01-01", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, handlers.CodeNotFound, decodeError(t, rec).Error)

	rec = do(t, router, http.MethodGet, "/api/indices/SPACEINFRA/composition?date=April", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, handlers.CodeInvalidDate, decodeError(t, rec).Error)
}

func TestGetComposition_WithoutStore(t *testing.T) {
	rec := do(t, newTestRouter(t, nil), http.MethodGet, "/api/indices/SPACEINFRA/composition", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, handlers.CodeStoreUnavailable, decodeError(t, rec).Error)
}

func TestGetPerformance(t *testing.T) {
	router := newTestRouter(t, seededStore())

	rec := do(t, router, http.MethodGet, "/api/indices/SPACEINFRA/performance?from=2025-04-01&to=2025-04-30", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report performance.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Len(t, report.Data, 2)
	assert.InDelta(t, 2.0, report.TotalReturn, 1e-9)

	rec = do(t, router, http.MethodGet, "/api/indices/SPACEINFRA/performance?from=2024-01-01&to=2024-02-01", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/indices/SPACEINFRA/performance?from=2025-05-01&to=2025-04-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/indices/SPACEINFRA/performance?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreview(t *testing.T) {
	router := newTestRouter(t, nil)
	body := `{"companies":[
		{"ticker":"RKLB","name":"Rocket Lab","is_relevant":true,"exposure_pct":95,"market_cap":12000000000,"growth_rate":50},
		{"ticker":"ASTS","name":"AST SpaceMobile","is_relevant":true,"exposure_pct":100,"market_cap":8000000000},
		{"ticker":"IRDM","name":"Iridium","is_relevant":true,"exposure_pct":90,"market_cap":3000000000,"growth_rate":5},
		{"ticker":"CMCSA","name":"Comcast","is_relevant":false,"exposure_pct":2}
	]}`

	rec := do(t, router, http.MethodPost, "/api/indices/SPACEINFRA/preview", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Composition)
	assert.Equal(t, 3, resp.Composition.Count())
	assert.InDelta(t, 1.0, resp.Composition.TotalWeight(), 1e-9)
	assert.Equal(t, []string{"CMCSA"}, resp.Excluded)
	assert.Empty(t, resp.MissingCap)
}

func TestPreview_BadInput(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := do(t, router, http.MethodPost, "/api/indices/SPACEINFRA/preview", `{"companies":[{"ticker":"X","exposure_pct":500,"is_relevant":true}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, handlers.CodeInvalidRequest, decodeError(t, rec).Error)

	rec = do(t, router, http.MethodPost, "/api/indices/SPACEINFRA/preview", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := `{"companies":[{"ticker":"X","exposure_pct":50,"is_relevant":true}]}`
	rec = do(t, router, http.MethodPost, "/api/indices/SPACEINFRA/preview?mode=greedy", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreview_BodyTooLarge(t *testing.T) {
	router := newTestRouter(t, nil)

	// well-formed JSON padded past the limit must be rejected, not truncated
	body := `{"companies":[{"ticker":"X","exposure_pct":50,"is_relevant":true}]` + strings.Repeat(" ", 1<<20) + `}`
	rec := do(t, router, http.MethodPost, "/api/indices/SPACEINFRA/preview", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, handlers.CodeBodyTooLarge, resp.Error)
	assert.Contains(t, resp.Message, "1048576")
}

func TestPreview_MethodNotAllowed(t *testing.T) {
	rec := do(t, newTestRouter(t, nil), http.MethodGet, "/api/indices/SPACEINFRA/preview", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
