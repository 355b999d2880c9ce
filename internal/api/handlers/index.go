package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/futureindex/internal/contracts"
	"github.com/wonny/futureindex/internal/index"
	"github.com/wonny/futureindex/internal/indexconfig"
	"github.com/wonny/futureindex/internal/performance"
	"github.com/wonny/futureindex/internal/store"
	"github.com/wonny/futureindex/internal/universe"
	"github.com/wonny/futureindex/internal/weighting"
	"github.com/wonny/futureindex/pkg/logger"
)

// maxPreviewBody bounds POSTed universe documents
const maxPreviewBody = 1 << 20

// Store is what the index endpoints read from
type Store interface {
	contracts.CompositionStore
	GetComposition(ctx context.Context, indexName string, date time.Time) (*contracts.IndexComposition, error)
	ListIndexSummaries(ctx context.Context) (map[string]store.IndexSummary, error)
}

// IndexHandler handles index API endpoints
// ⭐ SSOT: 인덱스 API 핸들러는 이 구조체에서만
type IndexHandler struct {
	defs    *indexconfig.Config
	store   Store // nil when no database is configured
	service *index.Service
	logger  *logger.Logger
	now     func() time.Time
}

// NewIndexHandler creates a new index handler
func NewIndexHandler(defs *indexconfig.Config, st Store, service *index.Service, log *logger.Logger) *IndexHandler {
	return &IndexHandler{
		defs:    defs,
		store:   st,
		service: service,
		logger:  log,
		now:     time.Now,
	}
}

// IndexDetail is the response of GET /api/indices/{name}
type IndexDetail struct {
	contracts.IndexInfo
	Weighting      weighting.Config `json:"weighting"`
	Schedule       string           `json:"schedule"`
	RebalanceDates []string         `json:"rebalance_dates"`
}

// PreviewResponse is the response of POST /api/indices/{name}/preview
type PreviewResponse struct {
	Composition *contracts.IndexComposition `json:"composition"`
	Excluded    []string                    `json:"excluded"`
	MissingCap  []string                    `json:"missing_market_cap"`
}

// ListIndices returns every configured index with its latest stored state
// GET /api/indices
func (h *IndexHandler) ListIndices(w http.ResponseWriter, r *http.Request) {
	var summaries map[string]store.IndexSummary
	if h.store != nil {
		var err error
		summaries, err = h.store.ListIndexSummaries(r.Context())
		if err != nil {
			h.logger.WithError(err).Error("Failed to list index summaries")
			respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to retrieve indices")
			return
		}
	}

	out := make([]contracts.IndexInfo, 0, len(h.defs.Indices))
	for i := range h.defs.Indices {
		def := &h.defs.Indices[i]
		out = append(out, h.info(def, summaries[def.Name]))
	}

	respondJSON(w, http.StatusOK, out)
}

// GetIndex returns one index definition and its rebalance history
// GET /api/indices/{name}
func (h *IndexHandler) GetIndex(w http.ResponseWriter, r *http.Request) {
	def, ok := h.lookup(w, r)
	if !ok {
		return
	}

	detail := IndexDetail{
		Weighting:      def.Weighting,
		Schedule:       def.CronSchedule(),
		RebalanceDates: []string{},
	}

	var summary store.IndexSummary
	if h.store != nil {
		ctx := r.Context()
		summaries, err := h.store.ListIndexSummaries(ctx)
		if err != nil {
			h.logger.WithError(err).WithIndex(def.Name).Error("Failed to get index summary")
			respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to retrieve index")
			return
		}
		summary = summaries[def.Name]

		dates, err := h.store.GetRebalanceDates(ctx, def.Name)
		if err != nil {
			h.logger.WithError(err).WithIndex(def.Name).Error("Failed to get rebalance dates")
			respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to retrieve index")
			return
		}
		for _, d := range dates {
			detail.RebalanceDates = append(detail.RebalanceDates, d.Format(indexconfig.DateLayout))
		}
	}
	detail.IndexInfo = h.info(def, summary)

	respondJSON(w, http.StatusOK, detail)
}

// GetComposition returns the latest composition, or the one at ?date=YYYY-MM-DD
// GET /api/indices/{name}/composition
func (h *IndexHandler) GetComposition(w http.ResponseWriter, r *http.Request) {
	def, ok := h.lookup(w, r)
	if !ok || !h.requireStore(w) {
		return
	}

	ctx := r.Context()
	var (
		comp *contracts.IndexComposition
		err  error
	)
	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		date, perr := time.Parse(indexconfig.DateLayout, dateStr)
		if perr != nil {
			respondError(w, http.StatusBadRequest, CodeInvalidDate, "date must be YYYY-MM-DD")
			return
		}
		comp, err = h.store.GetComposition(ctx, def.Name, date)
	} else {
		comp, err = h.store.GetLatestComposition(ctx, def.Name)
	}

	if errors.Is(err, contracts.ErrNotFound) {
		respondError(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("no composition stored for %s", def.Name))
		return
	}
	if err != nil {
		h.logger.WithError(err).WithIndex(def.Name).Error("Failed to get composition")
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to retrieve composition")
		return
	}

	respondJSON(w, http.StatusOK, comp)
}

// GetPerformance returns index levels and return statistics
// GET /api/indices/{name}/performance?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *IndexHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	def, ok := h.lookup(w, r)
	if !ok || !h.requireStore(w) {
		return
	}

	from, err := def.Inception()
	if err != nil {
		from = time.Time{}
	}
	to := h.now().UTC()

	q := r.URL.Query()
	if s := q.Get("from"); s != "" {
		if from, err = time.Parse(indexconfig.DateLayout, s); err != nil {
			respondError(w, http.StatusBadRequest, CodeInvalidDate, "from must be YYYY-MM-DD")
			return
		}
	}
	if s := q.Get("to"); s != "" {
		if to, err = time.Parse(indexconfig.DateLayout, s); err != nil {
			respondError(w, http.StatusBadRequest, CodeInvalidDate, "to must be YYYY-MM-DD")
			return
		}
	}
	if to.Before(from) {
		respondError(w, http.StatusBadRequest, CodeInvalidDate, "to must not be before from")
		return
	}

	series, err := h.store.GetPerformance(r.Context(), def.Name, from, to)
	if err != nil {
		h.logger.WithError(err).WithIndex(def.Name).Error("Failed to get performance")
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to retrieve performance")
		return
	}

	report, err := performance.Analyze(def.Name, from, to, series)
	if errors.Is(err, performance.ErrNoData) {
		respondError(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("no performance data for %s in range", def.Name))
		return
	}
	if err != nil {
		h.logger.WithError(err).WithIndex(def.Name).Error("Failed to analyze performance")
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to analyze performance")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// Preview weights a POSTed universe ({"companies": [...]}) without saving.
// ?mode=water_fill overrides the configured reconciliation mode.
// POST /api/indices/{name}/preview
func (h *IndexHandler) Preview(w http.ResponseWriter, r *http.Request) {
	def, ok := h.lookup(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPreviewBody))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, CodeBodyTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "failed to read request body")
		return
	}

	u, err := universe.Parse(body, universe.FormatJSON)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	opts := index.BuildOptions{Mode: weighting.Mode(r.URL.Query().Get("mode"))}
	result, err := h.service.Preview(r.Context(), def, u, opts)
	if errors.Is(err, weighting.ErrInvalidConfig) {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.WithError(err).WithIndex(def.Name).Error("Failed to preview composition")
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to calculate composition")
		return
	}

	respondJSON(w, http.StatusOK, PreviewResponse{
		Composition: result.Composition,
		Excluded:    nonNil(result.Excluded),
		MissingCap:  nonNil(result.MissingCap),
	})
}

func (h *IndexHandler) lookup(w http.ResponseWriter, r *http.Request) (*indexconfig.Index, bool) {
	name := mux.Vars(r)["name"]
	def, ok := h.defs.Find(name)
	if !ok {
		respondError(w, http.StatusNotFound, CodeIndexNotFound, fmt.Sprintf("index %q is not configured", name))
		return nil, false
	}
	return def, true
}

func (h *IndexHandler) requireStore(w http.ResponseWriter) bool {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "database is not configured")
		return false
	}
	return true
}

func (h *IndexHandler) info(def *indexconfig.Index, s store.IndexSummary) contracts.IndexInfo {
	info := contracts.IndexInfo{
		Name:            def.Name,
		DisplayName:     def.DisplayName,
		Description:     def.Description,
		NumConstituents: s.NumConstituents,
		TotalMarketCap:  s.TotalMarketCap,
	}
	if inception, err := def.Inception(); err == nil {
		info.InceptionDate = inception
	}
	if !s.LastRebalance.IsZero() {
		last := s.LastRebalance
		info.LastRebalance = &last
	}
	if next, err := def.NextRebalance(h.now()); err == nil {
		info.NextRebalance = &next
	}
	return info
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
