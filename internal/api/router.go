package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/futureindex/internal/api/handlers"
	"github.com/wonny/futureindex/pkg/logger"
)

const healthTimeout = 2 * time.Second

// HealthCheck checks one backing dependency for /health
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// NewRouter creates and configures the HTTP router. feed may be nil.
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(indexHandler *handlers.IndexHandler, feed http.Handler, log *logger.Logger, checks ...HealthCheck) http.Handler {
	if log == nil {
		log = logger.NewNop()
	}
	r := mux.NewRouter()

	r.HandleFunc("/health", healthHandler(checks)).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/indices", indexHandler.ListIndices).Methods(http.MethodGet)
	api.HandleFunc("/indices/{name}", indexHandler.GetIndex).Methods(http.MethodGet)
	api.HandleFunc("/indices/{name}/composition", indexHandler.GetComposition).Methods(http.MethodGet)
	api.HandleFunc("/indices/{name}/performance", indexHandler.GetPerformance).Methods(http.MethodGet)
	api.HandleFunc("/indices/{name}/preview", indexHandler.Preview).Methods(http.MethodPost)

	if feed != nil {
		r.Handle("/ws/compositions", feed).Methods(http.MethodGet)
	}

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthHandler answers 200 when every check passes, 503 otherwise
func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status, code := "ok", http.StatusOK
		results := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				results[c.Name] = err.Error()
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			results[c.Name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  status,
			"service": "futureindex-api",
			"checks":  results,
		})
	}
}

// statusRecorder captures the response code; Hijack keeps websocket upgrades working
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			entry := log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			})
			if rec.status >= http.StatusInternalServerError {
				entry.Warn("HTTP request failed")
				return
			}
			entry.Debug("HTTP request")
		})
	}
}

func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(handlers.ErrorResponse{
						Error:   handlers.CodeInternal,
						Message: "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
