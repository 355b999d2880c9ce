package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/futureindex/pkg/logger"
)

// DefaultShutdownTimeout bounds graceful shutdown
const DefaultShutdownTimeout = 30 * time.Second

// Server serves the index API and the composition feed
// ⭐ SSOT: HTTP 서버 타임아웃/종료 절차는 이 파일에서만
type Server struct {
	httpServer      *http.Server
	logger          *logger.Logger
	shutdownTimeout time.Duration
	onShutdown      []func()
}

// NewServer creates a server listening on addr (e.g. ":8080")
func NewServer(addr string, handler http.Handler, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger:          log.WithComponent("api"),
		shutdownTimeout: DefaultShutdownTimeout,
	}
}

// OnShutdown registers fn to run before in-flight requests are drained.
// Hijacked connections (websocket) are not tracked by http.Server, so
// their owners must close them here.
func (s *Server) OnShutdown(fn func()) {
	s.onShutdown = append(s.onShutdown, fn)
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.httpServer.Addr).Info("API server listening")
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API server")
	for _, fn := range s.onShutdown {
		fn()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return <-errCh
}
