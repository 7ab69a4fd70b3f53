package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vbonduro/diamondinv/internal/metrics"
	"github.com/vbonduro/diamondinv/internal/service"
	"github.com/vbonduro/diamondinv/internal/store"
)

// stateSource is the subset of store.Store the change stream needs.
type stateSource interface {
	Snapshot() store.State
	Subscribe(fn store.Listener) func()
}

type Server struct {
	service *service.InventoryService
	events  stateSource
	metrics *metrics.Metrics
	mux     *http.ServeMux
	logger  *slog.Logger
	// done is closed by Shutdown so open event streams end.
	done     chan struct{}
	doneOnce sync.Once
}

func NewServer(svc *service.InventoryService, events stateSource, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		service: svc,
		events:  events,
		metrics: m,
		mux:     http.NewServeMux(),
		logger:  logger,
		done:    make(chan struct{}),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/options", s.handleOptions)
	s.mux.HandleFunc("POST /api/persons", s.handleAddPerson)
	s.mux.HandleFunc("GET /api/kapaans", s.handleListKapaans)
	s.mux.HandleFunc("POST /api/kapaans", s.handleAddKapaan)
	s.mux.HandleFunc("PATCH /api/kapaans/{id}", s.handleUpdateKapaan)
	s.mux.HandleFunc("DELETE /api/kapaans/{id}", s.handleRemoveKapaan)
	s.mux.HandleFunc("GET /api/kapaans/{id}/receives", s.handleKapaanReceives)
	s.mux.HandleFunc("POST /api/kapaans/{id}/receives", s.handleAddReceive)
	s.mux.HandleFunc("DELETE /api/receives/{id}", s.handleRemoveReceive)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown ends open event streams. It is safe to call more than once.
func (s *Server) Shutdown() {
	s.doneOnce.Do(func() { close(s.done) })
}
