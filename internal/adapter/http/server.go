package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/wastewater-ingest/internal/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TrendReader answers latest-vs-previous queries for one pair.
type TrendReader interface {
	Trend(ctx context.Context, location, pathogen string) (domain.Trend, error)
}

// Server exposes health, readiness, metrics, and trend HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// /trends routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, trends TrendReader, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.HandleFunc("GET /trends", s.handleTrend(trends))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleTrend serves GET /trends?location=...&pathogen=... as a TrendReport.
// An unknown pair is a 200 with no_data set.
func (s *Server) handleTrend(reader TrendReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		location := r.URL.Query().Get("location")
		pathogen := r.URL.Query().Get("pathogen")
		if location == "" || pathogen == "" {
			sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{
				"error": "location and pathogen query parameters are required",
			})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		trend, err := reader.Trend(ctx, location, pathogen)
		if err != nil {
			s.logger.Error("trend query failed", "location", location, "pathogen", pathogen, "error", err)
			sharedobs.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "trend query failed"})
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, trend.Report())
	}
}
