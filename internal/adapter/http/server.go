package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/parking-recommender/internal/domain"
	"github.com/couchcryptid/parking-recommender/internal/observability"
	"github.com/couchcryptid/parking-recommender/internal/recommend"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxRequestBytes bounds a recommendation request body.
const maxRequestBytes = 1 << 20

// Recommender scores a recommendation request.
type Recommender interface {
	Recommend(ctx context.Context, req domain.Request) (*recommend.Recommendation, error)
}

// Server exposes the recommendation API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer  *http.Server
	recommender Recommender
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewServer creates an HTTP server with /v1/recommendations, /healthz, /readyz, and /metrics routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, recommender Recommender, logger *slog.Logger, metrics *observability.Metrics) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		recommender: recommender,
		logger:      logger,
		metrics:     metrics,
	}

	mux.HandleFunc("POST /v1/recommendations", s.handleRecommend)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
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

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(w, http.StatusRequestEntityTooLarge, "too_large", err)
			return
		}
		s.reject(w, http.StatusBadRequest, "read_error", err)
		return
	}

	req, err := domain.ParseRequest(body)
	if err != nil {
		s.reject(w, http.StatusBadRequest, "malformed", err)
		return
	}

	rec, err := s.recommender.Recommend(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedRequest) {
			s.reject(w, http.StatusBadRequest, "malformed", err)
			return
		}
		s.metrics.Recommendations.WithLabelValues("http", "error").Inc()
		s.logger.Error("recommendation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "recommendation failed"})
		return
	}
	s.metrics.Recommendations.WithLabelValues("http", "success").Inc()

	if ranked, _ := strconv.ParseBool(r.URL.Query().Get("ranked")); ranked {
		writeJSON(w, http.StatusOK, rec.Ranked())
		return
	}
	writeJSON(w, http.StatusOK, rec.Response())
}

func (s *Server) reject(w http.ResponseWriter, status int, outcome string, err error) {
	s.metrics.Recommendations.WithLabelValues("http", outcome).Inc()
	s.logger.Warn("rejected recommendation request", "status", status, "outcome", outcome, "error", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
