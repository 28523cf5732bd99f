// Package httpserver exposes the service's HTTP surface: health and
// readiness probes, Prometheus metrics, and a small read-only API over
// the enriched article store.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/patrasense/article-enricher/internal/adapter/sqlite"
	"github.com/patrasense/article-enricher/internal/domain"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// ArticleLister is the read side of the enriched article store.
type ArticleLister interface {
	List(ctx context.Context, f sqlite.Filter) ([]domain.EnrichedArticle, error)
}

// Server exposes health, readiness, metrics, and read-API HTTP endpoints.
type Server struct {
	httpServer *http.Server
	store      ArticleLister
	sensors    *domain.Directory
	logger     *slog.Logger
}

// NewServer creates the HTTP server and mounts all routes.
func NewServer(addr string, ready ReadinessChecker, store ArticleLister, sensors *domain.Directory, logger *slog.Logger) *Server {
	s := &Server{
		store:   store,
		sensors: sensors,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", handleReady(ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/articles", s.handleListArticles)
		r.Get("/sensors", s.handleListSensors)
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// handleListArticles serves GET /api/articles. All query parameters are
// optional filters: sensor, area, primary_tag, secondary_tag, from, to
// (event-date range, YYYY-MM-DD), and limit.
func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := sqlite.Filter{
		Area:         q.Get("area"),
		SensorID:     q.Get("sensor"),
		PrimaryTag:   q.Get("primary_tag"),
		SecondaryTag: q.Get("secondary_tag"),
	}

	var err error
	if filter.From, err = parseDateParam(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date")
		return
	}
	if filter.To, err = parseDateParam(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date")
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	articles, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing articles failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if articles == nil {
		articles = []domain.EnrichedArticle{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(articles),
		"articles": articles,
	})
}

// handleListSensors serves GET /api/sensors with the full directory.
func (s *Server) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	sensors := s.sensors.Sensors()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(sensors),
		"sensors": sensors,
	})
}

func parseDateParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02", "02/01/2006", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
