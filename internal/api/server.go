package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mwhitford/politefetch/internal/engine"
	"github.com/mwhitford/politefetch/internal/metrics"
)

const requestTimeout = 120 * time.Second

// Server wires HTTP handlers to the fetch engine.
type Server struct {
	router chi.Router
	engine *engine.Engine
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(eng *engine.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine: eng,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scrape", s.scrape)
		r.Post("/batch", s.batch)
		r.Delete("/cache", s.clearCache)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type fetchOptions struct {
	NoCache        bool `json:"no_cache"`
	TimeoutSeconds *int `json:"timeout_seconds"`
	Retries        *int `json:"retries"`
	RetryDelayMs   *int `json:"retry_delay_ms"`
}

type scrapeRequest struct {
	URL string `json:"url"`
	fetchOptions
}

type batchRequest struct {
	URLs []string `json:"urls"`
	fetchOptions
}

func (o fetchOptions) toEngine() engine.Options {
	opts := engine.Options{
		NoCache: o.NoCache,
		Retries: o.Retries,
	}
	if o.TimeoutSeconds != nil && *o.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(*o.TimeoutSeconds) * time.Second
	}
	if o.RetryDelayMs != nil && *o.RetryDelayMs > 0 {
		opts.RetryDelay = time.Duration(*o.RetryDelayMs) * time.Millisecond
	}
	return opts
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url required")
		return
	}

	result, err := s.engine.Scrape(r.Context(), req.URL, req.toEngine())
	if err != nil {
		s.writeScrapeError(w, req.URL, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one URL required")
		return
	}

	outcome := s.engine.ScrapeMany(r.Context(), req.URLs, req.toEngine())
	failed := make(map[string]string, len(outcome.Failed))
	for url, err := range outcome.Failed {
		failed[url] = err.Error()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"succeeded": outcome.Succeeded,
		"failed":    failed,
	})
}

func (s *Server) clearCache(w http.ResponseWriter, _ *http.Request) {
	s.engine.ClearCache()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) writeScrapeError(w http.ResponseWriter, url string, err error) {
	var invalid *engine.InvalidTargetError
	var httpErr *engine.HTTPError
	switch {
	case errors.As(err, &invalid):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrRobotsDisallowed):
		s.writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &httpErr):
		s.writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":           err.Error(),
			"upstream_status": httpErr.StatusCode,
		})
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		s.logger.Error("scrape failed", zap.String("url", url), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
