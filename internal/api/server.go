// Package api exposes the HTTP interface for the scan service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ampscan/ampscan/internal/config"
	"github.com/ampscan/ampscan/internal/metrics"
	"github.com/ampscan/ampscan/internal/scan"
)

// ScanRunner starts one-shot scans. *scan.Runner satisfies this interface.
type ScanRunner interface {
	Run(ctx context.Context, opts scan.RunOptions) (scan.Summary, error)
	CountURLs(ctx context.Context, opts scan.RunOptions) (int, error)
}

// Server wires HTTP handlers to the runner and stores.
type Server struct {
	router  chi.Router
	runner  ScanRunner
	oracle  scan.Oracle
	store   scan.ClassificationStore
	kv      scan.KV
	homeURL string
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. homeURL scopes
// single-URL validation to the site under scan.
func NewServer(
	runner ScanRunner,
	oracle scan.Oracle,
	store scan.ClassificationStore,
	kv scan.KV,
	homeURL string,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:  runner,
		oracle:  oracle,
		store:   store,
		kv:      kv,
		homeURL: homeURL,
		cfg:     cfg,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scans", s.startScan)
		r.Post("/validate", s.validateURL)
		r.Get("/summary", s.getSummary)
		r.Route("/errors/{slug}", func(r chi.Router) {
			r.Get("/", s.getClassification)
			r.Put("/", s.putClassification)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The KV store is on every scan's critical path; probe it.
	if _, _, err := s.kv.Get(r.Context(), scan.SummaryKey); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "kv store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type startScanRequest struct {
	Limit   int      `json:"limit"`
	Include []string `json:"include"`
	Force   bool     `json:"force"`
}

func (s *Server) startScan(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if req.Limit <= 0 {
		req.Limit = s.cfg.Scan.LimitPerType
	}

	summary, err := s.runner.Run(r.Context(), scan.RunOptions{
		Limit:   req.Limit,
		Include: req.Include,
		Force:   req.Force,
	})
	switch {
	case errors.Is(err, scan.ErrLocked):
		metrics.ObserveLockContention()
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, scan.ErrNoURLs):
		s.writeError(w, http.StatusUnprocessableEntity, "no URLs available to validate")
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.ObserveBatch(summary.FinishedAt.Sub(summary.StartedAt))
	s.writeJSON(w, http.StatusOK, summary)
}

type validateRequest struct {
	URL string `json:"url"`
}

func (s *Server) validateURL(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "missing url")
		return
	}
	if !sameHost(s.homeURL, req.URL) {
		s.writeError(w, http.StatusBadRequest, "url does not belong to this site")
		return
	}

	report, err := s.oracle.Validate(r.Context(), req.URL)
	if err != nil {
		var fe *scan.FetchError
		if errors.As(err, &fe) && fe.StatusCode != 0 {
			s.writeError(w, http.StatusBadGateway, fe.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	raw, found, err := s.kv.Get(r.Context(), scan.SummaryKey)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "no scan has completed yet")
		return
	}
	var summary scan.Summary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		s.writeError(w, http.StatusInternalServerError, "stored summary is corrupt")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) getClassification(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	cls, found, err := s.store.Get(r.Context(), slug)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "unknown error slug")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"slug": slug, "classification": cls})
}

type putClassificationRequest struct {
	Status scan.AcceptanceStatus `json:"status"`
}

func (s *Server) putClassification(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	var req putClassificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	switch req.Status {
	case scan.StatusAckAccepted, scan.StatusAckRejected:
	default:
		s.writeError(w, http.StatusBadRequest, "status must be ack_accepted or ack_rejected")
		return
	}

	cls, found, err := s.store.Get(r.Context(), slug)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "unknown error slug")
		return
	}
	cls.Status = req.Status
	if err := s.store.Put(r.Context(), slug, cls); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"slug": slug, "classification": cls})
}

// sameHost reports whether candidate shares a host with the site home URL.
func sameHost(home, candidate string) bool {
	h, err := url.Parse(home)
	if err != nil {
		return false
	}
	c, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	return h.Host != "" && h.Host == c.Host
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)
			metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, elapsed)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", elapsed.Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				http.Error(w, "unauthorized", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

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
