// Package api exposes the HTTP interface for the scraper service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TungDuong1712/lawyer-crawling-system/internal/config"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/crawler"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/enrich"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/metrics"
	"github.com/TungDuong1712/lawyer-crawling-system/internal/session"
)

// Server wires HTTP handlers to the coordinator and stores.
type Server struct {
	router      chi.Router
	sessions    crawler.SessionStore
	targets     crawler.TargetStore
	records     crawler.RecordStore
	coordinator *session.Coordinator
	enrichment  *enrich.Service
	cfg         config.Config
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The
// enrichment service may be nil when no lookup API is configured.
func NewServer(
	sessions crawler.SessionStore,
	targets crawler.TargetStore,
	records crawler.RecordStore,
	coordinator *session.Coordinator,
	enrichment *enrich.Service,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sessions:    sessions,
		targets:     targets,
		records:     records,
		coordinator: coordinator,
		enrichment:  enrichment,
		cfg:         cfg,
		logger:      logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.createSession)
			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Get("/status", s.getSession)
				r.Post("/start", s.startSession)
				r.Post("/cancel", s.cancelSession)
				r.Get("/records", s.listRecords)
			})
		})
		r.Post("/records/{record_id}/lookup", s.lookupRecord)
		r.Get("/enrichment/account", s.enrichmentAccount)
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

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createSessionRequest struct {
	Name       string   `json:"name"`
	SeedURLs   []string `json:"seed_urls"`
	Sites      []string `json:"sites"`
	Categories []string `json:"categories"`
	Regions    []string `json:"regions"`
	Localities []string `json:"localities"`
}

// createSession registers a session over explicit seed URLs or, when none
// are given, over the cartesian product of the request's facet lists.
// Facet lists left empty fall back to the configured seed defaults.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	seeds := req.SeedURLs
	if len(seeds) == 0 {
		seeds = s.coordinator.GenerateSeeds(
			valuesOrDefault(req.Sites, s.cfg.Seeds.Sites),
			valuesOrDefault(req.Categories, s.cfg.Seeds.Categories),
			valuesOrDefault(req.Regions, s.cfg.Seeds.Regions),
			valuesOrDefault(req.Localities, s.cfg.Seeds.Localities),
		)
	}
	if len(seeds) == 0 {
		s.writeError(w, http.StatusBadRequest, "no seed URLs given and none could be generated")
		return
	}

	created, err := s.coordinator.CreateSession(r.Context(), req.Name, seeds)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"session": created})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	sess, err := s.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	targets, err := s.targets.ListTargets(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list targets")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session": sess,
		"targets": targets,
	})
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if err := s.coordinator.Start(r.Context(), sessionID); err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": sessionID,
		"status":     string(crawler.SessionStatusRunning),
	})
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if err := s.coordinator.Cancel(r.Context(), sessionID); err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"status":     string(crawler.SessionStatusCancelled),
	})
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if _, err := s.sessions.GetSession(r.Context(), sessionID); err != nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	records, err := s.records.ListRecords(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if records == nil {
		records = []crawler.Record{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) lookupRecord(w http.ResponseWriter, r *http.Request) {
	if s.enrichment == nil {
		s.writeError(w, http.StatusServiceUnavailable, "contact lookup is not configured")
		return
	}
	recordID := chi.URLParam(r, "record_id")
	attempt, err := s.enrichment.Dispatch(r.Context(), recordID)
	if err != nil {
		switch {
		case errors.Is(err, crawler.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "record not found")
		case errors.Is(err, crawler.ErrLookupInFlight):
			s.writeError(w, http.StatusConflict, "a lookup for this record is already in flight")
		default:
			s.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"attempt": attempt})
}

// enrichmentAccount reports the lookup API account state, mainly the
// remaining credit balance.
func (s *Server) enrichmentAccount(w http.ResponseWriter, r *http.Request) {
	if s.enrichment == nil {
		s.writeError(w, http.StatusServiceUnavailable, "contact lookup is not configured")
		return
	}
	account, err := s.enrichment.Account(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"account": account})
}

func valuesOrDefault(values, defaults []string) []string {
	if len(values) > 0 {
		return values
	}
	return defaults
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, duration)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", duration),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
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
