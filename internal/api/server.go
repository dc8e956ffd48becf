package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/poster-cache/internal/metrics"
	"github.com/JakeFAU/poster-cache/internal/poster"
	"github.com/JakeFAU/poster-cache/internal/submissions"
)

const defaultRequestTimeout = 60 * time.Second

// PosterService returns poster images by title.
type PosterService interface {
	Get(ctx context.Context, title string) (poster.Poster, error)
}

// SubmissionLog stores key/value submissions.
type SubmissionLog interface {
	Submit(fields map[string]string) (submissions.Record, []string, error)
	List() ([]submissions.Record, error)
	View() ([]byte, error)
	Reset() error
}

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

// Options tune the server.
type Options struct {
	RequestTimeout time.Duration
	ReadyChecks    map[string]ReadyCheck
}

// Server wires HTTP handlers to the poster pipeline and the submission log.
type Server struct {
	router      chi.Router
	posters     PosterService
	submissions SubmissionLog
	cache       *CacheHandler
	readyChecks map[string]ReadyCheck
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	posters PosterService,
	subs SubmissionLog,
	cache poster.CacheStore,
	opts Options,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{
		posters:     posters,
		submissions: subs,
		cache:       NewCacheHandler(cache, logger),
		readyChecks: opts.ReadyChecks,
		logger:      logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/", s.index)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/poster", s.getPoster)
	r.Get("/cache", s.cache.List)

	r.Get("/submit", s.submit)
	r.Get("/data", s.listSubmissions)
	r.Get("/delete-all", s.deleteSubmissions)
	r.Get("/view", s.viewSubmissions)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Movie Poster Scraper API",
		"usage":   "GET /poster?movie=MovieName",
		"example": "GET /poster?movie=Inception",
		"endpoints": []string{
			"GET /poster?movie=MovieName",
			"GET /submit?key=value",
			"GET /data",
			"GET /view",
			"GET /delete-all",
			"GET /cache",
		},
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	failures := map[string]string{}
	for name, check := range s.readyChecks {
		if err := check(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failures": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
