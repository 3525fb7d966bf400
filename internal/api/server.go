// Package api exposes the quest engine over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/codequest/quest-engine/internal/catalog"
	"github.com/codequest/quest-engine/internal/config"
	"github.com/codequest/quest-engine/internal/evaluator"
	"github.com/codequest/quest-engine/internal/notify"
	"github.com/codequest/quest-engine/internal/progression"
	"github.com/codequest/quest-engine/internal/sandbox"
	"github.com/codequest/quest-engine/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	config    config.ServerConfig
	router    *chi.Mux
	catalog   *catalog.Loader
	evaluator *evaluator.Evaluator
	machine   *progression.Machine
	runner    sandbox.Runner
	repo      storage.Repository
	hub       *notify.Hub
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	cat *catalog.Loader,
	eval *evaluator.Evaluator,
	machine *progression.Machine,
	runner sandbox.Runner,
	repo storage.Repository,
	hub *notify.Hub,
) *Server {
	s := &Server{
		config:    cfg,
		catalog:   cat,
		evaluator: eval,
		machine:   machine,
		runner:    runner,
		repo:      repo,
		hub:       hub,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health checks (outside versioned API)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/quests/{questID}", func(r chi.Router) {
			r.Post("/submissions", s.handleSubmit)
			r.Get("/hints/{index}", s.handleGetHint)
		})

		r.Route("/players/{playerID}", func(r chi.Router) {
			r.Get("/levels", s.handleListLevels)
			r.Get("/levels/{levelID}/quests", s.handleListLevelQuests)
			r.Get("/progress", s.handleGetProgress)
		})

		r.Get("/events", s.handleEventsWS)
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
