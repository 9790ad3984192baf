package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/docreview/internal/config"
	"github.com/dgallion1/docreview/internal/ledger"
	"github.com/dgallion1/docreview/internal/pipeline"
	"github.com/dgallion1/docreview/internal/storage"
)

// Server is the HTTP API server for docreview.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	store        storage.Store
	ledger       *ledger.Ledger
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. The ledger may be nil,
// in which case run history is unavailable.
func NewServer(orch *pipeline.Orchestrator, store storage.Store, l *ledger.Ledger, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		store:        store,
		ledger:       l,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/reviews", s.handleSubmitReview)
		r.Get("/api/reviews/{jobID}/status", s.handleReviewStatus)
		r.Get("/api/review-template", s.handleReviewTemplate)

		r.Post("/api/executions/{executionID}/aggregate", s.handleAggregate)
		r.Get("/api/executions/{executionID}/review-input", s.handleReviewInput)
		r.Get("/api/executions/{executionID}/review-sheet", s.handleReviewSheet)

		r.Get("/api/runs", s.handleListRuns)
		r.Get("/api/stats/storage", s.handleStorageStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
