package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dgallion1/docanchor/internal/config"
	"github.com/dgallion1/docanchor/internal/matcher"
	"github.com/dgallion1/docanchor/internal/pathstore"
	"github.com/dgallion1/docanchor/internal/pipeline"
	"github.com/dgallion1/docanchor/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// AnnotationStore is the annotation persistence the API needs.
type AnnotationStore interface {
	pipeline.AnnotationStore
	GetAnnotation(ctx context.Context, docID, id string) (*pathstore.Annotation, error)
	DeleteAnnotation(ctx context.Context, docID, id string) error
	DeleteAnnotations(ctx context.Context, docID string) error
}

// Server is the HTTP API server for docanchor.
type Server struct {
	router       chi.Router
	sessions     *session.Store
	annotations  AnnotationStore
	orchestrator *pipeline.Orchestrator
	stats        *matcher.Stats
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(sessions *session.Store, annotations AnnotationStore, orch *pipeline.Orchestrator, stats *matcher.Stats, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		sessions:     sessions,
		annotations:  annotations,
		orchestrator: orch,
		stats:        stats,
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
		r.Use(AuthMiddleware(s.cfg.DocanchorAPIKey, s.log))

		r.Get("/api/documents", s.handleListDocuments)
		r.Post("/api/documents", s.handleUpload)

		r.Route("/api/documents/{docID}", func(r chi.Router) {
			r.Get("/", s.handleGetDocument)
			r.Delete("/", s.handleDeleteDocument)

			r.Post("/selectors", s.handleBuildSelectors)
			r.Post("/resolve", s.handleResolve)
			r.Post("/search", s.handleSearch)

			r.Post("/highlights", s.handleCreateHighlight)
			r.Patch("/highlights/{hlID}", s.handleUpdateHighlight)
			r.Delete("/highlights/{hlID}", s.handleDeleteHighlight)

			r.Get("/annotations", s.handleListAnnotations)
			r.Delete("/annotations/{annID}", s.handleDeleteAnnotation)

			r.Post("/reanchor", s.handleReanchor)
		})

		r.Get("/api/reanchor/{jobID}/status", s.handleReanchorStatus)
		r.Get("/api/stats/search", s.handleSearchStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
