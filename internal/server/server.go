// Package server exposes ingestion and search over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/shiryo/internal/cache"
	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/internal/corpus"
	"github.com/hyperjump/shiryo/internal/ingest"
	"github.com/hyperjump/shiryo/internal/search"
	"go.uber.org/zap"
)

// maxUploadBytes bounds a single document body.
const maxUploadBytes = 64 << 20

// Server is the HTTP server for the shiryo API.
type Server struct {
	engine *search.Engine
	ingest *ingest.Service
	corpus *corpus.Index
	cache  *cache.ResultCache
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies. rc may be nil when caching is
// disabled.
func NewServer(
	engine *search.Engine,
	svc *ingest.Service,
	ix *corpus.Index,
	rc *cache.ResultCache,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine: engine,
		ingest: svc,
		corpus: ix,
		cache:  rc,
		config: cfg,
		logger: logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	timeout := 60 * time.Second
	if s.config != nil {
		if d := s.config.Extraction.OverallTimeout + 30*time.Second; d > timeout {
			timeout = d
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.Compress(5)).Post("/search", s.handleSearch)
		r.Get("/documents", s.handleListDocuments)
		r.Put("/documents/{id}", s.handlePutDocument)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
