// Package server exposes the scanner over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/config"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/scanner"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Runner runs one scan. *scanner.Scanner satisfies it.
type Runner interface {
	Run(ctx context.Context, req scanner.Request) (*scanner.Result, error)
}

// RunnerFactory builds a runner for the options of one request.
type RunnerFactory func(opts scanner.Options) Runner

// Library stores named reference embeddings. *store.Store satisfies it.
type Library interface {
	AddLibraryFace(ctx context.Context, name, sourcePath string, embedding []float64) (int64, error)
	GetLibraryFaces(ctx context.Context, ids []int64) ([]store.LibraryFace, error)
	ListLibraryFaces(ctx context.Context) ([]store.LibraryFace, error)
}

// EmbedFunc returns the embedding of the first face in the image at path.
type EmbedFunc func(ctx context.Context, path string) ([]float64, error)

// Server represents the web server
type Server struct {
	cfg        *config.Config
	router     *chi.Mux
	httpServer *http.Server
	newRunner  RunnerFactory
	library    Library
	embed      EmbedFunc
	log        zerolog.Logger
}

type Option func(*Server)

// WithLibrary enables the reference library endpoints and reference ids in scans.
func WithLibrary(lib Library, embed EmbedFunc) Option {
	return func(s *Server) {
		s.library = lib
		s.embed = embed
	}
}

func New(cfg *config.Config, newRunner RunnerFactory, log zerolog.Logger, opts ...Option) *Server {
	r := chi.NewRouter()

	s := &Server{
		cfg:       cfg,
		router:    r,
		newRunner: newRunner,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/timestamps", s.timestamps)
		r.Post("/references", s.addReference)
		r.Get("/references", s.listReferences)
	})

	s.httpServer = &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     r,
		ReadTimeout: 5 * time.Minute, // large uploads
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Start blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}
