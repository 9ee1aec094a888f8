// Package server implements the factorygrid HTTP API.
//
// Routes:
//
//	GET  /healthz      liveness and catalog summary
//	POST /v1/resolve   bill of materials for target rates
//	POST /v1/plan      full pipeline with a bounded solver time limit
//
// Errors are JSON objects {"error": {"code": ..., "message": ...}} with the
// status given by errors.HTTPStatus. The API never writes run directories:
// plans always run with NoIO.
package server

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/factorygrid/pkg/cache"
	"github.com/matzehuels/factorygrid/pkg/catalog"
	"github.com/matzehuels/factorygrid/pkg/pipeline"
)

// DefaultMaxTimeLimit caps the solver time of one API request.
const DefaultMaxTimeLimit = 30 * time.Second

// DefaultMaxUnits caps the units one API request may instantiate.
const DefaultMaxUnits = 200

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Config configures a Server.
type Config struct {
	Catalog     *catalog.Catalog
	CatalogHash string

	// Runner executes pipelines. Nil means a runner without caching.
	Runner *pipeline.Runner
	Logger *log.Logger

	// MaxTimeLimit caps (and defaults) the solver time limit of plan
	// requests.
	MaxTimeLimit time.Duration

	// MaxUnits caps the unit count of plan requests. The model is built
	// before the time limit applies, so this bounds its memory.
	MaxUnits int
}

// Server serves the HTTP API for one catalog.
type Server struct {
	catalog      *catalog.Catalog
	catalogHash  string
	runner       *pipeline.Runner
	logger       *log.Logger
	maxTimeLimit time.Duration
	maxUnits     int
	router       chi.Router
}

// New creates a server and registers its routes.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if cfg.Runner == nil {
		cfg.Runner = pipeline.NewRunner(nil, nil, cfg.Logger)
	}
	if cfg.MaxTimeLimit <= 0 {
		cfg.MaxTimeLimit = DefaultMaxTimeLimit
	}
	if cfg.MaxUnits <= 0 {
		cfg.MaxUnits = DefaultMaxUnits
	}

	s := &Server{
		catalog:      cfg.Catalog,
		catalogHash:  cfg.CatalogHash,
		runner:       cfg.Runner,
		logger:       cfg.Logger,
		maxTimeLimit: cfg.MaxTimeLimit,
		maxUnits:     cfg.MaxUnits,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/resolve", s.handleResolve)
		r.Post("/plan", s.handlePlan)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody("NOT_FOUND", "no route for "+r.Method+" "+r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("METHOD_NOT_ALLOWED", r.Method+" not allowed"))
	})

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Cache returns the runner's cache.
func (s *Server) Cache() cache.Cache { return s.runner.Cache }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully, giving in-flight solves up to the max time limit to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr, "max_time_limit", s.maxTimeLimit, "max_units", s.maxUnits)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.maxTimeLimit)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
