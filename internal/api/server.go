package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/ir-server/ir-server/internal/remotes"
	"github.com/ir-server/ir-server/internal/server"
)

// StatsSource exposes the daemon counters the API reports.
type StatsSource interface {
	StatsSnapshot() server.Stats
}

// RESTServer is the read-only HTTP status API.
type RESTServer struct {
	db     *remotes.Database
	stats  StatsSource
	router chi.Router
	server *http.Server
}

// NewRESTServer creates a new REST API server
func NewRESTServer(db *remotes.Database, stats StatsSource) *RESTServer {
	s := &RESTServer{
		db:     db,
		stats:  stats,
		router: chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.HandleStatus)
		r.Get("/version", s.HandleVersion)
		r.Get("/remotes", s.HandleListRemotes)
		r.Get("/remotes/{name}", s.HandleGetRemote)
		r.Get("/clients", s.HandleClients)
	})
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
