// package server contains middleware & handlers for the music streaming service
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/peerlessmusic/backend/internal/auth"
	"github.com/peerlessmusic/backend/internal/pipeline"
	"github.com/peerlessmusic/backend/internal/repositories"
	"github.com/peerlessmusic/backend/internal/services"
	"github.com/peerlessmusic/backend/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, authentication, CORS, rate limiting, etc.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers in the streaming service.
// Implementations handle specific endpoint groups (tracks, playlists, identity, failed tracks).
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the method-qualified patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Server assembles the API: the acquisition pipeline plus persistence behind
// an HTTP surface.
type Server struct {
	cfg    *shared.Config
	router *BasicRouter
	logger *log.Logger
	http   *http.Server
}

// Dependencies carries the collaborators the server routes requests to.
type Dependencies struct {
	Search      services.SearchProvider
	Coordinator *pipeline.Coordinator
	Store       services.AssetStore
	Identities  *repositories.IdentityRepository
	Playlists   *repositories.PlaylistRepository
	Failed      *repositories.FailedTrackRepository
	Tokens      *auth.TokenIssuer
}

// New builds a server with all routes and middleware registered.
func New(cfg *shared.Config, deps Dependencies, logger *log.Logger) *Server {
	router := NewBasicRouter()
	router.Use(Logging(logger), CORS())

	cookies := CookiePolicy{Secure: cfg.Auth.SecureCookies}

	router.Handler(&TrackHandler{
		search:      deps.Search,
		coordinator: deps.Coordinator,
		store:       deps.Store,
		logger:      logger,
	})
	router.Handler(&IdentityHandler{
		identities: deps.Identities,
		playlists:  deps.Playlists,
		tokens:     deps.Tokens,
		cookies:    cookies,
		logger:     logger,
	})
	router.Handler(&PlaylistHandler{
		playlists: deps.Playlists,
		tokens:    deps.Tokens,
		logger:    logger,
	})
	router.Handler(&FailedTrackHandler{
		failed: deps.Failed,
		logger: logger,
	})

	router.Handle(http.MethodGet, "/api/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))

	// Preflight requests never match a method-qualified pattern, so route
	// them all through the middleware stack where CORS answers them.
	router.Handle(http.MethodOptions, "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	return &Server{
		cfg:    cfg,
		router: router,
		logger: logger,
		http:   &http.Server{Addr: addr, Handler: router},
	}
}

// Router exposes the assembled handler, primarily for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
