// Package api serves the indexer HTTP API: the commitment tree root, Merkle
// paths, commitment lookups and the prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/metrics"
	"github.com/vocdoni/zknotes/state"
)

// APIConfig type represents the configuration for the API HTTP server.
// It includes the host, port and the indexer state to serve.
type APIConfig struct {
	Host  string
	Port  int
	State *state.State
}

// API type represents the indexer HTTP server.
type API struct {
	router *chi.Mux
	state  *state.State
	srv    *http.Server
	addr   string
}

// New creates a new API instance with the given configuration and starts
// the HTTP server in the background. A zero port picks a free one, see Addr.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.State == nil {
		return nil, fmt.Errorf("missing state instance")
	}
	a := &API{
		state: conf.State,
	}

	// Initialize router
	a.initRouter()
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", conf.Host, conf.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	a.addr = ln.Addr().String()
	a.srv = &http.Server{Handler: a.router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infow("starting API server", "address", a.addr)
		if err := a.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw(err, "API server stopped")
		}
	}()
	return a, nil
}

// NewHandler returns an API that is not bound to any listener, to be used
// through Router.
func NewHandler(st *state.State) *API {
	a := &API{state: st}
	a.initRouter()
	return a
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Addr returns the address the server listens on.
func (a *API) Addr() string {
	return a.addr
}

// Close shuts the HTTP server down.
func (a *API) Close(ctx context.Context) error {
	if a.srv == nil {
		return nil
	}
	return a.srv.Shutdown(ctx)
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", HealthEndpoint, "method", "GET")
	a.router.Get(HealthEndpoint, a.health)
	log.Infow("register handler", "endpoint", RootEndpoint, "method", "GET")
	a.router.Get(RootEndpoint, a.root)
	log.Infow("register handler", "endpoint", ProofEndpoint, "method", "GET")
	a.router.Get(ProofEndpoint, a.proof)
	log.Infow("register handler", "endpoint", LeafEndpoint, "method", "GET")
	a.router.Get(LeafEndpoint, a.leaf)
	log.Infow("register handler", "endpoint", LeavesEndpoint, "method", "GET")
	a.router.Get(LeavesEndpoint, a.leaves)
	log.Infow("register handler", "endpoint", MetricsEndpoint, "method", "GET")
	a.router.Method(http.MethodGet, MetricsEndpoint, metrics.Handler())
	a.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrResourceNotFound.Withf("%s", r.URL.Path).Write(w)
	})
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	// Register the API handlers
	a.registerHandlers()
}
