package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/zknotes/api"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/state"
)

// shutdownTimeout bounds the graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

// APIService represents a service that manages the indexer HTTP API server.
type APIService struct {
	state *state.State
	api   *api.API
	mu    sync.Mutex
	host  string
	port  int
}

// NewAPI creates a new APIService instance serving st.
func NewAPI(st *state.State, host string, port int) *APIService {
	return &APIService{
		state: st,
		host:  host,
		port:  port,
	}
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(_ context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api != nil {
		return fmt.Errorf("service already running")
	}
	var err error
	as.api, err = api.New(&api.APIConfig{
		Host:  as.host,
		Port:  as.port,
		State: as.state,
	})
	if err != nil {
		as.api = nil
		return fmt.Errorf("failed to start API server: %w", err)
	}
	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := as.api.Close(ctx); err != nil {
		log.Warnw("failed to stop API server", "error", err)
	}
	as.api = nil
}

// HostPort returns the configured host and port of the API server.
func (as *APIService) HostPort() (string, int) {
	return as.host, as.port
}

// Addr returns the address the running server listens on, or an empty
// string when it is stopped.
func (as *APIService) Addr() string {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.api == nil {
		return ""
	}
	return as.api.Addr()
}
