package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/go-chi/cors"
	"github.com/vocdoni/zknotes/ledger"
	"github.com/vocdoni/zknotes/log"
)

// Server serves the ledger namespace over HTTP.
type Server struct {
	rpc  *gethrpc.Server
	http *http.Server
	addr string
}

// NewServer registers the ledger methods in a new JSON-RPC server.
func NewServer(l *ledger.Ledger) (*Server, error) {
	if l == nil {
		return nil, fmt.Errorf("missing ledger")
	}
	srv := gethrpc.NewServer()
	if err := srv.RegisterName(Namespace, &API{l: l}); err != nil {
		return nil, fmt.Errorf("register ledger namespace: %w", err)
	}
	return &Server{rpc: srv}, nil
}

// Handler returns the HTTP handler of the JSON-RPC endpoint.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}).Handler(s.rpc)
}

// InProc returns a client connected to the server without a network hop.
func (s *Server) InProc() *Client {
	return NewClient(gethrpc.DialInProc(s.rpc))
}

// Start listens on host:port and serves in the background. A zero port
// picks a free one, see Addr.
func (s *Server) Start(host string, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.addr = ln.Addr().String()
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting ledger JSON-RPC server", "address", s.addr)
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw(err, "ledger JSON-RPC server stopped")
		}
	}()
	return nil
}

// Addr returns the address the server listens on, empty before Start.
func (s *Server) Addr() string {
	return s.addr
}

// URL returns the http URL of the server, empty before Start.
func (s *Server) URL() string {
	if s.addr == "" {
		return ""
	}
	return "http://" + s.addr
}

// Stop shuts the HTTP listener down and closes the JSON-RPC server.
func (s *Server) Stop(ctx context.Context) error {
	defer s.rpc.Stop()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
