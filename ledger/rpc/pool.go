package rpc

// The Pool balances calls between several ledger nodes. An endpoint that
// fails at the transport level is flagged as unavailable and the call is
// retried on the next one. If every endpoint fails, the pool resets the
// available flag of all of them and starts again on the next call.
// Rejections returned by a node are not retried: every node would answer
// the same.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/vocdoni/zknotes/ledger"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/wire"
)

const (
	// DefaultMaxClientRetries is the number of attempts to dial a node.
	DefaultMaxClientRetries = 5
	// checkEndpointTimeout bounds the health check done when adding a node.
	checkEndpointTimeout = 10 * time.Second
)

// Endpoint is a ledger node of the pool.
type Endpoint struct {
	URI       string
	client    *Client
	available bool
}

// Pool is a set of ledger nodes used round robin.
type Pool struct {
	mu        sync.Mutex
	endpoints []*Endpoint
	next      int
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{}
}

// AddEndpoint dials the node at uri, checks it answers and adds it to the
// pool.
func (p *Pool) AddEndpoint(ctx context.Context, uri string) error {
	ctx, cancel := context.WithTimeout(ctx, checkEndpointTimeout)
	defer cancel()
	c, err := connect(ctx, uri)
	if err != nil {
		return err
	}
	latest, err := c.LatestLedger(ctx)
	if err != nil {
		c.Close()
		return fmt.Errorf("check ledger node '%s': %w", uri, err)
	}
	log.Infow("ledger endpoint added", "uri", uri, "latestLedger", latest)
	p.AddClient(uri, c)
	return nil
}

// AddClient adds an already connected client under the given name.
func (p *Pool) AddClient(uri string, c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoints = append(p.endpoints, &Endpoint{URI: uri, client: c, available: true})
}

// DisableEndpoint flags the endpoint as unavailable.
func (p *Pool) DisableEndpoint(uri string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.endpoints {
		if e.URI == uri {
			e.available = false
		}
	}
}

// NumberOfEndpoints returns the number of endpoints, or only the available
// ones.
func (p *Pool) NumberOfEndpoints(onlyAvailable bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.endpoints {
		if e.available || !onlyAvailable {
			n++
		}
	}
	return n
}

// Endpoint returns the next available endpoint. When none is available
// every endpoint is enabled again.
func (p *Pool) Endpoint() (*Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.endpoints) == 0 {
		return nil, fmt.Errorf("%w: no ledger endpoint configured", ErrCollaborator)
	}
	for range 2 {
		for i := range p.endpoints {
			e := p.endpoints[(p.next+i)%len(p.endpoints)]
			if e.available {
				p.next = (p.next + i + 1) % len(p.endpoints)
				return e, nil
			}
		}
		for _, e := range p.endpoints {
			e.available = true
		}
	}
	// unreachable, the loop above enables every endpoint
	return nil, fmt.Errorf("%w: no available ledger endpoint", ErrCollaborator)
}

// Close closes every client of the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.endpoints {
		e.client.Close()
	}
	p.endpoints = nil
}

// poolCall runs fn on successive endpoints until one answers.
func poolCall[T any](p *Pool, fn func(*Client) (T, error)) (T, error) {
	var zero T
	attempts := p.NumberOfEndpoints(false)
	var lastErr error
	for range max(attempts, 1) {
		e, err := p.Endpoint()
		if err != nil {
			return zero, err
		}
		res, err := fn(e.client)
		if err == nil || !isTransportError(err) {
			return res, err
		}
		log.Warnw("ledger endpoint failed, trying next one", "uri", e.URI, "error", err)
		p.DisableEndpoint(e.URI)
		lastErr = err
	}
	return zero, lastErr
}

// LatestLedger returns the height of the last accepted transaction.
func (p *Pool) LatestLedger(ctx context.Context) (uint64, error) {
	return poolCall(p, func(c *Client) (uint64, error) { return c.LatestLedger(ctx) })
}

// GetEvents pages through the ledger events.
func (p *Pool) GetEvents(ctx context.Context, start uint64, cursor string, limit int) (*EventsPage, error) {
	return poolCall(p, func(c *Client) (*EventsPage, error) { return c.GetEvents(ctx, start, cursor, limit) })
}

// RegisterCircuit registers a verifying key.
func (p *Pool) RegisterCircuit(ctx context.Context, vk *wire.VerifyingKey) (wire.CircuitID, error) {
	return poolCall(p, func(c *Client) (wire.CircuitID, error) { return c.RegisterCircuit(ctx, vk) })
}

// Init binds the ledger to a registered transfer circuit.
func (p *Pool) Init(ctx context.Context, id wire.CircuitID) (*TxResult, error) {
	return poolCall(p, func(c *Client) (*TxResult, error) { return c.Init(ctx, id) })
}

// Deposit submits a commitment.
func (p *Pool) Deposit(ctx context.Context, cm fr.Element, newRoot *fr.Element) (*TxResult, error) {
	return poolCall(p, func(c *Client) (*TxResult, error) { return c.Deposit(ctx, cm, newRoot) })
}

// Transfer submits a private transfer.
func (p *Pool) Transfer(ctx context.Context, tx *ledger.TransferTx) (*TxResult, error) {
	return poolCall(p, func(c *Client) (*TxResult, error) { return c.Transfer(ctx, tx) })
}

// Verify checks a proof against a registered circuit.
func (p *Pool) Verify(ctx context.Context, id wire.CircuitID, proof *wire.Proof, public []fr.Element) (bool, error) {
	return poolCall(p, func(c *Client) (bool, error) { return c.Verify(ctx, id, proof, public) })
}

// connect dials uri, retrying up to DefaultMaxClientRetries times.
func connect(ctx context.Context, uri string) (client *Client, err error) {
	for range DefaultMaxClientRetries {
		if client, err = Dial(ctx, uri); err == nil {
			return client, nil
		}
	}
	return nil, fmt.Errorf("error dialing ledger node '%s': %w", uri, err)
}
