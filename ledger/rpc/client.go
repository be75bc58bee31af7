package rpc

import (
	"context"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/vocdoni/zknotes/ledger"
	"github.com/vocdoni/zknotes/wire"
)

// Client calls the ledger namespace of a single node. Ledger rejections come
// back as errors matching the ledger sentinels; every other failure wraps
// ErrCollaborator.
type Client struct {
	c *gethrpc.Client
}

// Dial connects to the node at url.
func Dial(ctx context.Context, url string) (*Client, error) {
	c, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrCollaborator, url, err)
	}
	return NewClient(c), nil
}

// NewClient wraps an existing JSON-RPC client.
func NewClient(c *gethrpc.Client) *Client {
	return &Client{c: c}
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.c.Close()
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	return fromRPCError(c.c.CallContext(ctx, result, Namespace+"_"+method, args...))
}

// LatestLedger returns the height of the last accepted transaction.
func (c *Client) LatestLedger(ctx context.Context) (uint64, error) {
	var latest uint64
	if err := c.call(ctx, &latest, "latestLedger"); err != nil {
		return 0, err
	}
	return latest, nil
}

// GetEvents pages through the ledger events.
func (c *Client) GetEvents(ctx context.Context, start uint64, cursor string, limit int) (*EventsPage, error) {
	page := &EventsPage{}
	if err := c.call(ctx, page, "getEvents", start, cursor, limit); err != nil {
		return nil, err
	}
	return page, nil
}

// RegisterCircuit registers a verifying key and returns its circuit id.
func (c *Client) RegisterCircuit(ctx context.Context, vk *wire.VerifyingKey) (wire.CircuitID, error) {
	var id wire.CircuitID
	if err := c.call(ctx, &id, "registerCircuit", vk); err != nil {
		return wire.CircuitID{}, err
	}
	return id, nil
}

// Init binds the ledger to a registered transfer circuit.
func (c *Client) Init(ctx context.Context, id wire.CircuitID) (*TxResult, error) {
	res := &TxResult{}
	if err := c.call(ctx, res, "init", id); err != nil {
		return nil, err
	}
	return res, nil
}

// Deposit submits a commitment. newRoot is optional.
func (c *Client) Deposit(ctx context.Context, cm fr.Element, newRoot *fr.Element) (*TxResult, error) {
	args := DepositArgs{Commitment: wire.FrToRawHex(cm)}
	if newRoot != nil {
		args.NewRoot = wire.FrToRawHex(*newRoot)
	}
	res := &TxResult{}
	if err := c.call(ctx, res, "deposit", args); err != nil {
		return nil, err
	}
	return res, nil
}

// Transfer submits a private transfer.
func (c *Client) Transfer(ctx context.Context, tx *ledger.TransferTx) (*TxResult, error) {
	res := &TxResult{}
	if err := c.call(ctx, res, "transfer", transferArgs(tx)); err != nil {
		return nil, err
	}
	return res, nil
}

// Verify checks a proof against a registered circuit.
func (c *Client) Verify(ctx context.Context, id wire.CircuitID, proof *wire.Proof, public []fr.Element) (bool, error) {
	var ok bool
	args := VerifyArgs{CircuitID: id, Proof: proof, PublicInputs: wire.EncodeFrs(public)}
	if err := c.call(ctx, &ok, "verify", args); err != nil {
		return false, err
	}
	return ok, nil
}
