// Package rpc exposes the reference ledger over JSON-RPC 2.0 in the "ledger"
// namespace, and provides the client and endpoint pool used by the indexer
// and the wallet to reach it.
//
// Field elements travel as 64 character big-endian hex strings, proofs and
// verifying keys in their wire JSON form.
package rpc

import (
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/vocdoni/zknotes/ledger"
	"github.com/vocdoni/zknotes/storage"
	"github.com/vocdoni/zknotes/wire"
)

// Namespace is the JSON-RPC namespace of the ledger methods.
const Namespace = "ledger"

// EventsPage is the result of ledger_getEvents.
type EventsPage struct {
	Events       []storage.LedgerEvent `json:"events"`
	Cursor       string                `json:"cursor"`
	LatestLedger uint64                `json:"latestLedger"`
}

// TxResult is the result of an accepted transaction.
type TxResult struct {
	TxID    string   `json:"txId"`
	Ledger  uint64   `json:"ledger"`
	Indexes []uint64 `json:"indexes,omitempty"`
	Root    string   `json:"root"`
}

// DepositArgs are the params of ledger_deposit.
type DepositArgs struct {
	Commitment string `json:"commitment"`
	NewRoot    string `json:"newRoot,omitempty"`
}

// TransferArgs are the params of ledger_transfer.
type TransferArgs struct {
	Proof       *wire.Proof `json:"proof"`
	OldRoot     string      `json:"oldRoot"`
	Nullifier   string      `json:"nullifier"`
	Commitments [2]string   `json:"commitments"`
	NewRoot     string      `json:"newRoot,omitempty"`
}

// VerifyArgs are the params of ledger_verify.
type VerifyArgs struct {
	CircuitID    wire.CircuitID `json:"circuitId"`
	Proof        *wire.Proof    `json:"proof"`
	PublicInputs []string       `json:"publicInputs"`
}

// API holds the methods registered in the ledger namespace. Method names
// are exposed lower camel cased, e.g. ledger_getEvents.
type API struct {
	l *ledger.Ledger
}

// LatestLedger returns the height of the last accepted transaction.
func (a *API) LatestLedger() uint64 {
	return a.l.Latest()
}

// GetEvents pages through the ledger events.
func (a *API) GetEvents(start uint64, cursor string, limit int) (*EventsPage, error) {
	events, next, err := a.l.Events(start, cursor, limit)
	if err != nil {
		return nil, toRPCError(err)
	}
	if events == nil {
		events = []storage.LedgerEvent{}
	}
	return &EventsPage{Events: events, Cursor: next, LatestLedger: a.l.Latest()}, nil
}

// RegisterCircuit adds a verifying key to the registry.
func (a *API) RegisterCircuit(vk *wire.VerifyingKey) (wire.CircuitID, error) {
	if vk == nil {
		return wire.CircuitID{}, toRPCError(invalidParams("missing verifying key"))
	}
	id, err := a.l.Registry().Register(vk)
	return id, toRPCError(err)
}

// Init binds the ledger to a registered transfer circuit.
func (a *API) Init(circuitID wire.CircuitID) (*TxResult, error) {
	r, err := a.l.Init(circuitID)
	if err != nil {
		return nil, toRPCError(err)
	}
	return txResult(r), nil
}

// Deposit appends a commitment.
func (a *API) Deposit(args DepositArgs) (*TxResult, error) {
	cm, err := wire.HexToFr(args.Commitment)
	if err != nil {
		return nil, toRPCError(invalidParams("commitment: %v", err))
	}
	newRoot, err := optionalFr(args.NewRoot)
	if err != nil {
		return nil, toRPCError(invalidParams("newRoot: %v", err))
	}
	r, err := a.l.Deposit(cm, newRoot)
	if err != nil {
		return nil, toRPCError(err)
	}
	return txResult(r), nil
}

// Transfer submits a private transfer.
func (a *API) Transfer(args TransferArgs) (*TxResult, error) {
	tx, err := args.toTx()
	if err != nil {
		return nil, toRPCError(err)
	}
	r, err := a.l.Transfer(tx)
	if err != nil {
		return nil, toRPCError(err)
	}
	return txResult(r), nil
}

// Verify checks a proof against a registered circuit without touching the
// ledger state.
func (a *API) Verify(args VerifyArgs) (bool, error) {
	public, err := wire.DecodeFrs(args.PublicInputs)
	if err != nil {
		return false, toRPCError(invalidParams("publicInputs: %v", err))
	}
	ok, err := a.l.Registry().Verify(args.CircuitID, args.Proof, public)
	return ok, toRPCError(err)
}

func (args *TransferArgs) toTx() (*ledger.TransferTx, error) {
	if args.Proof == nil {
		return nil, invalidParams("missing proof")
	}
	tx := &ledger.TransferTx{Proof: args.Proof}
	var err error
	if tx.OldRoot, err = wire.HexToFr(args.OldRoot); err != nil {
		return nil, invalidParams("oldRoot: %v", err)
	}
	if tx.Nullifier, err = wire.HexToFr(args.Nullifier); err != nil {
		return nil, invalidParams("nullifier: %v", err)
	}
	for i, s := range args.Commitments {
		if tx.OutCommitments[i], err = wire.HexToFr(s); err != nil {
			return nil, invalidParams("commitments[%d]: %v", i, err)
		}
	}
	if tx.NewRoot, err = optionalFr(args.NewRoot); err != nil {
		return nil, invalidParams("newRoot: %v", err)
	}
	return tx, nil
}

func transferArgs(tx *ledger.TransferTx) TransferArgs {
	args := TransferArgs{
		Proof:     tx.Proof,
		OldRoot:   wire.FrToRawHex(tx.OldRoot),
		Nullifier: wire.FrToRawHex(tx.Nullifier),
		Commitments: [2]string{
			wire.FrToRawHex(tx.OutCommitments[0]),
			wire.FrToRawHex(tx.OutCommitments[1]),
		},
	}
	if tx.NewRoot != nil {
		args.NewRoot = wire.FrToRawHex(*tx.NewRoot)
	}
	return args
}

func optionalFr(s string) (*fr.Element, error) {
	if s == "" {
		return nil, nil
	}
	e, err := wire.HexToFr(s)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func txResult(r *ledger.Receipt) *TxResult {
	return &TxResult{
		TxID:    r.TxID,
		Ledger:  r.Ledger,
		Indexes: r.Indexes,
		Root:    wire.FrToRawHex(r.Root),
	}
}
