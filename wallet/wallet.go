// Package wallet keeps the notes of one secret key and drives deposits and
// private transfers through the ledger and the indexer. Notes are only
// recorded or marked spent once the ledger accepted the transaction that
// creates or consumes them.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/vocdoni/zknotes/api"
	"github.com/vocdoni/zknotes/circuits/transfer"
	"github.com/vocdoni/zknotes/ledger"
	"github.com/vocdoni/zknotes/ledger/rpc"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/note"
	"github.com/vocdoni/zknotes/prover"
	"github.com/vocdoni/zknotes/state"
	"github.com/vocdoni/zknotes/util"
)

var (
	// ErrInsufficientFunds is returned when no single unspent indexed note
	// covers the transfer value.
	ErrInsufficientFunds = errors.New("no unspent indexed note covers the value")
	// ErrInvalidValue is returned for zero value deposits and transfers.
	ErrInvalidValue = errors.New("value must be positive")
	// ErrIndexerMismatch is returned when the indexer serves a root or a
	// path that its own leaves do not reproduce.
	ErrIndexerMismatch = errors.New("indexer state is inconsistent")
	// ErrForeignNote is returned when receiving a note the wallet does not own.
	ErrForeignNote = errors.New("note is not owned by this wallet")
)

// Indexer is the part of the indexer API the wallet reads from.
type Indexer interface {
	Root(ctx context.Context) (fr.Element, error)
	Proof(ctx context.Context, index uint64) (*state.MerklePath, error)
	Leaf(ctx context.Context, cm fr.Element) (*api.Leaf, bool, error)
	Leaves(ctx context.Context) ([]fr.Element, error)
}

// Ledger is the part of the ledger node the wallet submits to. Both
// rpc.Client and rpc.Pool implement it.
type Ledger interface {
	Deposit(ctx context.Context, cm fr.Element, newRoot *fr.Element) (*rpc.TxResult, error)
	Transfer(ctx context.Context, tx *ledger.TransferTx) (*rpc.TxResult, error)
}

// NoteEntry is a note held by the wallet and what is known of it.
type NoteEntry struct {
	*note.Note
	Commitment fr.Element
	// Index is the leaf position, valid once Indexed is set by Sync.
	Index   uint64
	Indexed bool
	Spent   bool
}

// TransferResult is the outcome of an accepted transfer. Sent must reach the
// recipient out of band, it cannot be recovered from the ledger.
type TransferResult struct {
	*rpc.TxResult
	Sent   *note.Note
	Change *note.Note
}

// Wallet holds the notes of a secret key for one application tag. Notes live
// in memory only.
type Wallet struct {
	sk      note.SecretKey
	appTag  uint32
	keys    *prover.Keys
	ledger  Ledger
	indexer Indexer

	mu    sync.Mutex
	notes []*NoteEntry
}

// New returns an empty wallet. keys are the transfer circuit keys the ledger
// was initialized with.
func New(sk note.SecretKey, appTag uint32, keys *prover.Keys, l Ledger, idx Indexer) *Wallet {
	return &Wallet{
		sk:      sk,
		appTag:  appTag,
		keys:    keys,
		ledger:  l,
		indexer: idx,
	}
}

// Owner returns the owner hash notes are addressed to.
func (w *Wallet) Owner() fr.Element {
	return w.sk.OwnerHash()
}

// Notes returns a copy of the wallet notes.
func (w *Wallet) Notes() []NoteEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]NoteEntry, len(w.notes))
	for i, e := range w.notes {
		out[i] = *e
	}
	return out
}

// Balance returns the total value of the unspent notes, indexed or not.
func (w *Wallet) Balance() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var total uint64
	for _, e := range w.notes {
		if !e.Spent {
			total += e.Value
		}
	}
	return total
}

// Deposit creates a note of the given value owned by the wallet and submits
// its commitment to the ledger.
func (w *Wallet) Deposit(ctx context.Context, value uint64) (*NoteEntry, *rpc.TxResult, error) {
	if value == 0 {
		return nil, nil, ErrInvalidValue
	}
	n := note.New(value, w.appTag, w.Owner())
	cm := n.Commitment()
	res, err := w.ledger.Deposit(ctx, cm, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("deposit: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.add(n)
	log.Infow("deposit accepted", "value", value, "commitment", util.PrettyHex(cm), "txId", res.TxID)
	return e, res, nil
}

// Receive records a note sent to this wallet by someone else. It is spendable
// after the next Sync finds it in the indexer.
func (w *Wallet) Receive(n *note.Note) error {
	owner := w.Owner()
	if n == nil || !n.Owner.Equal(&owner) {
		return ErrForeignNote
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.add(n)
	return nil
}

func (w *Wallet) add(n *note.Note) *NoteEntry {
	cm := n.Commitment()
	for _, e := range w.notes {
		if e.Commitment.Equal(&cm) {
			return e
		}
	}
	e := &NoteEntry{Note: n, Commitment: cm}
	w.notes = append(w.notes, e)
	return e
}

// Sync looks every unindexed note up in the indexer and records its leaf
// index. It returns the number of notes indexed by this call.
func (w *Wallet) Sync(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, e := range w.notes {
		if e.Indexed {
			continue
		}
		leaf, found, err := w.indexer.Leaf(ctx, e.Commitment)
		if err != nil {
			return n, fmt.Errorf("sync: %w", err)
		}
		if !found {
			continue
		}
		e.Index, e.Indexed = leaf.Index, true
		n++
	}
	return n, nil
}

// Transfer sends value to the owner hash recipient, consuming the smallest
// unspent indexed note that covers it and keeping the rest as a change note.
func (w *Wallet) Transfer(ctx context.Context, recipient fr.Element, value uint64) (*TransferResult, error) {
	if value == 0 {
		return nil, ErrInvalidValue
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	in := w.selectNote(value)
	if in == nil {
		return nil, ErrInsufficientFunds
	}
	root, path, err := w.pathTo(ctx, in)
	if err != nil {
		return nil, err
	}

	owner := w.Owner()
	wit := &transfer.Witness{
		SecretKey: &w.sk,
		In:        in.Note,
		Path:      path,
		Out: [2]*note.Note{
			note.New(value, w.appTag, recipient),
			note.New(in.Value-value, w.appTag, owner),
		},
		Root: &root,
	}
	a, err := wit.Assign()
	if err != nil {
		return nil, err
	}
	proof, public, err := w.keys.Prove(a)
	if err != nil {
		return nil, fmt.Errorf("prove transfer: %w", err)
	}
	pub, err := transfer.PublicInputsFromSlice(public)
	if err != nil {
		return nil, err
	}
	res, err := w.ledger.Transfer(ctx, &ledger.TransferTx{
		Proof:          proof,
		OldRoot:        pub.OldRoot,
		Nullifier:      pub.Nullifier,
		OutCommitments: [2]fr.Element{pub.OutCommitment0, pub.OutCommitment1},
	})
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}

	in.Spent = true
	if recipient.Equal(&owner) {
		w.add(wit.Out[0])
	}
	w.add(wit.Out[1])
	log.Infow("transfer accepted",
		"value", value,
		"change", wit.Out[1].Value,
		"nullifier", util.PrettyHex(pub.Nullifier),
		"txId", res.TxID)
	return &TransferResult{TxResult: res, Sent: wit.Out[0], Change: wit.Out[1]}, nil
}

// selectNote returns the smallest unspent indexed note worth at least value.
func (w *Wallet) selectNote(value uint64) *NoteEntry {
	var candidates []*NoteEntry
	for _, e := range w.notes {
		if !e.Spent && e.Indexed && e.AppTag == w.appTag && e.Value >= value {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return slices.MinFunc(candidates, func(a, b *NoteEntry) int {
		switch {
		case a.Value < b.Value:
			return -1
		case a.Value > b.Value:
			return 1
		}
		return 0
	})
}

// pathTo fetches the current root and the path of e, checking the root
// against the indexer leaves and the path against the root.
func (w *Wallet) pathTo(ctx context.Context, e *NoteEntry) (fr.Element, *state.MerklePath, error) {
	leaves, err := w.indexer.Leaves(ctx)
	if err != nil {
		return fr.Element{}, nil, err
	}
	root, err := w.indexer.Root(ctx)
	if err != nil {
		return fr.Element{}, nil, err
	}
	computed, err := state.ComputeRoot(leaves)
	if err != nil {
		return fr.Element{}, nil, err
	}
	if !computed.Equal(&root) {
		return fr.Element{}, nil, fmt.Errorf("%w: served root %s, leaves hash to %s",
			ErrIndexerMismatch, util.PrettyHex(root), util.PrettyHex(computed))
	}
	path, err := w.indexer.Proof(ctx, e.Index)
	if err != nil {
		return fr.Element{}, nil, err
	}
	if !state.VerifyPath(e.Commitment, path, root) {
		return fr.Element{}, nil, fmt.Errorf("%w: path of leaf %d does not lead to root", ErrIndexerMismatch, e.Index)
	}
	return root, path, nil
}
