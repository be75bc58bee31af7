// Package ledger is the reference ledger collaborator: it accepts deposits
// and private transfers, keeps the commitment tree, the recent root history
// and the spent nullifiers, and emits the events the indexer consumes.
//
// Unlike an on-chain contract that trusts the root submitted with each
// transaction, the ledger recomputes the root itself. A submitted root is
// optional and only checked against the recomputation.
package ledger

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/google/uuid"
	"github.com/vocdoni/zknotes/circuits"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/metrics"
	"github.com/vocdoni/zknotes/state"
	"github.com/vocdoni/zknotes/storage"
	"github.com/vocdoni/zknotes/types"
	"github.com/vocdoni/zknotes/util"
	"github.com/vocdoni/zknotes/verifier"
	"github.com/vocdoni/zknotes/wire"
)

// RootHistorySize is the number of recent roots a transfer may refer to.
const RootHistorySize = types.RootHistorySize

// DefaultEventsLimit caps the events returned by a single Events call.
const DefaultEventsLimit = 100

// kindInit labels the initialization transaction, which emits no event.
const kindInit = "init"

var (
	ErrNotInitialized     = errors.New("ledger not initialized")
	ErrAlreadyInitialized = errors.New("ledger already initialized")
	ErrZeroCommitment     = errors.New("zero commitment")
	ErrUnknownRoot        = errors.New("unknown merkle root")
	ErrNullifierSpent     = errors.New("nullifier already spent")
	ErrInvalidProof       = errors.New("proof verification failed")
	ErrRootMismatch       = errors.New("submitted root does not match the ledger root")
	ErrInvalidCursor      = errors.New("invalid events cursor")
)

// TransferTx is a private transfer submitted to the ledger.
type TransferTx struct {
	Proof          *wire.Proof
	OldRoot        fr.Element
	Nullifier      fr.Element
	OutCommitments [2]fr.Element
	// NewRoot, when set, must equal the root after appending the outputs.
	NewRoot *fr.Element
}

// PublicInputs returns the transfer circuit public inputs carried by tx.
func (tx *TransferTx) PublicInputs() []fr.Element {
	return []fr.Element{tx.OldRoot, tx.Nullifier, tx.OutCommitments[0], tx.OutCommitments[1]}
}

// Receipt describes an accepted transaction.
type Receipt struct {
	TxID   string
	Ledger uint64
	// Indexes are the tree positions of the appended commitments.
	Indexes []uint64
	Root    fr.Element
}

// Ledger is the reference ledger. All mutations are serialized.
type Ledger struct {
	mu       sync.RWMutex
	stg      *storage.Storage
	registry *verifier.Registry
	tree     *state.Tree
	meta     *storage.LedgerMeta
}

// New opens the ledger stored in stg. The commitment tree is rebuilt from
// the persisted leaves.
func New(stg *storage.Storage, registry *verifier.Registry) (*Ledger, error) {
	meta, err := stg.LedgerMeta()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		meta = nil
	case err != nil:
		return nil, fmt.Errorf("load ledger metadata: %w", err)
	}
	leaves, err := stg.LedgerLeaves()
	if err != nil {
		return nil, fmt.Errorf("load ledger leaves: %w", err)
	}
	tree := state.NewTree()
	for i, b := range leaves {
		cm, err := wire.FrFromBytes(b)
		if err != nil {
			return nil, fmt.Errorf("ledger leaf %d: %w", i, err)
		}
		if _, err := tree.Insert(cm); err != nil {
			return nil, err
		}
	}
	if meta != nil && meta.LeafCount != tree.Len() {
		return nil, fmt.Errorf("ledger metadata holds %d leaves, found %d", meta.LeafCount, tree.Len())
	}
	return &Ledger{stg: stg, registry: registry, tree: tree, meta: meta}, nil
}

// Registry returns the verifier registry used to check transfers.
func (l *Ledger) Registry() *verifier.Registry {
	return l.registry
}

// Init binds the ledger to a registered transfer circuit and commits the
// empty tree root. It can only be called once.
func (l *Ledger) Init(circuitID wire.CircuitID) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.meta != nil {
		return nil, ErrAlreadyInitialized
	}
	vk, err := l.registry.VerifyingKey(circuitID)
	if err != nil {
		return nil, err
	}
	if vk.NbPublic() != circuits.NbTransferPublicInputs {
		return nil, fmt.Errorf("circuit %s expects %d public inputs, transfers carry %d",
			circuitID, vk.NbPublic(), circuits.NbTransferPublicInputs)
	}
	meta := &storage.LedgerMeta{CircuitID: circuitID[:]}
	root := l.tree.Root()
	return l.commit(kindInit, meta, nil, nil, root)
}

// Deposit appends a commitment to the tree. newRoot is optional.
func (l *Ledger) Deposit(cm fr.Element, newRoot *fr.Element) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.meta == nil {
		return nil, ErrNotInitialized
	}
	if cm.IsZero() {
		return nil, ErrZeroCommitment
	}
	return l.appendAndCommit(storage.EventDeposit, nil, []fr.Element{cm}, newRoot)
}

// Transfer checks and applies a private transfer: the old root must be in
// the recent history, the nullifier unspent and the proof valid against the
// bound circuit.
func (l *Ledger) Transfer(tx *TransferTx) (*Receipt, error) {
	if tx == nil || tx.Proof == nil {
		return nil, fmt.Errorf("%w: missing proof", ErrInvalidProof)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.meta == nil {
		return nil, ErrNotInitialized
	}
	if !l.knownRoot(tx.OldRoot) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoot, util.PrettyHex(tx.OldRoot))
	}
	nf := wire.FrToBytes(tx.Nullifier)
	spent, err := l.stg.NullifierSpent(nf[:])
	if err != nil {
		return nil, err
	}
	if spent {
		return nil, fmt.Errorf("%w: %s", ErrNullifierSpent, util.PrettyHex(tx.Nullifier))
	}
	ok, err := l.registry.Verify(l.circuitID(), tx.Proof, tx.PublicInputs())
	if err != nil {
		return nil, fmt.Errorf("verify transfer: %w", err)
	}
	if !ok {
		return nil, ErrInvalidProof
	}
	return l.appendAndCommit(storage.EventTransfer, nf[:], tx.OutCommitments[:], tx.NewRoot)
}

// appendAndCommit appends the commitments to a copy of the tree and commits
// the result. The live tree is only replaced once the update is persisted.
func (l *Ledger) appendAndCommit(kind string, nullifier []byte, cms []fr.Element, newRoot *fr.Element) (*Receipt, error) {
	next := l.tree.Clone()
	for _, cm := range cms {
		if _, err := next.Insert(cm); err != nil {
			return nil, err
		}
	}
	root := next.Root()
	if newRoot != nil && !newRoot.Equal(&root) {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrRootMismatch, util.PrettyHex(*newRoot), util.PrettyHex(root))
	}
	meta := *l.meta
	meta.Roots = slices.Clone(l.meta.Roots)
	r, err := l.commit(kind, &meta, nullifier, cms, root)
	if err != nil {
		return nil, err
	}
	l.tree = next
	return r, nil
}

// commit persists the new metadata, leaves, nullifier and event. The caller
// holds the write lock.
func (l *Ledger) commit(kind string, meta *storage.LedgerMeta, nullifier []byte, cms []fr.Element, root fr.Element) (*Receipt, error) {
	firstLeaf := meta.LeafCount
	meta.Height++
	meta.LeafCount += uint64(len(cms))
	rb := wire.FrToBytes(root)
	meta.Roots = append(meta.Roots, rb[:])
	if len(meta.Roots) > RootHistorySize {
		meta.Roots = meta.Roots[len(meta.Roots)-RootHistorySize:]
	}

	receipt := &Receipt{
		TxID:   uuid.NewString(),
		Ledger: meta.Height,
		Root:   root,
	}
	update := &storage.LedgerUpdate{Meta: meta, Nullifier: nullifier}
	for i, cm := range cms {
		b := wire.FrToBytes(cm)
		update.Leaves = append(update.Leaves, b[:])
		receipt.Indexes = append(receipt.Indexes, firstLeaf+uint64(i))
	}
	if kind != kindInit {
		update.Event = &storage.LedgerEvent{
			Seq:         meta.EventCount,
			Ledger:      meta.Height,
			Kind:        kind,
			Nullifier:   types.HexBytes(nullifier),
			Commitments: make([]types.HexBytes, len(update.Leaves)),
			TxID:        receipt.TxID,
		}
		for i := range update.Leaves {
			update.Event.Commitments[i] = update.Leaves[i]
		}
		meta.EventCount++
	}
	if err := l.stg.CommitLedgerUpdate(update, firstLeaf); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return nil, ErrNullifierSpent
		}
		return nil, fmt.Errorf("commit ledger update: %w", err)
	}
	l.meta = meta
	metrics.LedgerTransactions.WithLabelValues(kind).Inc()
	log.Infow("ledger transaction accepted",
		"kind", kind,
		"txID", receipt.TxID,
		"ledger", receipt.Ledger,
		"leaves", meta.LeafCount,
		"root", util.PrettyHex(root))
	return receipt, nil
}

// knownRoot reports whether root is one of the recent roots. The caller
// holds the lock.
func (l *Ledger) knownRoot(root fr.Element) bool {
	b := wire.FrToBytes(root)
	for _, r := range l.meta.Roots {
		if string(r) == string(b[:]) {
			return true
		}
	}
	return false
}

// IsKnownRoot reports whether a transfer may currently refer to root.
func (l *Ledger) IsKnownRoot(root fr.Element) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.meta != nil && l.knownRoot(root)
}

// IsSpent reports whether the nullifier was revealed by an accepted
// transfer.
func (l *Ledger) IsSpent(nullifier fr.Element) (bool, error) {
	b := wire.FrToBytes(nullifier)
	return l.stg.NullifierSpent(b[:])
}

// Root returns the current tree root.
func (l *Ledger) Root() fr.Element {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree.Root()
}

// Latest returns the height of the last accepted transaction, zero before
// initialization.
func (l *Ledger) Latest() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.meta == nil {
		return 0
	}
	return l.meta.Height
}

// CircuitID returns the bound transfer circuit, or ErrNotInitialized.
func (l *Ledger) CircuitID() (wire.CircuitID, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.meta == nil {
		return wire.CircuitID{}, ErrNotInitialized
	}
	return l.circuitID(), nil
}

func (l *Ledger) circuitID() wire.CircuitID {
	var id wire.CircuitID
	copy(id[:], l.meta.CircuitID)
	return id
}

// Events returns up to limit events. With an empty cursor the page starts at
// ledger height start, otherwise right after the cursor. The returned cursor
// points at the last event of the page, or echoes the given one when the
// page is empty.
func (l *Ledger) Events(start uint64, cursor string, limit int) ([]storage.LedgerEvent, string, error) {
	if limit <= 0 || limit > DefaultEventsLimit {
		limit = DefaultEventsLimit
	}
	var after *uint64
	if cursor != "" {
		seq, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
		}
		after = &seq
	}
	events, err := l.stg.LedgerEvents(start, after, limit)
	if err != nil {
		return nil, "", err
	}
	if len(events) == 0 {
		return events, cursor, nil
	}
	return events, strconv.FormatUint(events[len(events)-1].Seq, 10), nil
}
