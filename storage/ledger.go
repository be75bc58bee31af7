package storage

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/vocdoni/zknotes/types"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Event kinds emitted by the reference ledger.
const (
	EventDeposit  = "deposit"
	EventTransfer = "transfer"
)

var (
	ledgerMetaKey         = []byte("meta")
	ledgerLeafPrefix      = append(append([]byte{}, ledgerPrefix...), "l/"...)
	ledgerNullifierPrefix = append(append([]byte{}, ledgerPrefix...), "n/"...)
	ledgerEventPrefix     = append(append([]byte{}, ledgerPrefix...), "e/"...)
)

// LedgerMeta is the small mutable state of the reference ledger.
type LedgerMeta struct {
	CircuitID types.HexBytes `cbor:"0,keyasint"`
	// Height is the sequence of the last accepted transaction.
	Height    uint64 `cbor:"1,keyasint"`
	LeafCount uint64 `cbor:"2,keyasint"`
	// Roots is the recent root history, oldest first.
	Roots      []types.HexBytes `cbor:"3,keyasint"`
	EventCount uint64           `cbor:"4,keyasint"`
}

// LedgerEvent is a ledger event as consumed by the indexer.
type LedgerEvent struct {
	Seq         uint64           `json:"seq" cbor:"0,keyasint"`
	Ledger      uint64           `json:"ledger" cbor:"1,keyasint"`
	Kind        string           `json:"kind" cbor:"2,keyasint"`
	Nullifier   types.HexBytes   `json:"nullifier,omitempty" cbor:"3,keyasint,omitempty"`
	Commitments []types.HexBytes `json:"commitments" cbor:"4,keyasint"`
	TxID        string           `json:"txId" cbor:"5,keyasint"`
}

// LedgerUpdate is the set of writes of one accepted ledger transaction.
type LedgerUpdate struct {
	Meta      *LedgerMeta
	Nullifier []byte
	// Leaves are appended from the leaf count before the update.
	Leaves [][]byte
	Event  *LedgerEvent
}

// LedgerMeta returns the ledger metadata, or ErrNotFound if the ledger was
// never initialized.
func (s *Storage) LedgerMeta() (*LedgerMeta, error) {
	m := &LedgerMeta{}
	if err := s.getArtifact(ledgerPrefix, ledgerMetaKey, m); err != nil {
		return nil, err
	}
	return m, nil
}

// CommitLedgerUpdate writes every piece of the update atomically. firstLeaf
// is the index of the first appended leaf.
func (s *Storage) CommitLedgerUpdate(u *LedgerUpdate, firstLeaf uint64) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	if u.Meta == nil {
		return fmt.Errorf("ledger update without metadata")
	}
	tx := s.db.WriteTx()
	fail := func(err error) error {
		tx.Discard()
		return err
	}
	meta, err := encodeArtifact(u.Meta)
	if err != nil {
		return fail(err)
	}
	if err := prefixeddb.NewPrefixedWriteTx(tx, ledgerPrefix).Set(ledgerMetaKey, meta); err != nil {
		return fail(err)
	}
	if u.Nullifier != nil {
		spent, err := s.hasArtifact(ledgerNullifierPrefix, u.Nullifier)
		if err != nil {
			return fail(err)
		}
		if spent {
			return fail(fmt.Errorf("nullifier %x: %w", u.Nullifier, ErrExists))
		}
		if err := prefixeddb.NewPrefixedWriteTx(tx, ledgerNullifierPrefix).Set(u.Nullifier, indexKey(u.Meta.Height)); err != nil {
			return fail(err)
		}
	}
	lTx := prefixeddb.NewPrefixedWriteTx(tx, ledgerLeafPrefix)
	for i, leaf := range u.Leaves {
		if err := lTx.Set(indexKey(firstLeaf+uint64(i)), leaf); err != nil {
			return fail(err)
		}
	}
	if u.Event != nil {
		ev, err := encodeArtifact(u.Event)
		if err != nil {
			return fail(err)
		}
		if err := prefixeddb.NewPrefixedWriteTx(tx, ledgerEventPrefix).Set(indexKey(u.Event.Seq), ev); err != nil {
			return fail(err)
		}
	}
	return tx.Commit()
}

// NullifierSpent reports whether the nullifier was revealed by an accepted
// transfer.
func (s *Storage) NullifierSpent(nullifier []byte) (bool, error) {
	return s.hasArtifact(ledgerNullifierPrefix, nullifier)
}

// LedgerLeaves returns the commitments appended to the ledger tree, in order.
func (s *Storage) LedgerLeaves() ([][]byte, error) {
	type indexed struct {
		i  uint64
		cm []byte
	}
	var all []indexed
	var iterErr error
	if err := s.iterateArtifacts(ledgerLeafPrefix, func(k, v []byte) bool {
		i, err := keyIndex(k)
		if err != nil {
			iterErr = err
			return false
		}
		all = append(all, indexed{i, v})
		return true
	}); err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	slices.SortFunc(all, func(a, b indexed) int { return cmp.Compare(a.i, b.i) })
	out := make([][]byte, len(all))
	for n, l := range all {
		if l.i != uint64(n) {
			return nil, fmt.Errorf("ledger leaf index gap at %d", n)
		}
		out[n] = l.cm
	}
	return out, nil
}

// LedgerEvents returns up to limit events, ordered by sequence. If afterSeq
// is not nil only events after it are returned, otherwise events at or after
// startLedger. Events are keyed by their big-endian sequence, which starts at
// zero with no gaps, and their ledger heights grow with it, so a page costs
// O(limit + log n) reads.
func (s *Storage) LedgerEvents(startLedger uint64, afterSeq *uint64, limit int) ([]LedgerEvent, error) {
	var first uint64
	if afterSeq != nil {
		if *afterSeq == math.MaxUint64 {
			return nil, nil
		}
		first = *afterSeq + 1
	} else {
		var err error
		if first, err = s.firstEventAt(startLedger); err != nil {
			return nil, err
		}
	}
	var events []LedgerEvent
	for seq := first; limit <= 0 || len(events) < limit; seq++ {
		ev, err := s.ledgerEvent(seq)
		if errors.Is(err, ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, nil
}

func (s *Storage) ledgerEvent(seq uint64) (*LedgerEvent, error) {
	ev := &LedgerEvent{}
	if err := s.getArtifact(ledgerEventPrefix, indexKey(seq), ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// firstEventAt returns the sequence of the first event at or after the given
// ledger height, or the event count when there is none.
func (s *Storage) firstEventAt(ledger uint64) (uint64, error) {
	meta, err := s.LedgerMeta()
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var searchErr error
	i := sort.Search(int(meta.EventCount), func(i int) bool {
		if searchErr != nil {
			return true
		}
		ev, err := s.ledgerEvent(uint64(i))
		if err != nil {
			searchErr = err
			return true
		}
		return ev.Ledger >= ledger
	})
	if searchErr != nil {
		return 0, searchErr
	}
	return uint64(i), nil
}
