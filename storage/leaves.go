package storage

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/vocdoni/zknotes/types"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Leaf is a commitment tree leaf as recorded by the indexer.
type Leaf struct {
	Index       uint64         `json:"index" cbor:"0,keyasint"`
	Commitment  types.HexBytes `json:"commitment" cbor:"1,keyasint"`
	BlockHeight uint64         `json:"block_height" cbor:"2,keyasint"`
}

// SyncCursor is the position of the indexer in the ledger event stream.
type SyncCursor struct {
	LastLedger uint64 `json:"last_ledger" cbor:"0,keyasint"`
	Cursor     string `json:"cursor,omitempty" cbor:"1,keyasint,omitempty"`
}

var syncCursorKey = []byte("cursor")

// AppendLeaves stores the leaves and, when cursor is not nil, the new sync
// cursor in a single transaction. Leaves must be contiguous and start at the
// current leaf count; the caller holds the tree lock that guarantees it.
func (s *Storage) AppendLeaves(leaves []Leaf, cursor *SyncCursor) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	tx := s.db.WriteTx()
	lTx := prefixeddb.NewPrefixedWriteTx(tx, leafPrefix)
	cTx := prefixeddb.NewPrefixedWriteTx(tx, commitmentPrefix)
	seen := make(map[string]bool, len(leaves))
	for i := range leaves {
		val, err := encodeArtifact(&leaves[i])
		if err != nil {
			tx.Discard()
			return fmt.Errorf("encode leaf %d: %w", leaves[i].Index, err)
		}
		if err := lTx.Set(indexKey(leaves[i].Index), val); err != nil {
			tx.Discard()
			return err
		}
		// keep the first index of a repeated commitment
		exists, err := s.hasArtifact(commitmentPrefix, leaves[i].Commitment)
		if err != nil {
			tx.Discard()
			return err
		}
		if !exists && !seen[string(leaves[i].Commitment)] {
			seen[string(leaves[i].Commitment)] = true
			if err := cTx.Set(leaves[i].Commitment, indexKey(leaves[i].Index)); err != nil {
				tx.Discard()
				return err
			}
		}
	}
	if cursor != nil {
		val, err := encodeArtifact(cursor)
		if err != nil {
			tx.Discard()
			return fmt.Errorf("encode cursor: %w", err)
		}
		if err := prefixeddb.NewPrefixedWriteTx(tx, syncPrefix).Set(syncCursorKey, val); err != nil {
			tx.Discard()
			return err
		}
	}
	return tx.Commit()
}

// Leaves returns every stored leaf ordered by index.
func (s *Storage) Leaves() ([]Leaf, error) {
	var leaves []Leaf
	var iterErr error
	if err := s.iterateArtifacts(leafPrefix, func(_, v []byte) bool {
		var l Leaf
		if err := decodeArtifact(v, &l); err != nil {
			iterErr = err
			return false
		}
		leaves = append(leaves, l)
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate leaves: %w", err)
	}
	if iterErr != nil {
		return nil, iterErr
	}
	slices.SortFunc(leaves, func(a, b Leaf) int { return cmp.Compare(a.Index, b.Index) })
	for i := range leaves {
		if leaves[i].Index != uint64(i) {
			return nil, fmt.Errorf("leaf index gap: expected %d, found %d", i, leaves[i].Index)
		}
	}
	return leaves, nil
}

// Leaf returns the leaf stored at index, or ErrNotFound.
func (s *Storage) Leaf(index uint64) (*Leaf, error) {
	l := &Leaf{}
	if err := s.getArtifact(leafPrefix, indexKey(index), l); err != nil {
		return nil, err
	}
	return l, nil
}

// LeafByCommitment returns the leaf holding the commitment, or ErrNotFound.
func (s *Storage) LeafByCommitment(commitment []byte) (*Leaf, error) {
	data, err := s.getRaw(commitmentPrefix, commitment)
	if err != nil {
		return nil, err
	}
	index, err := keyIndex(data)
	if err != nil {
		return nil, err
	}
	return s.Leaf(index)
}

// SyncCursor returns the persisted sync cursor, or ErrNotFound on first run.
func (s *Storage) SyncCursor() (*SyncCursor, error) {
	c := &SyncCursor{}
	if err := s.getArtifact(syncPrefix, syncCursorKey, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetSyncCursor persists the sync cursor.
func (s *Storage) SetSyncCursor(c *SyncCursor) error {
	return s.setArtifact(syncPrefix, syncCursorKey, c)
}
