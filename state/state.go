// Package state holds the native commitment tree and the indexer state built
// on it. The tree algorithm is the one the circuits enforce: fixed depth,
// append-only, empty subtrees filled with the zero hash chain.
package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/storage"
	"github.com/vocdoni/zknotes/util"
	"github.com/vocdoni/zknotes/wire"
)

// ErrLeafNotFound is returned when looking up an unknown commitment.
var ErrLeafNotFound = errors.New("leaf not found")

// State is the indexer view of the ledger commitment tree, persisted in the
// storage and rebuilt from it on start. Readers share the lock, inserts take
// it exclusively.
type State struct {
	mu   sync.RWMutex
	tree *Tree
	stg  *storage.Storage
}

// New opens the state stored in stg, rebuilding the tree from the persisted
// leaves.
func New(stg *storage.Storage) (*State, error) {
	leaves, err := stg.Leaves()
	if err != nil {
		return nil, fmt.Errorf("load leaves: %w", err)
	}
	tree := NewTree()
	for _, l := range leaves {
		cm, err := wire.FrFromBytes(l.Commitment)
		if err != nil {
			return nil, fmt.Errorf("leaf %d: %w", l.Index, err)
		}
		if _, err := tree.Insert(cm); err != nil {
			return nil, err
		}
	}
	s := &State{tree: tree, stg: stg}
	log.Infow("rebuilt commitment tree", "leaves", tree.Len(), "root", util.PrettyHex(tree.Root()))
	return s, nil
}

// NewLeaf is a commitment to insert, with the ledger height it was emitted at.
type NewLeaf struct {
	Commitment  fr.Element
	BlockHeight uint64
}

// Insert appends the leaves and persists them together with cursor, which
// may be nil. Either every leaf is inserted or none is.
func (s *State) Insert(leaves []NewLeaf, cursor *storage.SyncCursor) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.tree.Len()
	if start+uint64(len(leaves)) > Capacity {
		return nil, ErrTreeFull
	}
	records := make([]storage.Leaf, len(leaves))
	indexes := make([]uint64, len(leaves))
	for i, l := range leaves {
		b := wire.FrToBytes(l.Commitment)
		indexes[i] = start + uint64(i)
		records[i] = storage.Leaf{
			Index:       indexes[i],
			Commitment:  b[:],
			BlockHeight: l.BlockHeight,
		}
	}
	if err := s.stg.AppendLeaves(records, cursor); err != nil {
		return nil, fmt.Errorf("persist leaves: %w", err)
	}
	for _, l := range leaves {
		if _, err := s.tree.Insert(l.Commitment); err != nil {
			// capacity was checked above
			panic(err)
		}
	}
	return indexes, nil
}

// Root returns the current tree root.
func (s *State) Root() fr.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Root()
}

// Len returns the number of leaves.
func (s *State) Len() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

// Path returns the authentication path of the leaf at index against the
// current root.
func (s *State) Path(index uint64) (*MerklePath, fr.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.tree.Path(index)
	if err != nil {
		return nil, fr.Element{}, err
	}
	return p, s.tree.Root(), nil
}

// Leaves returns every leaf in insertion order.
func (s *State) Leaves() []fr.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Leaves()
}

// Leaf returns the stored leaf holding the commitment.
func (s *State) Leaf(commitment fr.Element) (*storage.Leaf, error) {
	b := wire.FrToBytes(commitment)
	l, err := s.stg.LeafByCommitment(b[:])
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrLeafNotFound
	}
	return l, err
}

// Cursor returns the persisted sync cursor, or nil on first run.
func (s *State) Cursor() (*storage.SyncCursor, error) {
	c, err := s.stg.SyncCursor()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

// SetCursor persists the sync cursor without inserting leaves.
func (s *State) SetCursor(c *storage.SyncCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stg.SetSyncCursor(c)
}
