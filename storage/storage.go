// storage package contains all the artifacts that are stored in the database
// by the indexer and the reference ledger. It is a prefixed key-value store
// on top of a dvote database. The following prefixes are used:
//   - 'l/' for the commitment tree leaves, keyed by their big-endian index
//   - 'cm/' for the commitment to leaf index lookup
//   - 's/' for the indexer sync cursor
//   - 'vk/' for registered verifying keys, keyed by circuit id
//   - 'lg/' for the reference ledger state (metadata, leaves, nullifiers,
//     events)
//
// Artifacts are encoded with deterministic CBOR.
package storage

import (
	"errors"
	"fmt"
	"sync"

	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	// Prefixes for the keys in the database.
	leafPrefix       = []byte("l/")
	commitmentPrefix = []byte("cm/")
	syncPrefix       = []byte("s/")
	vkPrefix         = []byte("vk/")
	ledgerPrefix     = []byte("lg/")

	// ErrNotFound is returned when an artifact is not in the storage.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when writing an artifact that must be unique.
	ErrExists = errors.New("already exists")
)

// Storage wraps the database with typed accessors for every artifact.
type Storage struct {
	db db.Database
	// globalLock serializes read-modify-write sequences
	globalLock sync.Mutex
}

// New creates a new Storage instance.
func New(db db.Database) *Storage {
	return &Storage{db: db}
}

// Close closes the storage.
func (s *Storage) Close() {
	s.db.Close()
}

// getRaw returns the raw value stored under prefix+key, or ErrNotFound.
func (s *Storage) getRaw(prefix, key []byte) ([]byte, error) {
	data, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return data, nil
}

// getArtifact decodes the artifact stored under prefix+key into out. It
// returns ErrNotFound if the key does not exist.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	data, err := s.getRaw(prefix, key)
	if err != nil {
		return err
	}
	return decodeArtifact(data, out)
}

// setArtifact encodes and stores the artifact under prefix+key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Set(key, data); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// hasArtifact reports whether prefix+key exists.
func (s *Storage) hasArtifact(prefix, key []byte) (bool, error) {
	_, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, db.ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}

// iterateArtifacts calls fn with a copy of every key and value under prefix
// until fn returns false.
func (s *Storage) iterateArtifacts(prefix []byte, fn func(k, v []byte) bool) error {
	return prefixeddb.NewPrefixedReader(s.db, prefix).Iterate(nil, func(k, v []byte) bool {
		return fn(append([]byte(nil), k...), append([]byte(nil), v...))
	})
}
