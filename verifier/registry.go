package verifier

import (
	"errors"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/storage"
	"github.com/vocdoni/zknotes/wire"
)

var (
	// ErrAlreadyRegistered is returned when registering a key whose circuit
	// id is already known.
	ErrAlreadyRegistered = errors.New("circuit already registered")
	// ErrNotRegistered is returned when verifying against an unknown
	// circuit id.
	ErrNotRegistered = errors.New("circuit not registered")
)

// Registry maps circuit ids to verifying keys. Keys are persisted in the
// storage and cached decoded in memory.
type Registry struct {
	stg   *storage.Storage
	mu    sync.RWMutex
	cache map[wire.CircuitID]*wire.VerifyingKey
}

// NewRegistry returns a registry backed by stg.
func NewRegistry(stg *storage.Storage) *Registry {
	return &Registry{
		stg:   stg,
		cache: make(map[wire.CircuitID]*wire.VerifyingKey),
	}
}

// Register stores vk and returns its circuit id. Registering an identical
// key twice fails with ErrAlreadyRegistered.
func (r *Registry) Register(vk *wire.VerifyingKey) (wire.CircuitID, error) {
	if vk == nil || len(vk.IC) == 0 {
		return wire.CircuitID{}, fmt.Errorf("invalid verifying key")
	}
	id := vk.CircuitID()
	if err := r.stg.SetVerifyingKey(id[:], vk.Bytes()); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return wire.CircuitID{}, fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
		}
		return wire.CircuitID{}, fmt.Errorf("failed to store verifying key: %w", err)
	}
	r.mu.Lock()
	r.cache[id] = vk
	r.mu.Unlock()
	log.Infow("circuit registered", "circuitID", id.String(), "publicInputs", vk.NbPublic())
	return id, nil
}

// VerifyingKey returns the key registered under id.
func (r *Registry) VerifyingKey(id wire.CircuitID) (*wire.VerifyingKey, error) {
	r.mu.RLock()
	vk, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return vk, nil
	}
	data, err := r.stg.VerifyingKey(id[:])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotRegistered, id)
		}
		return nil, err
	}
	if vk, err = wire.VerifyingKeyFromBytes(data); err != nil {
		return nil, fmt.Errorf("stored verifying key %s: %w", id, err)
	}
	r.mu.Lock()
	r.cache[id] = vk
	r.mu.Unlock()
	return vk, nil
}

// IsRegistered reports whether id has a verifying key.
func (r *Registry) IsRegistered(id wire.CircuitID) bool {
	_, err := r.VerifyingKey(id)
	return err == nil
}

// Verify checks a proof against the key registered under id.
func (r *Registry) Verify(id wire.CircuitID, proof *wire.Proof, public []fr.Element) (bool, error) {
	vk, err := r.VerifyingKey(id)
	if err != nil {
		return false, err
	}
	return VerifyProof(vk, proof, public)
}

// CircuitIDs lists the registered circuit ids.
func (r *Registry) CircuitIDs() ([]wire.CircuitID, error) {
	raw, err := r.stg.CircuitIDs()
	if err != nil {
		return nil, err
	}
	ids := make([]wire.CircuitID, 0, len(raw))
	for _, b := range raw {
		var id wire.CircuitID
		if len(b) != len(id) {
			return nil, fmt.Errorf("invalid stored circuit id %x", b)
		}
		copy(id[:], b)
		ids = append(ids, id)
	}
	return ids, nil
}
