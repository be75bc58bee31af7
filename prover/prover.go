// Package prover drives Groth16 over BLS12-381 for the note circuits: it
// compiles a circuit topology, runs the setup, proves assignments and
// verifies proofs against their public inputs.
package prover

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/vocdoni/zknotes/circuits"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/wire"
	"golang.org/x/crypto/chacha20"
)

// Curve is the curve every circuit is proven on.
const Curve = ecc.BLS12_381

// randMu guards crypto/rand.Reader, which InsecureDeterministicSetup swaps
// for a seeded stream. Setup and Prove hold it for reading.
var randMu sync.RWMutex

// Keys bundles the compiled constraint system with the keys of one setup
// run.
type Keys struct {
	Name string
	CCS  constraint.ConstraintSystem
	PK   groth16.ProvingKey
	VK   groth16.VerifyingKey

	vk *wire.VerifyingKey
}

func newKeys(name string, ccs constraint.ConstraintSystem, pk groth16.ProvingKey, vk groth16.VerifyingKey) (*Keys, error) {
	wvk, err := wire.VerifyingKeyFromGnark(vk)
	if err != nil {
		return nil, err
	}
	if wvk.NbPublic() != ccs.GetNbPublicVariables()-1 {
		return nil, fmt.Errorf("verifying key has %d public inputs, circuit has %d",
			wvk.NbPublic(), ccs.GetNbPublicVariables()-1)
	}
	return &Keys{Name: name, CCS: ccs, PK: pk, VK: vk, vk: wvk}, nil
}

// Compile builds the R1CS of a circuit from its topology-only placeholder.
func Compile(placeholder frontend.Circuit) (constraint.ConstraintSystem, error) {
	ccs, err := frontend.Compile(Curve.ScalarField(), r1cs.NewBuilder, placeholder)
	if err != nil {
		return nil, fmt.Errorf("failed to compile circuit: %w", err)
	}
	return ccs, nil
}

// ConstraintCount compiles the circuit and returns its number of
// constraints.
func ConstraintCount(def circuits.Definition) (int, error) {
	ccs, err := Compile(def.Placeholder())
	if err != nil {
		return 0, err
	}
	return ccs.GetNbConstraints(), nil
}

// Setup runs the Groth16 setup with toxic waste drawn from crypto/rand.
func Setup(def circuits.Definition) (*Keys, error) {
	ccs, err := Compile(def.Placeholder())
	if err != nil {
		return nil, err
	}
	randMu.RLock()
	pk, vk, err := groth16.Setup(ccs)
	randMu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to run setup: %w", err)
	}
	log.Debugw("setup done", "circuit", def.Name, "constraints", ccs.GetNbConstraints())
	return newKeys(def.Name, ccs, pk, vk)
}

// InsecureDeterministicSetup runs the Groth16 setup with toxic waste drawn
// from a ChaCha20 stream keyed by sha256(seed). Anyone knowing the seed can
// recompute the toxic waste and forge proofs, so it is only a stand-in for a
// multi-party ceremony that lets independent parties derive the same keys.
//
// gnark draws the toxic waste from crypto/rand.Reader, so the stream is
// installed there while the setup runs. Setup and Prove are locked out for
// that window, and util captures its own reader at init, so note secrets and
// nonces never come from the seeded stream nor consume it.
func InsecureDeterministicSetup(def circuits.Definition, seed []byte) (*Keys, error) {
	ccs, err := Compile(def.Placeholder())
	if err != nil {
		return nil, err
	}
	key := sha256.Sum256(seed)
	stream, err := chacha20.NewUnauthenticatedCipher(key[:], make([]byte, chacha20.NonceSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create seeded stream: %w", err)
	}

	randMu.Lock()
	prev := rand.Reader
	rand.Reader = &streamReader{stream: stream}
	pk, vk, err := groth16.Setup(ccs)
	rand.Reader = prev
	randMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to run setup: %w", err)
	}
	log.Warnw("insecure deterministic setup done", "circuit", def.Name, "constraints", ccs.GetNbConstraints())
	return newKeys(def.Name, ccs, pk, vk)
}

// streamReader yields the ChaCha20 keystream.
type streamReader struct {
	stream *chacha20.Cipher
}

var _ io.Reader = (*streamReader)(nil)

func (r *streamReader) Read(p []byte) (int, error) {
	clear(p)
	r.stream.XORKeyStream(p, p)
	return len(p), nil
}

// NbPublic returns the number of public inputs of the circuit.
func (k *Keys) NbPublic() int {
	return k.vk.NbPublic()
}

// VerifyingKey returns the verifying key in its cross-boundary form.
func (k *Keys) VerifyingKey() *wire.VerifyingKey {
	return k.vk
}

// CircuitID returns the content address of the verifying key.
func (k *Keys) CircuitID() wire.CircuitID {
	return k.vk.CircuitID()
}

// ConstraintCount returns the number of constraints of the compiled circuit.
func (k *Keys) ConstraintCount() int {
	return k.CCS.GetNbConstraints()
}
