// Package rangeproof proves that the value behind a commitment
// Hash(x, nonce) lies in a public interval [min, max].
package rangeproof

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zknotes/circuits"
	"github.com/vocdoni/zknotes/circuits/gadgets"
	"github.com/vocdoni/zknotes/crypto/hash/poseidon"
	"github.com/vocdoni/zknotes/util"
)

// Definition describes the range circuit topology.
var Definition = circuits.Definition{
	Name:        "range",
	NbPublic:    3,
	Placeholder: Placeholder,
}

// Circuit opens Commitment to X and Nonce and checks Min <= X <= Max, with
// both differences range checked to 64 bits.
type Circuit struct {
	Min        frontend.Variable `gnark:",public"`
	Max        frontend.Variable `gnark:",public"`
	Commitment frontend.Variable `gnark:",public"`
	X          frontend.Variable
	Nonce      frontend.Variable
}

// Placeholder returns the topology-only circuit used to compile and set up
// the keys.
func Placeholder() frontend.Circuit {
	return &Circuit{}
}

// Define declares the circuit constraints.
func (c *Circuit) Define(api frontend.API) error {
	cm, err := gadgets.Poseidon(api, c.X, c.Nonce)
	if err != nil {
		return err
	}
	api.AssertIsEqual(cm, c.Commitment)
	if err := gadgets.AssertInRange(api, c.X, c.Min, c.Max, circuits.ValueBits); err != nil {
		return fmt.Errorf("range: %w", err)
	}
	return nil
}

// Witness holds the committed value, its blinding nonce and the interval.
type Witness struct {
	X     uint64
	Nonce fr.Element
	Min   uint64
	Max   uint64
}

// Commitment returns Hash(x, nonce).
func (w *Witness) Commitment() fr.Element {
	var x fr.Element
	x.SetUint64(w.X)
	return poseidon.Hash(x, w.Nonce)
}

// Check evaluates the range natively and returns a ConstraintError when x
// lies outside [min, max].
func (w *Witness) Check() error {
	if w == nil {
		return circuits.MissingField("witness")
	}
	if w.X < w.Min || w.X > w.Max {
		return circuits.Unsatisfied(circuits.ClassRange, "%d not in [%d, %d]", w.X, w.Min, w.Max)
	}
	return nil
}

// Assign returns the circuit assignment and its public inputs: min, max and
// the commitment.
func (w *Witness) Assign() (*circuits.Assignment, error) {
	if w == nil {
		return nil, circuits.MissingField("witness")
	}
	var lo, hi fr.Element
	lo.SetUint64(w.Min)
	hi.SetUint64(w.Max)
	cm := w.Commitment()
	return &circuits.Assignment{
		Circuit: &Circuit{
			Min:        w.Min,
			Max:        w.Max,
			Commitment: util.FrToBig(cm),
			X:          w.X,
			Nonce:      util.FrToBig(w.Nonce),
		},
		Public:   []fr.Element{lo, hi, cm},
		Diagnose: w.Check,
	}, nil
}
