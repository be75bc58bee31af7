// Package preimage proves knowledge of a single element preimage of a
// Poseidon digest.
package preimage

import (
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zknotes/circuits"
	"github.com/vocdoni/zknotes/circuits/gadgets"
	"github.com/vocdoni/zknotes/crypto/hash/poseidon"
	"github.com/vocdoni/zknotes/util"
)

var Definition = circuits.Definition{
	Name:        "preimage",
	NbPublic:    1,
	Placeholder: Placeholder,
}

type Circuit struct {
	Hash     frontend.Variable `gnark:",public"`
	Preimage frontend.Variable
}

func Placeholder() frontend.Circuit {
	return &Circuit{}
}

func (c *Circuit) Define(api frontend.API) error {
	h, err := gadgets.Poseidon(api, c.Preimage)
	if err != nil {
		return err
	}
	api.AssertIsEqual(h, c.Hash)
	return nil
}

// Witness holds the preimage and, optionally, the digest it is claimed to
// hash to.
type Witness struct {
	Preimage *fr.Element
	Hash     *fr.Element
}

func (w *Witness) Check() error {
	if w == nil || w.Preimage == nil {
		return circuits.MissingField("preimage")
	}
	if w.Hash != nil {
		if h := poseidon.Hash(*w.Preimage); !h.Equal(w.Hash) {
			return circuits.Unsatisfied(circuits.ClassPreimage, "preimage does not hash to %s", util.PrettyHex(*w.Hash))
		}
	}
	return nil
}

func (w *Witness) Assign() (*circuits.Assignment, error) {
	if w == nil || w.Preimage == nil {
		return nil, circuits.MissingField("preimage")
	}
	h := poseidon.Hash(*w.Preimage)
	if w.Hash != nil {
		h = *w.Hash
	}
	return &circuits.Assignment{
		Circuit: &Circuit{
			Hash:     util.FrToBig(h),
			Preimage: util.FrToBig(*w.Preimage),
		},
		Public:   []fr.Element{h},
		Diagnose: w.Check,
	}, nil
}
