// Package ownership proves knowledge of the secret key behind an owner hash.
package ownership

import (
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zknotes/circuits"
	"github.com/vocdoni/zknotes/circuits/gadgets"
	"github.com/vocdoni/zknotes/note"
	"github.com/vocdoni/zknotes/util"
)

var Definition = circuits.Definition{
	Name:        "ownership",
	NbPublic:    1,
	Placeholder: Placeholder,
}

type Circuit struct {
	OwnerHash frontend.Variable `gnark:",public"`
	SecretKey frontend.Variable
}

func Placeholder() frontend.Circuit {
	return &Circuit{}
}

func (c *Circuit) Define(api frontend.API) error {
	api.AssertIsEqual(gadgets.OwnerHash(api, c.SecretKey), c.OwnerHash)
	return nil
}

// Witness proves that SecretKey controls OwnerHash. When OwnerHash is nil
// it is derived from the key.
type Witness struct {
	SecretKey *note.SecretKey
	OwnerHash *fr.Element
}

func (w *Witness) Check() error {
	if w == nil || w.SecretKey == nil {
		return circuits.MissingField("secret_key")
	}
	if w.OwnerHash != nil {
		if h := w.SecretKey.OwnerHash(); !h.Equal(w.OwnerHash) {
			return circuits.Unsatisfied(circuits.ClassOwnership, "key does not hash to %s", util.PrettyHex(*w.OwnerHash))
		}
	}
	return nil
}

func (w *Witness) Assign() (*circuits.Assignment, error) {
	if w == nil || w.SecretKey == nil {
		return nil, circuits.MissingField("secret_key")
	}
	owner := w.SecretKey.OwnerHash()
	if w.OwnerHash != nil {
		owner = *w.OwnerHash
	}
	return &circuits.Assignment{
		Circuit: &Circuit{
			OwnerHash: util.FrToBig(owner),
			SecretKey: util.FrToBig(w.SecretKey.Element),
		},
		Public:   []fr.Element{owner},
		Diagnose: w.Check,
	}, nil
}
