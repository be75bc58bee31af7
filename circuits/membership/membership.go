// Package membership proves that the commitment Hash(leaf) of a private leaf
// is in the note tree under a public root.
package membership

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zknotes/circuits"
	"github.com/vocdoni/zknotes/circuits/gadgets"
	"github.com/vocdoni/zknotes/crypto/hash/poseidon"
	"github.com/vocdoni/zknotes/state"
	"github.com/vocdoni/zknotes/util"
)

var Definition = circuits.Definition{
	Name:        "membership",
	NbPublic:    2,
	Placeholder: Placeholder,
}

type Circuit struct {
	Root           frontend.Variable `gnark:",public"`
	LeafCommitment frontend.Variable `gnark:",public"`
	Leaf           frontend.Variable
	Path           gadgets.MerkleProof
}

func Placeholder() frontend.Circuit {
	return &Circuit{}
}

func (c *Circuit) Define(api frontend.API) error {
	cm, err := gadgets.Poseidon(api, c.Leaf)
	if err != nil {
		return err
	}
	api.AssertIsEqual(cm, c.LeafCommitment)
	if err := gadgets.VerifyMerklePath(api, cm, c.Path, c.Root); err != nil {
		return fmt.Errorf("merkle path: %w", err)
	}
	return nil
}

// Witness holds the leaf preimage and its path. Root defaults to the root
// the path leads to.
type Witness struct {
	Leaf *fr.Element
	Path *state.MerklePath
	Root *fr.Element
}

func (w *Witness) validate() error {
	switch {
	case w == nil || w.Leaf == nil:
		return circuits.MissingField("leaf")
	case w.Path == nil:
		return circuits.MissingField("merkle_path")
	}
	return nil
}

func (w *Witness) Check() error {
	if err := w.validate(); err != nil {
		return err
	}
	if w.Root != nil && !state.VerifyPath(poseidon.Hash(*w.Leaf), w.Path, *w.Root) {
		return circuits.Unsatisfied(circuits.ClassMerkle, "path does not lead to root %s", util.PrettyHex(*w.Root))
	}
	return nil
}

func (w *Witness) Assign() (*circuits.Assignment, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	cm := poseidon.Hash(*w.Leaf)
	root := w.Path.Root(cm)
	if w.Root != nil {
		root = *w.Root
	}
	return &circuits.Assignment{
		Circuit: &Circuit{
			Root:           util.FrToBig(root),
			LeafCommitment: util.FrToBig(cm),
			Leaf:           util.FrToBig(*w.Leaf),
			Path:           gadgets.MerkleProofFromPath(w.Path),
		},
		Public:   []fr.Element{root, cm},
		Diagnose: w.Check,
	}, nil
}
