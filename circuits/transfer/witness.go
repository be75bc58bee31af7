package transfer

import (
	"fmt"
	"math/bits"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/vocdoni/zknotes/circuits"
	"github.com/vocdoni/zknotes/circuits/gadgets"
	"github.com/vocdoni/zknotes/note"
	"github.com/vocdoni/zknotes/state"
	"github.com/vocdoni/zknotes/util"
)

// Witness is the native bundle a transfer proof is built from.
type Witness struct {
	SecretKey *note.SecretKey
	In        *note.Note
	Path      *state.MerklePath
	Out       [2]*note.Note
	// Root, if set, is used as the old root public input instead of the
	// root derived from Path, so a path that does not lead to it makes the
	// witness unsatisfiable.
	Root *fr.Element
}

// PublicInputs are the transfer public inputs in circuit order.
type PublicInputs struct {
	OldRoot        fr.Element
	Nullifier      fr.Element
	OutCommitment0 fr.Element
	OutCommitment1 fr.Element
}

// Slice returns the inputs in the order the verifying key expects.
func (p *PublicInputs) Slice() []fr.Element {
	return []fr.Element{p.OldRoot, p.Nullifier, p.OutCommitment0, p.OutCommitment1}
}

// PublicInputsFromSlice is the inverse of Slice.
func PublicInputsFromSlice(in []fr.Element) (*PublicInputs, error) {
	if len(in) != circuits.NbTransferPublicInputs {
		return nil, fmt.Errorf("expected %d public inputs, got %d", circuits.NbTransferPublicInputs, len(in))
	}
	return &PublicInputs{OldRoot: in[0], Nullifier: in[1], OutCommitment0: in[2], OutCommitment1: in[3]}, nil
}

// PathFromProof builds a Merkle path from the sibling and direction lists
// served by the indexer.
func PathFromProof(siblings []fr.Element, isRight []bool) (*state.MerklePath, error) {
	if len(siblings) != state.Depth {
		return nil, &circuits.SynthesisError{
			Field:  "path.siblings",
			Reason: fmt.Sprintf("expected %d levels, got %d", state.Depth, len(siblings)),
		}
	}
	if len(isRight) != state.Depth {
		return nil, &circuits.SynthesisError{
			Field:  "path.indices",
			Reason: fmt.Sprintf("expected %d levels, got %d", state.Depth, len(isRight)),
		}
	}
	p := &state.MerklePath{}
	copy(p.Siblings[:], siblings)
	copy(p.IsRight[:], isRight)
	return p, nil
}

func (w *Witness) validate() error {
	switch {
	case w == nil:
		return circuits.MissingField("witness")
	case w.SecretKey == nil:
		return circuits.MissingField("secret_key")
	case w.In == nil:
		return circuits.MissingField("consumed_note")
	case w.Path == nil:
		return circuits.MissingField("merkle_path")
	case w.Out[0] == nil:
		return circuits.MissingField("created_note_0")
	case w.Out[1] == nil:
		return circuits.MissingField("created_note_1")
	}
	return nil
}

// PublicInputs computes the public inputs natively.
func (w *Witness) PublicInputs() (*PublicInputs, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	pub := &PublicInputs{
		OldRoot:        w.Path.Root(w.In.Commitment()),
		Nullifier:      w.In.Nullifier(*w.SecretKey),
		OutCommitment0: w.Out[0].Commitment(),
		OutCommitment1: w.Out[1].Commitment(),
	}
	if w.Root != nil {
		pub.OldRoot = *w.Root
	}
	return pub, nil
}

// Check evaluates every constraint class natively and returns a
// ConstraintError for the first one that does not hold.
func (w *Witness) Check() error {
	if err := w.validate(); err != nil {
		return err
	}
	owner := w.SecretKey.OwnerHash()
	if !owner.Equal(&w.In.Owner) {
		return circuits.Unsatisfied(circuits.ClassOwnership, "secret key does not own the consumed note")
	}
	if w.Root != nil && !state.VerifyPath(w.In.Commitment(), w.Path, *w.Root) {
		return circuits.Unsatisfied(circuits.ClassMerkle, "path does not lead to root %s", util.PrettyHex(*w.Root))
	}
	sum, carry := bits.Add64(w.Out[0].Value, w.Out[1].Value, 0)
	if carry != 0 || sum != w.In.Value {
		return circuits.Unsatisfied(circuits.ClassValue, "consumed %d != created %d + %d",
			w.In.Value, w.Out[0].Value, w.Out[1].Value)
	}
	for i, out := range w.Out {
		if out.AppTag != w.In.AppTag {
			return circuits.Unsatisfied(circuits.ClassTag, "created note %d has tag %d, consumed has %d",
				i, out.AppTag, w.In.AppTag)
		}
	}
	return nil
}

// Assign returns the full circuit assignment and its public inputs.
func (w *Witness) Assign() (*circuits.Assignment, error) {
	pub, err := w.PublicInputs()
	if err != nil {
		return nil, err
	}
	c := &Circuit{
		OldRoot:        util.FrToBig(pub.OldRoot),
		Nullifier:      util.FrToBig(pub.Nullifier),
		OutCommitment0: util.FrToBig(pub.OutCommitment0),
		OutCommitment1: util.FrToBig(pub.OutCommitment1),
		SecretKey:      util.FrToBig(w.SecretKey.Element),
		In:             gadgets.NoteFromNative(w.In),
		Path:           gadgets.MerkleProofFromPath(w.Path),
		Out: [2]gadgets.Note{
			gadgets.NoteFromNative(w.Out[0]),
			gadgets.NoteFromNative(w.Out[1]),
		},
	}
	return &circuits.Assignment{
		Circuit:  c,
		Public:   pub.Slice(),
		Diagnose: w.Check,
	}, nil
}
