// Package transfer implements the circuit that spends one note and creates
// two. The public inputs, in order, are the Merkle root the spent note is
// proven against, its nullifier and the commitments of the two new notes.
package transfer

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zknotes/circuits"
	"github.com/vocdoni/zknotes/circuits/gadgets"
)

// Definition describes the transfer circuit topology.
var Definition = circuits.Definition{
	Name:        "transfer",
	NbPublic:    circuits.NbTransferPublicInputs,
	Placeholder: Placeholder,
}

// Circuit spends In, found under OldRoot through Path, into Out[0] and
// Out[1]. Value is conserved, the application tag is preserved and every
// value is range checked to 64 bits so the conservation equation can not be
// satisfied through field wraparound.
type Circuit struct {
	OldRoot        frontend.Variable `gnark:",public"`
	Nullifier      frontend.Variable `gnark:",public"`
	OutCommitment0 frontend.Variable `gnark:",public"`
	OutCommitment1 frontend.Variable `gnark:",public"`

	SecretKey frontend.Variable
	In        gadgets.Note
	Path      gadgets.MerkleProof
	Out       [2]gadgets.Note
}

// Placeholder returns the topology-only circuit used to compile and set up
// the keys.
func Placeholder() frontend.Circuit {
	return &Circuit{}
}

// Define declares the circuit constraints.
func (c *Circuit) Define(api frontend.API) error {
	// ownership
	api.AssertIsEqual(gadgets.OwnerHash(api, c.SecretKey), c.In.Owner)
	// inclusion of the spent commitment
	cm := c.In.Commitment(api)
	if err := gadgets.VerifyMerklePath(api, cm, c.Path, c.OldRoot); err != nil {
		return fmt.Errorf("merkle path: %w", err)
	}
	// nullifier
	api.AssertIsEqual(gadgets.Nullifier(api, c.SecretKey, c.In.Nonce), c.Nullifier)
	// outputs
	api.AssertIsEqual(c.Out[0].Commitment(api), c.OutCommitment0)
	api.AssertIsEqual(c.Out[1].Commitment(api), c.OutCommitment1)
	// value conservation and tag propagation
	api.AssertIsEqual(c.In.Value, api.Add(c.Out[0].Value, c.Out[1].Value))
	api.AssertIsEqual(c.In.AppTag, c.Out[0].AppTag)
	api.AssertIsEqual(c.In.AppTag, c.Out[1].AppTag)
	// ranges
	for i, v := range []frontend.Variable{c.In.Value, c.Out[0].Value, c.Out[1].Value} {
		if err := gadgets.AssertBits(api, v, circuits.ValueBits); err != nil {
			return fmt.Errorf("value %d range: %w", i, err)
		}
	}
	return nil
}
