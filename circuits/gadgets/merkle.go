package gadgets

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/gnark-crypto-primitives/utils"
	"github.com/vocdoni/zknotes/circuits"
	"github.com/vocdoni/zknotes/state"
	"github.com/vocdoni/zknotes/util"
)

// MerkleProof is the circuit form of state.MerklePath: one sibling and one
// direction bit per level, leaf level first.
type MerkleProof struct {
	Siblings [circuits.MerkleProofLevels]frontend.Variable
	IsRight  [circuits.MerkleProofLevels]frontend.Variable
}

// MerkleProofFromPath assigns a native path.
func MerkleProofFromPath(p *state.MerklePath) MerkleProof {
	var mp MerkleProof
	for l := range p.Siblings {
		mp.Siblings[l] = util.FrToBig(p.Siblings[l])
		mp.IsRight[l] = circuits.BoolToBigInt(p.IsRight[l])
	}
	return mp
}

// Root constrains the root obtained by hashing leaf up through the path. At
// each level the pair is (sibling, cur) when IsRight is set and (cur, sibling)
// otherwise; the swap costs a single multiplication.
func (mp *MerkleProof) Root(api frontend.API, hFn utils.Hasher, leaf frontend.Variable) (frontend.Variable, error) {
	cur := leaf
	for l := range mp.Siblings {
		api.AssertIsBoolean(mp.IsRight[l])
		d := api.Mul(mp.IsRight[l], api.Sub(mp.Siblings[l], cur))
		left := api.Add(cur, d)
		right := api.Sub(mp.Siblings[l], d)
		h, err := hFn(api, left, right)
		if err != nil {
			return nil, fmt.Errorf("hashing level %d: %w", l, err)
		}
		cur = h
	}
	return cur, nil
}

// Verify asserts that leaf hashes up through the path to root.
func (mp *MerkleProof) Verify(api frontend.API, hFn utils.Hasher, leaf, root frontend.Variable) error {
	computed, err := mp.Root(api, hFn, leaf)
	if err != nil {
		return err
	}
	api.AssertIsEqual(computed, root)
	return nil
}

// VerifyMerklePath asserts the inclusion of leaf under root using Poseidon.
func VerifyMerklePath(api frontend.API, leaf frontend.Variable, mp MerkleProof, root frontend.Variable) error {
	return mp.Verify(api, Poseidon, leaf, root)
}
