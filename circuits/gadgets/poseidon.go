// Package gadgets holds the in-circuit building blocks shared by every note
// circuit: the Poseidon sponge, the Merkle path check, bit decomposition and
// range checks, and the note commitment.
package gadgets

import (
	"math/big"
	"sync"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/gnark-crypto-primitives/utils"
	"github.com/vocdoni/zknotes/crypto/hash/poseidon"
)

var _ utils.Hasher = Poseidon

type poseidonConstants struct {
	ark [poseidon.FullRounds + poseidon.PartialRounds][poseidon.Width]*big.Int
	mds [poseidon.Width][poseidon.Width]*big.Int
}

// constants converts the native parameters once into the *big.Int form gnark
// takes as circuit constants.
var constants = sync.OnceValue(func() *poseidonConstants {
	p := poseidon.Parameters()
	c := &poseidonConstants{}
	for r := range p.ARK {
		for i := range p.ARK[r] {
			c.ark[r][i] = p.ARK[r][i].BigInt(new(big.Int))
		}
	}
	for i := range p.MDS {
		for j := range p.MDS[i] {
			c.mds[i][j] = p.MDS[i][j].BigInt(new(big.Int))
		}
	}
	return c
})

// Poseidon is the circuit form of poseidon.Hash: same sponge layout, same
// round constants and MDS matrix. It never returns an error, the signature
// matches utils.Hasher so it can be passed to the tree gadgets.
func Poseidon(api frontend.API, inputs ...frontend.Variable) (frontend.Variable, error) {
	state := [poseidon.Width]frontend.Variable{0, 0, 0}
	pos := 0
	for _, in := range inputs {
		if pos == poseidon.Rate {
			state = Permute(api, state)
			pos = 0
		}
		state[poseidon.Capacity+pos] = api.Add(state[poseidon.Capacity+pos], in)
		pos++
	}
	state = Permute(api, state)
	return state[poseidon.Capacity], nil
}

// Hash2 is the two-to-one compression used for Merkle nodes.
func Hash2(api frontend.API, a, b frontend.Variable) frontend.Variable {
	h, _ := Poseidon(api, a, b)
	return h
}

// Permute constrains one application of the Poseidon permutation. Each S-box
// costs five multiplications, the round constants and the MDS layer are
// linear and free in R1CS.
func Permute(api frontend.API, state [poseidon.Width]frontend.Variable) [poseidon.Width]frontend.Variable {
	c := constants()
	for r := range c.ark {
		for i := range state {
			state[i] = api.Add(state[i], c.ark[r][i])
		}
		if poseidon.IsFullRound(r) {
			for i := range state {
				state[i] = sbox(api, state[i])
			}
		} else {
			state[0] = sbox(api, state[0])
		}
		var out [poseidon.Width]frontend.Variable
		for i := range out {
			out[i] = api.Add(
				api.Mul(c.mds[i][0], state[0]),
				api.Mul(c.mds[i][1], state[1]),
				api.Mul(c.mds[i][2], state[2]),
			)
		}
		state = out
	}
	return state
}

// sbox returns x^17.
func sbox(api frontend.API, x frontend.Variable) frontend.Variable {
	x2 := api.Mul(x, x)
	x4 := api.Mul(x2, x2)
	x8 := api.Mul(x4, x4)
	x16 := api.Mul(x8, x8)
	return api.Mul(x16, x)
}
