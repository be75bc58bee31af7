// Package poseidon implements the Poseidon sponge over the BLS12-381 scalar
// field: width 3 (rate 2, capacity 1), 8 full rounds, 31 partial rounds and
// the x^17 S-box. The round constants and the MDS matrix are derived from the
// Grain LFSR, so digests match any implementation using the same derivation
// for the same parameters.
//
// The circuit form of this hash lives in circuits/gadgets and uses the
// constants returned by Parameters.
package poseidon

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

const (
	Width         = 3
	Rate          = 2
	Capacity      = 1
	FullRounds    = 8
	PartialRounds = 31
	Alpha         = 17
)

// Params holds the constants of the permutation.
type Params struct {
	ARK [FullRounds + PartialRounds][Width]fr.Element
	MDS [Width][Width]fr.Element
}

var defaultParams = sync.OnceValue(deriveParams)

// Parameters returns the round constants and MDS matrix. The returned value is
// shared and must not be modified.
func Parameters() *Params {
	return defaultParams()
}

// IsFullRound reports whether round r applies the S-box to every lane.
func IsFullRound(r int) bool {
	return r < FullRounds/2 || r >= FullRounds/2+PartialRounds
}

// Permute applies the Poseidon permutation to state in place.
func Permute(state *[Width]fr.Element) {
	p := Parameters()
	for r := range p.ARK {
		for i := range state {
			state[i].Add(&state[i], &p.ARK[r][i])
		}
		if IsFullRound(r) {
			for i := range state {
				sbox(&state[i])
			}
		} else {
			sbox(&state[0])
		}
		mix(state, &p.MDS)
	}
}

// sbox sets x = x^17.
func sbox(x *fr.Element) {
	var t fr.Element
	t.Square(x)
	t.Square(&t)
	t.Square(&t)
	t.Square(&t)
	x.Mul(x, &t)
}

func mix(state *[Width]fr.Element, mds *[Width][Width]fr.Element) {
	var out [Width]fr.Element
	var t fr.Element
	for i := range Width {
		for j := range Width {
			t.Mul(&mds[i][j], &state[j])
			out[i].Add(&out[i], &t)
		}
	}
	*state = out
}

// Hash absorbs the inputs into a fresh sponge and squeezes one element. The
// state is permuted whenever a full block is followed by more input, and once
// more before squeezing.
func Hash(inputs ...fr.Element) fr.Element {
	var state [Width]fr.Element
	pos := 0
	for i := range inputs {
		if pos == Rate {
			Permute(&state)
			pos = 0
		}
		state[Capacity+pos].Add(&state[Capacity+pos], &inputs[i])
		pos++
	}
	Permute(&state)
	return state[Capacity]
}

// Hash2 is the two-to-one compression used by the Merkle tree.
func Hash2(a, b fr.Element) fr.Element {
	return Hash(a, b)
}

// HashBigInts hashes integer inputs. Every input must be a canonical field
// element, values at or above the modulus are rejected instead of reduced.
func HashBigInts(inputs ...*big.Int) (*big.Int, error) {
	modulus := fr.Modulus()
	elems := make([]fr.Element, len(inputs))
	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("input %d is nil", i)
		}
		if in.Sign() < 0 || in.Cmp(modulus) >= 0 {
			return nil, fmt.Errorf("input %d is not a canonical field element", i)
		}
		elems[i].SetBigInt(in)
	}
	h := Hash(elems...)
	return h.BigInt(new(big.Int)), nil
}
