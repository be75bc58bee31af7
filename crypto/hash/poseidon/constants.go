package poseidon

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

// grainLFSR is the 80-bit Grain self-shrinking generator used to derive the
// round constants and the MDS matrix from the permutation parameters.
type grainLFSR struct {
	state [80]bool
	head  int
}

func newGrainLFSR(fieldBits, width, fullRounds, partialRounds int) *grainLFSR {
	g := &grainLFSR{}
	// b0..b1 = 01: prime field. b2..b5 = 0000: x^alpha S-box.
	g.state[1] = true
	g.setBits(6, 17, fieldBits)
	g.setBits(18, 29, width)
	g.setBits(30, 39, fullRounds)
	g.setBits(40, 49, partialRounds)
	for i := 50; i < 80; i++ {
		g.state[i] = true
	}
	for range 160 {
		g.update()
	}
	return g
}

// setBits writes v big-endian into state[from..to].
func (g *grainLFSR) setBits(from, to, v int) {
	for i := to; i >= from; i-- {
		g.state[i] = v&1 == 1
		v >>= 1
	}
}

func (g *grainLFSR) update() bool {
	// bool != bool is xor
	bit := g.state[g.head]
	for _, tap := range [...]int{13, 23, 38, 51, 62} {
		bit = bit != g.state[(g.head+tap)%80]
	}
	g.state[g.head] = bit
	g.head = (g.head + 1) % 80
	return bit
}

// nextBit returns the next output bit of the self-shrinking generator: pairs
// of bits are drawn and the second one is emitted only when the first is set.
func (g *grainLFSR) nextBit() bool {
	for !g.update() {
		g.update()
	}
	return g.update()
}

// nextInt reads n output bits as a big-endian integer.
func (g *grainLFSR) nextInt(n int) *big.Int {
	v := new(big.Int)
	for i := 0; i < n; i++ {
		v.Lsh(v, 1)
		if g.nextBit() {
			v.SetBit(v, 0, 1)
		}
	}
	return v
}

// rejectionSample returns field elements drawn until the integer is below the
// modulus.
func (g *grainLFSR) rejectionSample(n, count int) []fr.Element {
	modulus := fr.Modulus()
	out := make([]fr.Element, count)
	for i := range out {
		for {
			v := g.nextInt(n)
			if v.Cmp(modulus) < 0 {
				out[i].SetBigInt(v)
				break
			}
		}
	}
	return out
}

// modSample returns field elements reduced modulo the field order.
func (g *grainLFSR) modSample(n, count int) []fr.Element {
	out := make([]fr.Element, count)
	for i := range out {
		out[i].SetBigInt(g.nextInt(n))
	}
	return out
}

// deriveParams computes the round constants, one row per round, followed by a
// Cauchy MDS matrix M[i][j] = 1/(x_i + y_j).
func deriveParams() *Params {
	fieldBits := fr.Modulus().BitLen()
	g := newGrainLFSR(fieldBits, Width, FullRounds, PartialRounds)
	p := &Params{}
	for r := range p.ARK {
		copy(p.ARK[r][:], g.rejectionSample(fieldBits, Width))
	}
	xs := g.modSample(fieldBits, Width)
	ys := g.modSample(fieldBits, Width)
	for i := range Width {
		for j := range Width {
			var s fr.Element
			s.Add(&xs[i], &ys[j])
			p.MDS[i][j].Inverse(&s)
		}
	}
	return p
}
