package wire

import (
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zknotes/util"
)

func randomG1() bls12381.G1Affine {
	_, _, g1, _ := bls12381.Generators()
	s := util.FrToBig(util.RandomFieldElement())
	var p bls12381.G1Affine
	p.ScalarMultiplication(&g1, s)
	return p
}

func randomG2() bls12381.G2Affine {
	_, _, _, g2 := bls12381.Generators()
	s := util.FrToBig(util.RandomFieldElement())
	var p bls12381.G2Affine
	p.ScalarMultiplication(&g2, s)
	return p
}

func TestFrRoundTrip(t *testing.T) {
	c := qt.New(t)
	for range 50 {
		e := util.RandomFieldElement()
		h := FrToRawHex(e)
		c.Assert(h, qt.HasLen, FrHexSize)
		back, err := HexToFr(h)
		c.Assert(err, qt.IsNil)
		c.Assert(back.Equal(&e), qt.IsTrue)

		prefixed := FrToHex(e)
		c.Assert(prefixed, qt.HasLen, FrHexSize+2)
		c.Assert(strings.HasPrefix(prefixed, "0x"), qt.IsTrue)
		back, err = HexToFr(prefixed)
		c.Assert(err, qt.IsNil)
		c.Assert(back.Equal(&e), qt.IsTrue)
	}
}

func TestFrByteOrder(t *testing.T) {
	c := qt.New(t)
	var one fr.Element
	one.SetOne()
	be := FrToBytes(one)
	c.Assert(be[FrSize-1], qt.Equals, byte(1))
	c.Assert(FrToRawHex(one), qt.Equals, strings.Repeat("0", 63)+"1")

	e := util.RandomFieldElement()
	be = FrToBytes(e)
	le := FrToLittleEndian(e)
	for i := range FrSize {
		c.Assert(le[i], qt.Equals, be[FrSize-1-i])
	}
	back, err := FrFromLittleEndian(le[:])
	c.Assert(err, qt.IsNil)
	c.Assert(back.Equal(&e), qt.IsTrue)

	// the big-endian bytes are the big.Int representation
	c.Assert(new(big.Int).SetBytes(be[:]).Cmp(util.FrToBig(e)), qt.Equals, 0)
}

func TestFrShapeErrors(t *testing.T) {
	c := qt.New(t)
	_, err := FrFromBytes(make([]byte, 33))
	c.Assert(errors.Is(err, ErrShape), qt.IsTrue)
	var se *ShapeError
	c.Assert(errors.As(err, &se), qt.IsTrue)
	c.Assert(se.Want, qt.Equals, 32)
	c.Assert(se.Got, qt.Equals, 33)

	_, err = HexToFr("0x" + strings.Repeat("00", 33))
	c.Assert(errors.Is(err, ErrShape), qt.IsTrue)

	// short input is left padded
	e, err := HexToFr("0x2a")
	c.Assert(err, qt.IsNil)
	c.Assert(e.Uint64(), qt.Equals, uint64(42))

	// the modulus itself is not canonical, and it is not a shape error
	_, err = HexToFr(fr.Modulus().Text(16))
	c.Assert(err, qt.IsNotNil)
	c.Assert(errors.Is(err, ErrShape), qt.IsFalse)

	_, err = HexToFr("zz")
	c.Assert(err, qt.IsNotNil)
}

func TestPointRoundTrip(t *testing.T) {
	c := qt.New(t)
	p1 := randomG1()
	h1 := G1ToHex(&p1)
	c.Assert(h1, qt.HasLen, 192)
	back1, err := HexToG1(h1)
	c.Assert(err, qt.IsNil)
	c.Assert(back1.Equal(&p1), qt.IsTrue)

	p2 := randomG2()
	h2 := G2ToHex(&p2)
	c.Assert(h2, qt.HasLen, 384)
	back2, err := HexToG2("0x" + h2)
	c.Assert(err, qt.IsNil)
	c.Assert(back2.Equal(&p2), qt.IsTrue)

	var inf bls12381.G1Affine
	backInf, err := G1FromBytes(G1ToBytes(&inf))
	c.Assert(err, qt.IsNil)
	c.Assert(backInf.IsInfinity(), qt.IsTrue)

	_, err = G1FromBytes(make([]byte, G1Size-1))
	c.Assert(errors.Is(err, ErrShape), qt.IsTrue)
	_, err = G2FromBytes(make([]byte, G2Size+1))
	c.Assert(errors.Is(err, ErrShape), qt.IsTrue)

	// a point off the curve is rejected, but not as a shape error
	bad := G1ToBytes(&p1)
	bad[G1Size-1] ^= 1
	_, err = G1FromBytes(bad)
	c.Assert(err, qt.IsNotNil)
	c.Assert(errors.Is(err, ErrShape), qt.IsFalse)
}

func TestProofEncoding(t *testing.T) {
	c := qt.New(t)
	p := &Proof{A: randomG1(), B: randomG2(), C: randomG1()}

	data, err := json.Marshal(p)
	c.Assert(err, qt.IsNil)
	var raw map[string]string
	c.Assert(json.Unmarshal(data, &raw), qt.IsNil)
	c.Assert(raw["a"], qt.HasLen, 192)
	c.Assert(raw["b"], qt.HasLen, 384)
	c.Assert(raw["c"], qt.HasLen, 192)

	var back Proof
	c.Assert(json.Unmarshal(data, &back), qt.IsNil)
	c.Assert(back.A.Equal(&p.A), qt.IsTrue)
	c.Assert(back.B.Equal(&p.B), qt.IsTrue)
	c.Assert(back.C.Equal(&p.C), qt.IsTrue)

	b := p.Bytes()
	c.Assert(b, qt.HasLen, ProofSize)
	fromBytes, err := ProofFromBytes(b)
	c.Assert(err, qt.IsNil)
	c.Assert(fromBytes.Bytes(), qt.DeepEquals, b)

	_, err = ProofFromBytes(b[1:])
	c.Assert(errors.Is(err, ErrShape), qt.IsTrue)
}

func TestVerifyingKeyEncoding(t *testing.T) {
	c := qt.New(t)
	vk := &VerifyingKey{
		Alpha: randomG1(),
		Beta:  randomG2(),
		Gamma: randomG2(),
		Delta: randomG2(),
		IC:    []bls12381.G1Affine{randomG1(), randomG1(), randomG1()},
	}
	c.Assert(vk.NbPublic(), qt.Equals, 2)

	b := vk.Bytes()
	c.Assert(b, qt.HasLen, G1Size+3*G2Size+3*G1Size)
	back, err := VerifyingKeyFromBytes(b)
	c.Assert(err, qt.IsNil)
	c.Assert(back.CircuitID(), qt.Equals, vk.CircuitID())

	_, err = VerifyingKeyFromBytes(b[:len(b)-1])
	c.Assert(errors.Is(err, ErrShape), qt.IsTrue)
	_, err = VerifyingKeyFromBytes(b[:G1Size+3*G2Size])
	c.Assert(errors.Is(err, ErrShape), qt.IsTrue)

	data, err := json.Marshal(vk)
	c.Assert(err, qt.IsNil)
	var fromJSON VerifyingKey
	c.Assert(json.Unmarshal(data, &fromJSON), qt.IsNil)
	c.Assert(fromJSON.CircuitID(), qt.Equals, vk.CircuitID())
	c.Assert(fromJSON.IC, qt.HasLen, 3)

	// reordering the ic vector changes the id
	swapped := *vk
	swapped.IC = []bls12381.G1Affine{vk.IC[0], vk.IC[2], vk.IC[1]}
	c.Assert(swapped.CircuitID(), qt.Not(qt.Equals), vk.CircuitID())
}

func TestCircuitID(t *testing.T) {
	c := qt.New(t)
	vk := &VerifyingKey{
		Alpha: randomG1(), Beta: randomG2(), Gamma: randomG2(), Delta: randomG2(),
		IC: []bls12381.G1Affine{randomG1()},
	}
	id := vk.CircuitID()
	c.Assert(id.String(), qt.HasLen, 64)

	parsed, err := ParseCircuitID("0x" + id.String())
	c.Assert(err, qt.IsNil)
	c.Assert(parsed, qt.Equals, id)

	text, err := id.MarshalText()
	c.Assert(err, qt.IsNil)
	var fromText CircuitID
	c.Assert(fromText.UnmarshalText(text), qt.IsNil)
	c.Assert(fromText, qt.Equals, id)

	_, err = ParseCircuitID("abcd")
	c.Assert(errors.Is(err, ErrShape), qt.IsTrue)
}

func TestFrVectors(t *testing.T) {
	c := qt.New(t)
	in := []fr.Element{util.RandomFieldElement(), util.RandomFieldElement()}
	enc := EncodeFrs(in)
	c.Assert(enc, qt.HasLen, 2)
	out, err := DecodeFrs(enc)
	c.Assert(err, qt.IsNil)
	c.Assert(out[0].Equal(&in[0]), qt.IsTrue)
	c.Assert(out[1].Equal(&in[1]), qt.IsTrue)

	_, err = DecodeFrs([]string{enc[0], "0x" + strings.Repeat("ff", 40)})
	c.Assert(errors.Is(err, ErrShape), qt.IsTrue)
}
