package wire

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bls12381 "github.com/consensys/gnark/backend/groth16/bls12-381"
	"github.com/vocdoni/zknotes/util"
)

// ProofSize is the size of the binary encoding of a proof: A, B and C.
const ProofSize = 2*G1Size + G2Size

// Proof is a Groth16 proof over BLS12-381 in the standard three element
// layout.
type Proof struct {
	A bls12381.G1Affine
	B bls12381.G2Affine
	C bls12381.G1Affine
}

// ProofFromGnark converts a proof produced by gnark. Proofs carrying Pedersen
// commitments are rejected since external verifiers only check the plain
// Groth16 equation.
func ProofFromGnark(p groth16.Proof) (*Proof, error) {
	gp, ok := p.(*groth16_bls12381.Proof)
	if !ok {
		return nil, fmt.Errorf("unsupported proof type %T", p)
	}
	if len(gp.Commitments) > 0 {
		return nil, fmt.Errorf("proofs with commitments are not supported")
	}
	return &Proof{A: gp.Ar, B: gp.Bs, C: gp.Krs}, nil
}

// Gnark returns the proof as a gnark BLS12-381 proof.
func (p *Proof) Gnark() *groth16_bls12381.Proof {
	return &groth16_bls12381.Proof{Ar: p.A, Bs: p.B, Krs: p.C}
}

// Bytes returns A‖B‖C.
func (p *Proof) Bytes() []byte {
	out := make([]byte, 0, ProofSize)
	out = append(out, G1ToBytes(&p.A)...)
	out = append(out, G2ToBytes(&p.B)...)
	return append(out, G1ToBytes(&p.C)...)
}

// ProofFromBytes decodes the output of Proof.Bytes.
func ProofFromBytes(b []byte) (*Proof, error) {
	if len(b) != ProofSize {
		return nil, shapeErr("proof bytes", ProofSize, len(b))
	}
	var p Proof
	var err error
	if p.A, err = G1FromBytes(b[:G1Size]); err != nil {
		return nil, fmt.Errorf("proof.a: %w", err)
	}
	if p.B, err = G2FromBytes(b[G1Size : G1Size+G2Size]); err != nil {
		return nil, fmt.Errorf("proof.b: %w", err)
	}
	if p.C, err = G1FromBytes(b[G1Size+G2Size:]); err != nil {
		return nil, fmt.Errorf("proof.c: %w", err)
	}
	return &p, nil
}

type proofJSON struct {
	A string `json:"a"`
	B string `json:"b"`
	C string `json:"c"`
}

// MarshalJSON encodes the proof as {"a": G1 hex, "b": G2 hex, "c": G1 hex}.
func (p Proof) MarshalJSON() ([]byte, error) {
	return json.Marshal(proofJSON{
		A: G1ToHex(&p.A),
		B: G2ToHex(&p.B),
		C: G1ToHex(&p.C),
	})
}

// UnmarshalJSON decodes the format produced by MarshalJSON.
func (p *Proof) UnmarshalJSON(data []byte) error {
	var pj proofJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return err
	}
	var err error
	if p.A, err = HexToG1(pj.A); err != nil {
		return fmt.Errorf("proof.a: %w", err)
	}
	if p.B, err = HexToG2(pj.B); err != nil {
		return fmt.Errorf("proof.b: %w", err)
	}
	if p.C, err = HexToG1(pj.C); err != nil {
		return fmt.Errorf("proof.c: %w", err)
	}
	return nil
}

// VerifyingKey is a Groth16 verifying key. IC[0] is the constant term and
// IC[1..] match the public inputs one to one, in their declared order.
type VerifyingKey struct {
	Alpha bls12381.G1Affine
	Beta  bls12381.G2Affine
	Gamma bls12381.G2Affine
	Delta bls12381.G2Affine
	IC    []bls12381.G1Affine
}

// VerifyingKeyFromGnark converts a verifying key produced by gnark.
func VerifyingKeyFromGnark(vk groth16.VerifyingKey) (*VerifyingKey, error) {
	gvk, ok := vk.(*groth16_bls12381.VerifyingKey)
	if !ok {
		return nil, fmt.Errorf("unsupported verifying key type %T", vk)
	}
	if len(gvk.PublicAndCommitmentCommitted) > 0 {
		return nil, fmt.Errorf("verifying keys with commitments are not supported")
	}
	ic := make([]bls12381.G1Affine, len(gvk.G1.K))
	copy(ic, gvk.G1.K)
	return &VerifyingKey{
		Alpha: gvk.G1.Alpha,
		Beta:  gvk.G2.Beta,
		Gamma: gvk.G2.Gamma,
		Delta: gvk.G2.Delta,
		IC:    ic,
	}, nil
}

// NbPublic returns the number of public inputs the key expects.
func (vk *VerifyingKey) NbPublic() int {
	return len(vk.IC) - 1
}

// Bytes returns alpha‖beta‖gamma‖delta‖ic[0]‖…‖ic[n].
func (vk *VerifyingKey) Bytes() []byte {
	out := make([]byte, 0, G1Size+3*G2Size+len(vk.IC)*G1Size)
	out = append(out, G1ToBytes(&vk.Alpha)...)
	out = append(out, G2ToBytes(&vk.Beta)...)
	out = append(out, G2ToBytes(&vk.Gamma)...)
	out = append(out, G2ToBytes(&vk.Delta)...)
	for i := range vk.IC {
		out = append(out, G1ToBytes(&vk.IC[i])...)
	}
	return out
}

// VerifyingKeyFromBytes decodes the output of VerifyingKey.Bytes.
func VerifyingKeyFromBytes(b []byte) (*VerifyingKey, error) {
	const fixed = G1Size + 3*G2Size
	if len(b) < fixed+G1Size {
		return nil, shapeErr("verifying key bytes", fixed+G1Size, len(b))
	}
	if extra := (len(b) - fixed) % G1Size; extra != 0 {
		return nil, shapeErr("verifying key bytes", len(b)-extra, len(b))
	}
	vk := &VerifyingKey{}
	var err error
	if vk.Alpha, err = G1FromBytes(b[:G1Size]); err != nil {
		return nil, fmt.Errorf("alpha: %w", err)
	}
	b = b[G1Size:]
	for _, g2 := range []*bls12381.G2Affine{&vk.Beta, &vk.Gamma, &vk.Delta} {
		if *g2, err = G2FromBytes(b[:G2Size]); err != nil {
			return nil, err
		}
		b = b[G2Size:]
	}
	vk.IC = make([]bls12381.G1Affine, len(b)/G1Size)
	for i := range vk.IC {
		if vk.IC[i], err = G1FromBytes(b[i*G1Size : (i+1)*G1Size]); err != nil {
			return nil, fmt.Errorf("ic[%d]: %w", i, err)
		}
	}
	return vk, nil
}

// CircuitID returns the content address of the key: sha256 of Bytes.
func (vk *VerifyingKey) CircuitID() CircuitID {
	return sha256.Sum256(vk.Bytes())
}

type verifyingKeyJSON struct {
	Alpha string   `json:"alpha_g1"`
	Beta  string   `json:"beta_g2"`
	Gamma string   `json:"gamma_g2"`
	Delta string   `json:"delta_g2"`
	IC    []string `json:"ic"`
}

// MarshalJSON encodes every point as unprefixed hex.
func (vk VerifyingKey) MarshalJSON() ([]byte, error) {
	vj := verifyingKeyJSON{
		Alpha: G1ToHex(&vk.Alpha),
		Beta:  G2ToHex(&vk.Beta),
		Gamma: G2ToHex(&vk.Gamma),
		Delta: G2ToHex(&vk.Delta),
		IC:    make([]string, len(vk.IC)),
	}
	for i := range vk.IC {
		vj.IC[i] = G1ToHex(&vk.IC[i])
	}
	return json.Marshal(vj)
}

// UnmarshalJSON decodes the format produced by MarshalJSON.
func (vk *VerifyingKey) UnmarshalJSON(data []byte) error {
	var vj verifyingKeyJSON
	if err := json.Unmarshal(data, &vj); err != nil {
		return err
	}
	if len(vj.IC) == 0 {
		return shapeErr("verifying key ic", 1, 0)
	}
	var err error
	if vk.Alpha, err = HexToG1(vj.Alpha); err != nil {
		return fmt.Errorf("alpha_g1: %w", err)
	}
	if vk.Beta, err = HexToG2(vj.Beta); err != nil {
		return fmt.Errorf("beta_g2: %w", err)
	}
	if vk.Gamma, err = HexToG2(vj.Gamma); err != nil {
		return fmt.Errorf("gamma_g2: %w", err)
	}
	if vk.Delta, err = HexToG2(vj.Delta); err != nil {
		return fmt.Errorf("delta_g2: %w", err)
	}
	vk.IC = make([]bls12381.G1Affine, len(vj.IC))
	for i, s := range vj.IC {
		if vk.IC[i], err = HexToG1(s); err != nil {
			return fmt.Errorf("ic[%d]: %w", i, err)
		}
	}
	return nil
}

// CircuitID identifies a registered verifying key.
type CircuitID [sha256.Size]byte

// String returns the unprefixed hex form of the id.
func (id CircuitID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id CircuitID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *CircuitID) UnmarshalText(text []byte) error {
	parsed, err := ParseCircuitID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseCircuitID decodes a hex circuit id, with or without the 0x prefix.
func ParseCircuitID(s string) (CircuitID, error) {
	var id CircuitID
	b, err := hex.DecodeString(util.TrimHex(s))
	if err != nil {
		return id, fmt.Errorf("invalid circuit id: %w", err)
	}
	if len(b) != len(id) {
		return id, shapeErr("circuit id bytes", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}
