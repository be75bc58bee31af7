package wire

import (
	"encoding/hex"
	"fmt"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/vocdoni/zknotes/util"
)

const (
	// G1Size is the size of an uncompressed G1 point.
	G1Size = bls12381.SizeOfG1AffineUncompressed
	// G2Size is the size of an uncompressed G2 point.
	G2Size = bls12381.SizeOfG2AffineUncompressed
)

// G1ToBytes returns the uncompressed encoding of p.
func G1ToBytes(p *bls12381.G1Affine) []byte {
	b := p.RawBytes()
	return b[:]
}

// G1FromBytes decodes an uncompressed G1 point, checking it is on the curve
// and in the prime order subgroup.
func G1FromBytes(b []byte) (bls12381.G1Affine, error) {
	var p bls12381.G1Affine
	if len(b) != G1Size {
		return p, shapeErr("G1 point bytes", G1Size, len(b))
	}
	if _, err := p.SetBytes(b); err != nil {
		return p, fmt.Errorf("invalid G1 point: %w", err)
	}
	return p, nil
}

// G2ToBytes returns the uncompressed encoding of p.
func G2ToBytes(p *bls12381.G2Affine) []byte {
	b := p.RawBytes()
	return b[:]
}

// G2FromBytes decodes an uncompressed G2 point, checking it is on the curve
// and in the prime order subgroup.
func G2FromBytes(b []byte) (bls12381.G2Affine, error) {
	var p bls12381.G2Affine
	if len(b) != G2Size {
		return p, shapeErr("G2 point bytes", G2Size, len(b))
	}
	if _, err := p.SetBytes(b); err != nil {
		return p, fmt.Errorf("invalid G2 point: %w", err)
	}
	return p, nil
}

// G1ToHex returns the 192 character hex encoding of p.
func G1ToHex(p *bls12381.G1Affine) string {
	return hex.EncodeToString(G1ToBytes(p))
}

// G2ToHex returns the 384 character hex encoding of p.
func G2ToHex(p *bls12381.G2Affine) string {
	return hex.EncodeToString(G2ToBytes(p))
}

// HexToG1 decodes a hex G1 point, with or without the 0x prefix.
func HexToG1(s string) (bls12381.G1Affine, error) {
	b, err := hex.DecodeString(util.TrimHex(s))
	if err != nil {
		return bls12381.G1Affine{}, fmt.Errorf("invalid G1 hex: %w", err)
	}
	return G1FromBytes(b)
}

// HexToG2 decodes a hex G2 point, with or without the 0x prefix.
func HexToG2(s string) (bls12381.G2Affine, error) {
	b, err := hex.DecodeString(util.TrimHex(s))
	if err != nil {
		return bls12381.G2Affine{}, fmt.Errorf("invalid G2 hex: %w", err)
	}
	return G2FromBytes(b)
}
