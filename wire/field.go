// Package wire defines the byte and hex encodings shared with verifiers that
// do not use this module: curve points in the uncompressed zcash layout (96
// bytes in G1, 192 bytes in G2 with the c1 coefficient first) and scalar
// field elements as 32 bytes big-endian.
//
// The big-endian scalar layout is the single byte-order boundary of the
// system. Verifiers built on little-endian scalar encodings must reverse the
// bytes once on each side; FrToLittleEndian and FrFromLittleEndian do that
// for them.
package wire

import (
	"encoding/hex"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/vocdoni/zknotes/util"
)

const (
	// FrSize is the size of an encoded scalar field element.
	FrSize = fr.Bytes
	// FrHexSize is the number of hex characters of an encoded field element.
	FrHexSize = 2 * FrSize
)

// FrToBytes returns the canonical big-endian encoding of e.
func FrToBytes(e fr.Element) [FrSize]byte {
	var b [FrSize]byte
	fr.BigEndian.PutElement(&b, e)
	return b
}

// FrFromBytes decodes a 32 byte big-endian field element. Values at or above
// the modulus are rejected.
func FrFromBytes(b []byte) (fr.Element, error) {
	if len(b) != FrSize {
		return fr.Element{}, shapeErr("field element bytes", FrSize, len(b))
	}
	e, err := fr.BigEndian.Element((*[FrSize]byte)(b))
	if err != nil {
		return fr.Element{}, fmt.Errorf("non canonical field element: %w", err)
	}
	return e, nil
}

// FrToLittleEndian returns the little-endian encoding of e, the byte reversal
// of FrToBytes.
func FrToLittleEndian(e fr.Element) [FrSize]byte {
	var b [FrSize]byte
	fr.LittleEndian.PutElement(&b, e)
	return b
}

// FrFromLittleEndian decodes a 32 byte little-endian field element.
func FrFromLittleEndian(b []byte) (fr.Element, error) {
	if len(b) != FrSize {
		return fr.Element{}, shapeErr("field element bytes", FrSize, len(b))
	}
	e, err := fr.LittleEndian.Element((*[FrSize]byte)(b))
	if err != nil {
		return fr.Element{}, fmt.Errorf("non canonical field element: %w", err)
	}
	return e, nil
}

// FrToHex returns the 0x prefixed 64 character big-endian hex encoding of e,
// as served by the indexer API.
func FrToHex(e fr.Element) string {
	return "0x" + FrToRawHex(e)
}

// FrToRawHex returns the 64 character big-endian hex encoding of e without
// prefix, as used for proof public inputs.
func FrToRawHex(e fr.Element) string {
	b := FrToBytes(e)
	return hex.EncodeToString(b[:])
}

// HexToFr decodes a big-endian hex field element with or without the 0x
// prefix. Shorter inputs are left padded with zeros, longer ones are a shape
// error.
func HexToFr(s string) (fr.Element, error) {
	s = util.TrimHex(s)
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fr.Element{}, fmt.Errorf("invalid field element hex: %w", err)
	}
	if len(b) > FrSize {
		return fr.Element{}, shapeErr("field element bytes", FrSize, len(b))
	}
	var buf [FrSize]byte
	copy(buf[FrSize-len(b):], b)
	return FrFromBytes(buf[:])
}

// EncodeFrs encodes a vector of field elements as unprefixed hex strings,
// preserving their order.
func EncodeFrs(in []fr.Element) []string {
	out := make([]string, len(in))
	for i := range in {
		out[i] = FrToRawHex(in[i])
	}
	return out
}

// DecodeFrs decodes a vector of hex field elements, preserving their order.
func DecodeFrs(in []string) ([]fr.Element, error) {
	out := make([]fr.Element, len(in))
	for i, s := range in {
		e, err := HexToFr(s)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = e
	}
	return out, nil
}
