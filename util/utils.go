package util

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

// reader is captured at init. The deterministic setup swaps
// crypto/rand.Reader for a seeded stream while it runs, and secret keys or
// nonces must never be drawn from it.
var reader = rand.Reader

// RandomBytes generates a random byte slice of length n.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		panic(err)
	}
	return b
}

// RandomFieldElement returns a uniformly random element of the BLS12-381
// scalar field.
func RandomFieldElement() fr.Element {
	n, err := rand.Int(reader, fr.Modulus())
	if err != nil {
		panic(err)
	}
	var e fr.Element
	e.SetBigInt(n)
	return e
}

// TrimHex trims the '0x' prefix from a hex string.
func TrimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// FrToBig converts a field element into its canonical big.Int form, the
// representation gnark expects for witness assignments.
func FrToBig(e fr.Element) *big.Int {
	return e.BigInt(new(big.Int))
}

// PrettyHex returns a short hex representation of a field element, useful
// for logs.
func PrettyHex(e fr.Element) string {
	b := e.Bytes()
	return fmt.Sprintf("%x…%x", b[:4], b[28:])
}
