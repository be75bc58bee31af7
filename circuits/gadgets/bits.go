package gadgets

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/math/bits"
)

// MaxBits bounds the decompositions ToBits accepts. A weighted sum of more
// bits could wrap around the 255-bit field and would no longer prove a range.
const MaxBits = 250

// ToBits decomposes v into n boolean witnesses, little endian, constrained so
// that their weighted sum equals v. It proves 0 <= v < 2^n.
func ToBits(api frontend.API, v frontend.Variable, n int) ([]frontend.Variable, error) {
	if n <= 0 || n > MaxBits {
		return nil, fmt.Errorf("invalid decomposition size %d", n)
	}
	return bits.ToBinary(api, v, bits.WithNbDigits(n)), nil
}

// AssertBits asserts that v fits in n bits.
func AssertBits(api frontend.API, v frontend.Variable, n int) error {
	_, err := ToBits(api, v, n)
	return err
}

// AssertInRange asserts lower <= x <= upper by decomposing x - lower and
// upper - x into n bits each. The bounds are expected to fit in n bits.
func AssertInRange(api frontend.API, x, lower, upper frontend.Variable, n int) error {
	if err := AssertBits(api, api.Sub(x, lower), n); err != nil {
		return fmt.Errorf("lower bound: %w", err)
	}
	if err := AssertBits(api, api.Sub(upper, x), n); err != nil {
		return fmt.Errorf("upper bound: %w", err)
	}
	return nil
}
