package wire

import (
	"errors"
	"fmt"
)

// ErrShape is returned, wrapped in a *ShapeError, when a decoded value does
// not have the fixed size of its encoding. It is distinct from a failed
// cryptographic check: a proof of the right shape that does not verify is
// reported as a false result, never as ErrShape.
var ErrShape = errors.New("serialization shape mismatch")

// ShapeError describes a size mismatch of an encoded value.
type ShapeError struct {
	What string
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", e.What, e.Want, e.Got)
}

func (e *ShapeError) Unwrap() error {
	return ErrShape
}

func shapeErr(what string, want, got int) error {
	return &ShapeError{What: what, Want: want, Got: got}
}
