package circuits

import (
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark/frontend"
)

// Definition describes a circuit topology: the placeholder used to compile
// it and the number of public inputs its verifying key expects.
type Definition struct {
	Name        string
	NbPublic    int
	Placeholder func() frontend.Circuit
}

// Assignment is a circuit with every variable set, together with its public
// inputs computed natively in declaration order.
type Assignment struct {
	Circuit frontend.Circuit
	Public  []fr.Element
	// Diagnose, if set, evaluates the constraints natively and returns a
	// ConstraintError naming the first failing class.
	Diagnose func() error
}
