// Package verifier checks Groth16 proofs from their cross-boundary encoding
// alone, without gnark's proving machinery, and keeps the registry of
// verifying keys the ledger accepts proofs for.
package verifier

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/metrics"
	"github.com/vocdoni/zknotes/wire"
)

// VerifyProof checks the Groth16 equation
//
//	e(A, B) · e(-L, γ) · e(-C, δ) · e(-α, β) == 1
//
// where L = IC[0] + Σ IC[i+1]·public[i]. A wrong number of public inputs is
// a *wire.ShapeError; any other failure is reported as false.
func VerifyProof(vk *wire.VerifyingKey, proof *wire.Proof, public []fr.Element) (bool, error) {
	if vk == nil || len(vk.IC) == 0 {
		return false, fmt.Errorf("invalid verifying key")
	}
	if len(public) != vk.NbPublic() {
		return false, &wire.ShapeError{What: "public inputs", Want: vk.NbPublic(), Got: len(public)}
	}
	if proof == nil {
		return false, nil
	}
	l, err := linearCombination(vk.IC, public)
	if err != nil {
		log.Debugw("linear combination failed", "error", err)
		return false, nil
	}
	var negL, negC, negAlpha bls12381.G1Affine
	negL.Neg(&l)
	negC.Neg(&proof.C)
	negAlpha.Neg(&vk.Alpha)
	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{proof.A, negL, negC, negAlpha},
		[]bls12381.G2Affine{proof.B, vk.Gamma, vk.Delta, vk.Beta},
	)
	if err != nil {
		log.Debugw("pairing check failed", "error", err)
		ok = false
	}
	if ok {
		metrics.Verifications.WithLabelValues("accepted").Inc()
	} else {
		metrics.Verifications.WithLabelValues("rejected").Inc()
	}
	return ok, nil
}

func linearCombination(ic []bls12381.G1Affine, public []fr.Element) (bls12381.G1Affine, error) {
	var acc bls12381.G1Jac
	acc.FromAffine(&ic[0])
	if len(public) > 0 {
		var sum bls12381.G1Jac
		if _, err := sum.MultiExp(ic[1:], public, ecc.MultiExpConfig{}); err != nil {
			return bls12381.G1Affine{}, err
		}
		acc.AddAssign(&sum)
	}
	var out bls12381.G1Affine
	out.FromJacobian(&acc)
	return out, nil
}
