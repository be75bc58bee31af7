package prover

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zknotes/circuits"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/metrics"
	"github.com/vocdoni/zknotes/wire"
)

// Prove builds the full witness of the assignment, checks it against the
// constraint system and proves it. It returns the proof together with the
// public inputs it was proven for.
//
// An assignment with missing values fails with circuits.ErrSynthesisFailure
// and one that does not satisfy the constraints fails with
// circuits.ErrConstraintUnsatisfied, naming the failing class when the
// assignment can diagnose it. No proof is produced in either case.
func (k *Keys) Prove(a *circuits.Assignment) (*wire.Proof, []fr.Element, error) {
	if a == nil || a.Circuit == nil {
		return nil, nil, circuits.MissingField("assignment")
	}
	if len(a.Public) != k.NbPublic() {
		return nil, nil, &circuits.SynthesisError{
			Field:  "public_inputs",
			Reason: fmt.Sprintf("expected %d, got %d", k.NbPublic(), len(a.Public)),
		}
	}
	full, err := frontend.NewWitness(a.Circuit, Curve.ScalarField())
	if err != nil {
		return nil, nil, &circuits.SynthesisError{Field: "witness", Reason: err.Error()}
	}
	if err := k.CCS.IsSolved(full); err != nil {
		return nil, nil, unsatisfied(a, err)
	}
	if err := checkPublic(full, a.Public); err != nil {
		return nil, nil, err
	}

	start := time.Now()
	randMu.RLock()
	proof, err := groth16.Prove(k.CCS, k.PK, full)
	randMu.RUnlock()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate proof: %w", err)
	}
	elapsed := time.Since(start)
	metrics.ProofsGenerated.WithLabelValues(k.Name).Inc()
	metrics.ProveDuration.WithLabelValues(k.Name).Observe(elapsed.Seconds())
	log.Debugw("proof generated", "circuit", k.Name, "took", elapsed.String())

	wp, err := wire.ProofFromGnark(proof)
	if err != nil {
		return nil, nil, err
	}
	return wp, slices.Clone(a.Public), nil
}

func unsatisfied(a *circuits.Assignment, solverErr error) error {
	if a.Diagnose != nil {
		if err := a.Diagnose(); errors.Is(err, circuits.ErrConstraintUnsatisfied) {
			return err
		}
	}
	return &circuits.ConstraintError{Class: circuits.ClassUnknown, Err: solverErr}
}

// checkPublic ensures the natively computed public inputs are the ones set
// in the circuit assignment.
func checkPublic(full witness.Witness, public []fr.Element) error {
	pw, err := full.Public()
	if err != nil {
		return fmt.Errorf("failed to extract public witness: %w", err)
	}
	vec, ok := pw.Vector().(fr.Vector)
	if !ok {
		return fmt.Errorf("unexpected witness vector type %T", pw.Vector())
	}
	if !slices.Equal([]fr.Element(vec), public) {
		return &circuits.SynthesisError{Field: "public_inputs", Reason: "do not match the circuit assignment"}
	}
	return nil
}

// Verify checks a proof against the public inputs. A wrong number of public
// inputs is a *wire.ShapeError; every cryptographic rejection is reported as
// false with a nil error.
func (k *Keys) Verify(proof *wire.Proof, public []fr.Element) (bool, error) {
	return Verify(k.VK, proof, public)
}

// Verify checks a proof against a gnark verifying key.
func Verify(vk groth16.VerifyingKey, proof *wire.Proof, public []fr.Element) (bool, error) {
	if want := vk.NbPublicWitness(); len(public) != want {
		return false, &wire.ShapeError{What: "public inputs", Want: want, Got: len(public)}
	}
	if proof == nil {
		return false, nil
	}
	pw, err := publicWitness(public)
	if err != nil {
		return false, err
	}
	if err := groth16.Verify(proof.Gnark(), vk, pw); err != nil {
		log.Debugw("proof rejected", "error", err)
		metrics.Verifications.WithLabelValues("rejected").Inc()
		return false, nil
	}
	metrics.Verifications.WithLabelValues("accepted").Inc()
	return true, nil
}

func publicWitness(public []fr.Element) (witness.Witness, error) {
	w, err := witness.New(Curve.ScalarField())
	if err != nil {
		return nil, err
	}
	values := make(chan any, len(public))
	for _, v := range public {
		values <- v
	}
	close(values)
	if err := w.Fill(len(public), 0, values); err != nil {
		return nil, fmt.Errorf("failed to fill public witness: %w", err)
	}
	return w, nil
}
