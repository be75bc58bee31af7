package ledger

import (
	"math/big"
	"os"
	"testing"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/zknotes/circuits/transfer"
	"github.com/vocdoni/zknotes/note"
	"github.com/vocdoni/zknotes/prover"
	"github.com/vocdoni/zknotes/state"
	"github.com/vocdoni/zknotes/storage"
	"github.com/vocdoni/zknotes/util"
	"github.com/vocdoni/zknotes/verifier"
	"github.com/vocdoni/zknotes/wire"
)

// testVerifyingKey returns a well formed key no proof verifies against.
func testVerifyingKey(nbPublic int) *wire.VerifyingKey {
	_, _, g1, g2 := bls12381.Generators()
	vk := &wire.VerifyingKey{Alpha: g1, Beta: g2, Gamma: g2, Delta: g2}
	vk.IC = make([]bls12381.G1Affine, nbPublic+1)
	for i := range vk.IC {
		vk.IC[i].ScalarMultiplication(&g1, big.NewInt(int64(i+2)))
	}
	return vk
}

func testProof() *wire.Proof {
	_, _, g1, g2 := bls12381.Generators()
	return &wire.Proof{A: g1, B: g2, C: g1}
}

func newTestLedger(t *testing.T) (*Ledger, *storage.Storage, wire.CircuitID) {
	t.Helper()
	stg := storage.New(memdb.New())
	t.Cleanup(stg.Close)
	reg := verifier.NewRegistry(stg)
	id, err := reg.Register(testVerifyingKey(4))
	if err != nil {
		t.Fatal(err)
	}
	l, err := New(stg, reg)
	if err != nil {
		t.Fatal(err)
	}
	return l, stg, id
}

func TestInit(t *testing.T) {
	c := qt.New(t)
	l, _, id := newTestLedger(t)

	_, err := l.Deposit(util.RandomFieldElement(), nil)
	c.Assert(err, qt.ErrorIs, ErrNotInitialized)
	_, err = l.CircuitID()
	c.Assert(err, qt.ErrorIs, ErrNotInitialized)
	c.Assert(l.Latest(), qt.Equals, uint64(0))

	r, err := l.Init(id)
	c.Assert(err, qt.IsNil)
	c.Assert(r.Ledger, qt.Equals, uint64(1))
	c.Assert(r.TxID, qt.Not(qt.Equals), "")
	empty := state.Zero(state.Depth)
	c.Assert(r.Root.Equal(&empty), qt.IsTrue)
	c.Assert(l.IsKnownRoot(empty), qt.IsTrue)
	got, err := l.CircuitID()
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, id)

	_, err = l.Init(id)
	c.Assert(err, qt.ErrorIs, ErrAlreadyInitialized)

	// init emits no event
	events, _, err := l.Events(0, "", 0)
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 0)
}

func TestInitRejectsCircuit(t *testing.T) {
	c := qt.New(t)
	l, _, _ := newTestLedger(t)

	var unknown wire.CircuitID
	unknown[0] = 1
	_, err := l.Init(unknown)
	c.Assert(err, qt.ErrorIs, verifier.ErrNotRegistered)

	id, err := l.Registry().Register(testVerifyingKey(2))
	c.Assert(err, qt.IsNil)
	_, err = l.Init(id)
	c.Assert(err, qt.ErrorMatches, ".*public inputs.*")
	c.Assert(l.Latest(), qt.Equals, uint64(0))
}

func TestDeposit(t *testing.T) {
	c := qt.New(t)
	l, _, id := newTestLedger(t)
	_, err := l.Init(id)
	c.Assert(err, qt.IsNil)

	_, err = l.Deposit(fr.Element{}, nil)
	c.Assert(err, qt.ErrorIs, ErrZeroCommitment)

	var leaves []fr.Element
	for i := range 3 {
		cm := util.RandomFieldElement()
		leaves = append(leaves, cm)
		r, err := l.Deposit(cm, nil)
		c.Assert(err, qt.IsNil)
		c.Assert(r.Indexes, qt.DeepEquals, []uint64{uint64(i)})
		c.Assert(r.Ledger, qt.Equals, uint64(i+2))
		want, err := state.ComputeRoot(leaves)
		c.Assert(err, qt.IsNil)
		c.Assert(r.Root.Equal(&want), qt.IsTrue)
	}

	// a wrong submitted root leaves the ledger untouched
	before := l.Root()
	wrong := util.RandomFieldElement()
	_, err = l.Deposit(util.RandomFieldElement(), &wrong)
	c.Assert(err, qt.ErrorIs, ErrRootMismatch)
	after := l.Root()
	c.Assert(after.Equal(&before), qt.IsTrue)
	c.Assert(l.Latest(), qt.Equals, uint64(4))

	// the right one is accepted
	cm := util.RandomFieldElement()
	expected, err := state.ComputeRoot(append(leaves, cm))
	c.Assert(err, qt.IsNil)
	r, err := l.Deposit(cm, &expected)
	c.Assert(err, qt.IsNil)
	c.Assert(r.Root.Equal(&expected), qt.IsTrue)
}

func TestTransferRejections(t *testing.T) {
	c := qt.New(t)
	l, _, id := newTestLedger(t)

	tx := &TransferTx{
		Proof:          testProof(),
		OldRoot:        state.Zero(state.Depth),
		Nullifier:      util.RandomFieldElement(),
		OutCommitments: [2]fr.Element{util.RandomFieldElement(), util.RandomFieldElement()},
	}
	_, err := l.Transfer(tx)
	c.Assert(err, qt.ErrorIs, ErrNotInitialized)
	_, err = l.Init(id)
	c.Assert(err, qt.IsNil)

	_, err = l.Transfer(&TransferTx{})
	c.Assert(err, qt.ErrorIs, ErrInvalidProof)

	unknown := *tx
	unknown.OldRoot = util.RandomFieldElement()
	_, err = l.Transfer(&unknown)
	c.Assert(err, qt.ErrorIs, ErrUnknownRoot)

	_, err = l.Transfer(tx)
	c.Assert(err, qt.ErrorIs, ErrInvalidProof)
	spent, err := l.IsSpent(tx.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(spent, qt.IsFalse)
	c.Assert(l.Latest(), qt.Equals, uint64(1))
}

func TestRootHistory(t *testing.T) {
	c := qt.New(t)
	l, _, id := newTestLedger(t)
	_, err := l.Init(id)
	c.Assert(err, qt.IsNil)
	empty := state.Zero(state.Depth)

	first, err := l.Deposit(util.RandomFieldElement(), nil)
	c.Assert(err, qt.IsNil)
	for range RootHistorySize - 2 {
		_, err := l.Deposit(util.RandomFieldElement(), nil)
		c.Assert(err, qt.IsNil)
	}
	// the history is full: empty root, first root and 98 more
	c.Assert(l.IsKnownRoot(empty), qt.IsTrue)
	_, err = l.Deposit(util.RandomFieldElement(), nil)
	c.Assert(err, qt.IsNil)
	c.Assert(l.IsKnownRoot(empty), qt.IsFalse)
	c.Assert(l.IsKnownRoot(first.Root), qt.IsTrue)
	c.Assert(l.IsKnownRoot(l.Root()), qt.IsTrue)
}

func TestEvents(t *testing.T) {
	c := qt.New(t)
	l, _, id := newTestLedger(t)
	_, err := l.Init(id)
	c.Assert(err, qt.IsNil)

	var cms []fr.Element
	for range 5 {
		cm := util.RandomFieldElement()
		cms = append(cms, cm)
		_, err := l.Deposit(cm, nil)
		c.Assert(err, qt.IsNil)
	}

	page, cursor, err := l.Events(0, "", 2)
	c.Assert(err, qt.IsNil)
	c.Assert(page, qt.HasLen, 2)
	c.Assert(cursor, qt.Equals, "1")
	c.Assert(page[0].Kind, qt.Equals, storage.EventDeposit)
	c.Assert(page[0].Ledger, qt.Equals, uint64(2))
	b := wire.FrToBytes(cms[0])
	c.Assert([]byte(page[0].Commitments[0]), qt.DeepEquals, b[:])
	c.Assert(page[0].Nullifier, qt.HasLen, 0)

	page, cursor, err = l.Events(0, cursor, 10)
	c.Assert(err, qt.IsNil)
	c.Assert(page, qt.HasLen, 3)
	c.Assert(cursor, qt.Equals, "4")
	c.Assert(page[0].Seq, qt.Equals, uint64(2))

	// an exhausted cursor is echoed back
	page, next, err := l.Events(0, cursor, 10)
	c.Assert(err, qt.IsNil)
	c.Assert(page, qt.HasLen, 0)
	c.Assert(next, qt.Equals, cursor)

	// without cursor, start filters by ledger height
	page, _, err = l.Events(5, "", 0)
	c.Assert(err, qt.IsNil)
	c.Assert(page, qt.HasLen, 2)
	c.Assert(page[0].Ledger, qt.Equals, uint64(5))

	_, _, err = l.Events(0, "not-a-cursor", 0)
	c.Assert(err, qt.ErrorIs, ErrInvalidCursor)
}

func TestReopen(t *testing.T) {
	c := qt.New(t)
	l, stg, id := newTestLedger(t)
	_, err := l.Init(id)
	c.Assert(err, qt.IsNil)
	for range 3 {
		_, err := l.Deposit(util.RandomFieldElement(), nil)
		c.Assert(err, qt.IsNil)
	}
	root := l.Root()

	reopened, err := New(stg, l.Registry())
	c.Assert(err, qt.IsNil)
	got := reopened.Root()
	c.Assert(got.Equal(&root), qt.IsTrue)
	c.Assert(reopened.Latest(), qt.Equals, uint64(4))
	c.Assert(reopened.IsKnownRoot(root), qt.IsTrue)
	_, err = reopened.Init(id)
	c.Assert(err, qt.ErrorIs, ErrAlreadyInitialized)
	r, err := reopened.Deposit(util.RandomFieldElement(), nil)
	c.Assert(err, qt.IsNil)
	c.Assert(r.Indexes, qt.DeepEquals, []uint64{3})
}

func TestTransferAccepted(t *testing.T) {
	if os.Getenv("RUN_CIRCUIT_TESTS") == "" || os.Getenv("RUN_CIRCUIT_TESTS") == "false" {
		t.Skip("skipping circuit tests...")
	}
	c := qt.New(t)
	keys, err := prover.InsecureDeterministicSetup(transfer.Definition, []byte("ledger test"))
	c.Assert(err, qt.IsNil)

	stg := storage.New(memdb.New())
	defer stg.Close()
	reg := verifier.NewRegistry(stg)
	id, err := reg.Register(keys.VerifyingKey())
	c.Assert(err, qt.IsNil)
	l, err := New(stg, reg)
	c.Assert(err, qt.IsNil)
	_, err = l.Init(id)
	c.Assert(err, qt.IsNil)

	sk := note.NewSecretKey()
	in := note.New(1000, 1, sk.OwnerHash())
	dep, err := l.Deposit(in.Commitment(), nil)
	c.Assert(err, qt.IsNil)

	tree := state.NewTree()
	_, err = tree.Insert(in.Commitment())
	c.Assert(err, qt.IsNil)
	path, err := tree.Path(dep.Indexes[0])
	c.Assert(err, qt.IsNil)
	recipient := note.NewSecretKey()
	w := &transfer.Witness{
		SecretKey: &sk,
		In:        in,
		Path:      path,
		Out: [2]*note.Note{
			note.New(600, 1, recipient.OwnerHash()),
			note.New(400, 1, sk.OwnerHash()),
		},
	}
	a, err := w.Assign()
	c.Assert(err, qt.IsNil)
	proof, public, err := keys.Prove(a)
	c.Assert(err, qt.IsNil)
	pi, err := transfer.PublicInputsFromSlice(public)
	c.Assert(err, qt.IsNil)

	tx := &TransferTx{
		Proof:          proof,
		OldRoot:        pi.OldRoot,
		Nullifier:      pi.Nullifier,
		OutCommitments: [2]fr.Element{pi.OutCommitment0, pi.OutCommitment1},
	}
	r, err := l.Transfer(tx)
	c.Assert(err, qt.IsNil)
	c.Assert(r.Indexes, qt.DeepEquals, []uint64{1, 2})
	spent, err := l.IsSpent(pi.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(spent, qt.IsTrue)

	events, _, err := l.Events(0, "", 0)
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 2)
	c.Assert(events[1].Kind, qt.Equals, storage.EventTransfer)
	c.Assert(events[1].Commitments, qt.HasLen, 2)
	c.Assert(events[1].TxID, qt.Equals, r.TxID)

	// replaying the same proof is a double spend
	_, err = l.Transfer(tx)
	c.Assert(err, qt.ErrorIs, ErrNullifierSpent)
	c.Assert(l.Latest(), qt.Equals, uint64(3))
}
