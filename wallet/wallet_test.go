package wallet

import (
	"context"
	"fmt"
	"math/big"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/zknotes/api"
	"github.com/vocdoni/zknotes/api/client"
	"github.com/vocdoni/zknotes/circuits/transfer"
	"github.com/vocdoni/zknotes/ledger"
	"github.com/vocdoni/zknotes/ledger/rpc"
	"github.com/vocdoni/zknotes/note"
	"github.com/vocdoni/zknotes/prover"
	"github.com/vocdoni/zknotes/service"
	"github.com/vocdoni/zknotes/state"
	"github.com/vocdoni/zknotes/storage"
	"github.com/vocdoni/zknotes/util"
	"github.com/vocdoni/zknotes/verifier"
	"github.com/vocdoni/zknotes/wire"
)

const testTag = 7

type testEnv struct {
	ledger  *rpc.Client
	state   *state.State
	monitor *service.LedgerMonitor
	indexer *client.HTTPclient
}

// newTestEnv runs a ledger bound to vk and an indexer following it.
func newTestEnv(t *testing.T, vk *wire.VerifyingKey) *testEnv {
	t.Helper()
	ctx := context.Background()
	lstg := storage.New(memdb.New())
	t.Cleanup(lstg.Close)
	l, err := ledger.New(lstg, verifier.NewRegistry(lstg))
	if err != nil {
		t.Fatal(err)
	}
	srv, err := rpc.NewServer(l)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = srv.Stop(ctx) })
	cli := srv.InProc()
	t.Cleanup(cli.Close)
	id, err := cli.RegisterCircuit(ctx, vk)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cli.Init(ctx, id); err != nil {
		t.Fatal(err)
	}

	istg := storage.New(memdb.New())
	t.Cleanup(istg.Close)
	st, err := state.New(istg)
	if err != nil {
		t.Fatal(err)
	}
	httpSrv := httptest.NewServer(api.NewHandler(st).Router())
	t.Cleanup(httpSrv.Close)
	idx, err := client.New(httpSrv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{
		ledger:  cli,
		state:   st,
		monitor: service.NewLedgerMonitor(cli, st, time.Hour),
		indexer: idx,
	}
}

func (e *testEnv) wallet(keys *prover.Keys) *Wallet {
	return New(note.NewSecretKey(), testTag, keys, e.ledger, e.indexer)
}

// fakeVerifyingKey is a well formed key with the transfer input count that
// no proof will ever satisfy.
func fakeVerifyingKey() *wire.VerifyingKey {
	_, _, g1, g2 := bls12381.Generators()
	vk := &wire.VerifyingKey{Alpha: g1, Beta: g2, Gamma: g2, Delta: g2}
	vk.IC = make([]bls12381.G1Affine, 5)
	for i := range vk.IC {
		vk.IC[i].ScalarMultiplication(&g1, big.NewInt(int64(i+5)))
	}
	return vk
}

func TestDepositAndSync(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	env := newTestEnv(t, fakeVerifyingKey())
	w := env.wallet(nil)

	_, _, err := w.Deposit(ctx, 0)
	c.Assert(err, qt.ErrorIs, ErrInvalidValue)

	e, res, err := w.Deposit(ctx, 100)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Indexes, qt.DeepEquals, []uint64{0})
	c.Assert(e.Indexed, qt.IsFalse)
	cm := e.Note.Commitment()
	c.Assert(e.Commitment.Equal(&cm), qt.IsTrue)
	_, _, err = w.Deposit(ctx, 50)
	c.Assert(err, qt.IsNil)
	c.Assert(w.Balance(), qt.Equals, uint64(150))

	// the indexer has not polled yet
	n, err := w.Sync(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)

	c.Assert(env.monitor.Poll(ctx), qt.IsNil)
	n, err = w.Sync(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 2)
	notes := w.Notes()
	c.Assert(notes, qt.HasLen, 2)
	c.Assert(notes[0].Index, qt.Equals, uint64(0))
	c.Assert(notes[1].Index, qt.Equals, uint64(1))
	c.Assert(notes[1].Indexed, qt.IsTrue)
	c.Assert(notes[1].Value, qt.Equals, uint64(50))

	n, err = w.Sync(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)
}

func TestReceive(t *testing.T) {
	c := qt.New(t)
	w := New(note.NewSecretKey(), testTag, nil, nil, nil)
	c.Assert(w.Receive(note.New(5, testTag, util.RandomFieldElement())), qt.ErrorIs, ErrForeignNote)
	c.Assert(w.Receive(nil), qt.ErrorIs, ErrForeignNote)
	n := note.New(5, testTag, w.Owner())
	c.Assert(w.Receive(n), qt.IsNil)
	c.Assert(w.Receive(n), qt.IsNil)
	c.Assert(w.Notes(), qt.HasLen, 1)
	c.Assert(w.Balance(), qt.Equals, uint64(5))
}

type failingLedger struct{ err error }

func (f failingLedger) Deposit(context.Context, fr.Element, *fr.Element) (*rpc.TxResult, error) {
	return nil, f.err
}

func (f failingLedger) Transfer(context.Context, *ledger.TransferTx) (*rpc.TxResult, error) {
	return nil, f.err
}

func TestLedgerFailureKeepsNotes(t *testing.T) {
	c := qt.New(t)
	down := fmt.Errorf("%w: connection refused", rpc.ErrCollaborator)
	w := New(note.NewSecretKey(), testTag, nil, failingLedger{down}, nil)
	_, _, err := w.Deposit(context.Background(), 10)
	c.Assert(err, qt.ErrorIs, rpc.ErrCollaborator)
	c.Assert(w.Notes(), qt.HasLen, 0)
	c.Assert(w.Balance(), qt.Equals, uint64(0))
}

func TestTransferSelection(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	env := newTestEnv(t, fakeVerifyingKey())
	w := env.wallet(nil)

	_, err := w.Transfer(ctx, util.RandomFieldElement(), 0)
	c.Assert(err, qt.ErrorIs, ErrInvalidValue)

	_, _, err = w.Deposit(ctx, 10)
	c.Assert(err, qt.IsNil)
	// not indexed yet
	_, err = w.Transfer(ctx, util.RandomFieldElement(), 5)
	c.Assert(err, qt.ErrorIs, ErrInsufficientFunds)

	c.Assert(env.monitor.Poll(ctx), qt.IsNil)
	_, err = w.Sync(ctx)
	c.Assert(err, qt.IsNil)
	_, err = w.Transfer(ctx, util.RandomFieldElement(), 11)
	c.Assert(err, qt.ErrorIs, ErrInsufficientFunds)

	for _, v := range []uint64{30, 12, 100} {
		_, _, err = w.Deposit(ctx, v)
		c.Assert(err, qt.IsNil)
	}
	c.Assert(env.monitor.Poll(ctx), qt.IsNil)
	_, err = w.Sync(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(w.selectNote(11).Value, qt.Equals, uint64(12))
	c.Assert(w.selectNote(31).Value, qt.Equals, uint64(100))
	c.Assert(w.selectNote(101), qt.IsNil)
}

// lyingIndexer serves a root its leaves do not hash to.
type lyingIndexer struct {
	Indexer
}

func (lyingIndexer) Root(context.Context) (fr.Element, error) {
	return util.RandomFieldElement(), nil
}

func TestTransferIndexerMismatch(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	env := newTestEnv(t, fakeVerifyingKey())
	w := New(note.NewSecretKey(), testTag, nil, env.ledger, lyingIndexer{env.indexer})
	_, _, err := w.Deposit(ctx, 10)
	c.Assert(err, qt.IsNil)
	c.Assert(env.monitor.Poll(ctx), qt.IsNil)
	_, err = w.Sync(ctx)
	c.Assert(err, qt.IsNil)

	_, err = w.Transfer(ctx, util.RandomFieldElement(), 5)
	c.Assert(err, qt.ErrorIs, ErrIndexerMismatch)
	c.Assert(w.Notes()[0].Spent, qt.IsFalse)
	c.Assert(w.Balance(), qt.Equals, uint64(10))
}

func TestTransfer(t *testing.T) {
	if os.Getenv("RUN_CIRCUIT_TESTS") == "" || os.Getenv("RUN_CIRCUIT_TESTS") == "false" {
		t.Skip("skipping circuit tests...")
	}
	c := qt.New(t)
	ctx := context.Background()
	keys, err := prover.InsecureDeterministicSetup(transfer.Definition, []byte("wallet test"))
	c.Assert(err, qt.IsNil)
	env := newTestEnv(t, keys.VerifyingKey())
	aliceSK := note.NewSecretKey()
	alice, bob := New(aliceSK, testTag, keys, env.ledger, env.indexer), env.wallet(keys)

	_, _, err = alice.Deposit(ctx, 1000)
	c.Assert(err, qt.IsNil)
	c.Assert(env.monitor.Poll(ctx), qt.IsNil)
	_, err = alice.Sync(ctx)
	c.Assert(err, qt.IsNil)

	res, err := alice.Transfer(ctx, bob.Owner(), 600)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Indexes, qt.DeepEquals, []uint64{1, 2})
	c.Assert(res.Sent.Value, qt.Equals, uint64(600))
	c.Assert(res.Change.Value, qt.Equals, uint64(400))
	c.Assert(alice.Balance(), qt.Equals, uint64(400))
	c.Assert(alice.Notes()[0].Spent, qt.IsTrue)

	c.Assert(bob.Receive(res.Sent), qt.IsNil)
	c.Assert(env.monitor.Poll(ctx), qt.IsNil)
	n, err := bob.Sync(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 1)
	c.Assert(bob.Notes()[0].Index, qt.Equals, uint64(1))

	// bob pays alice back from the received note
	_, err = bob.Transfer(ctx, alice.Owner(), 250)
	c.Assert(err, qt.IsNil)
	c.Assert(bob.Balance(), qt.Equals, uint64(350))
	c.Assert(env.monitor.Poll(ctx), qt.IsNil)
	c.Assert(env.state.Len(), qt.Equals, uint64(5))

	// a rejected transfer leaves the notes untouched
	rejecting := New(aliceSK, testTag, keys, failingLedger{ledger.ErrNullifierSpent}, env.indexer)
	c.Assert(rejecting.Receive(res.Change), qt.IsNil)
	_, err = rejecting.Sync(ctx)
	c.Assert(err, qt.IsNil)
	_, err = rejecting.Transfer(ctx, bob.Owner(), 100)
	c.Assert(err, qt.ErrorIs, ledger.ErrNullifierSpent)
	c.Assert(rejecting.Notes(), qt.HasLen, 1)
	c.Assert(rejecting.Notes()[0].Spent, qt.IsFalse)
	c.Assert(rejecting.Balance(), qt.Equals, uint64(400))
}
