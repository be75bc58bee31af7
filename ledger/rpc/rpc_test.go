package rpc

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/zknotes/ledger"
	"github.com/vocdoni/zknotes/state"
	"github.com/vocdoni/zknotes/storage"
	"github.com/vocdoni/zknotes/util"
	"github.com/vocdoni/zknotes/verifier"
	"github.com/vocdoni/zknotes/wire"
)

func testVerifyingKey(nbPublic int) *wire.VerifyingKey {
	_, _, g1, g2 := bls12381.Generators()
	vk := &wire.VerifyingKey{Alpha: g1, Beta: g2, Gamma: g2, Delta: g2}
	vk.IC = make([]bls12381.G1Affine, nbPublic+1)
	for i := range vk.IC {
		vk.IC[i].ScalarMultiplication(&g1, big.NewInt(int64(i+3)))
	}
	return vk
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	stg := storage.New(memdb.New())
	t.Cleanup(stg.Close)
	l, err := ledger.New(stg, verifier.NewRegistry(stg))
	if err != nil {
		t.Fatal(err)
	}
	srv, err := NewServer(l)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

func TestLedgerMethods(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	cli := newTestServer(t).InProc()
	defer cli.Close()

	latest, err := cli.LatestLedger(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(latest, qt.Equals, uint64(0))

	_, err = cli.Deposit(ctx, util.RandomFieldElement(), nil)
	c.Assert(err, qt.ErrorIs, ledger.ErrNotInitialized)
	c.Assert(errors.Is(err, ErrCollaborator), qt.IsFalse)

	vk := testVerifyingKey(4)
	id, err := cli.RegisterCircuit(ctx, vk)
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, vk.CircuitID())
	_, err = cli.RegisterCircuit(ctx, vk)
	c.Assert(err, qt.ErrorIs, verifier.ErrAlreadyRegistered)

	res, err := cli.Init(ctx, id)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Ledger, qt.Equals, uint64(1))
	c.Assert(res.TxID, qt.HasLen, 36)
	_, err = cli.Init(ctx, id)
	c.Assert(err, qt.ErrorIs, ledger.ErrAlreadyInitialized)

	cm := util.RandomFieldElement()
	res, err = cli.Deposit(ctx, cm, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Indexes, qt.DeepEquals, []uint64{0})
	want, err := state.ComputeRoot([]fr.Element{cm})
	c.Assert(err, qt.IsNil)
	c.Assert(res.Root, qt.Equals, wire.FrToRawHex(want))

	_, err = cli.Deposit(ctx, fr.Element{}, nil)
	c.Assert(err, qt.ErrorIs, ledger.ErrZeroCommitment)
	wrong := util.RandomFieldElement()
	_, err = cli.Deposit(ctx, util.RandomFieldElement(), &wrong)
	c.Assert(err, qt.ErrorIs, ledger.ErrRootMismatch)

	page, err := cli.GetEvents(ctx, 0, "", 10)
	c.Assert(err, qt.IsNil)
	c.Assert(page.Events, qt.HasLen, 1)
	c.Assert(page.LatestLedger, qt.Equals, uint64(2))
	c.Assert(page.Cursor, qt.Equals, "0")
	c.Assert(page.Events[0].TxID, qt.Equals, res.TxID)
	got, err := wire.FrFromBytes(page.Events[0].Commitments[0])
	c.Assert(err, qt.IsNil)
	c.Assert(got.Equal(&cm), qt.IsTrue)

	page, err = cli.GetEvents(ctx, 0, page.Cursor, 10)
	c.Assert(err, qt.IsNil)
	c.Assert(page.Events, qt.HasLen, 0)
	_, err = cli.GetEvents(ctx, 0, "bad", 10)
	c.Assert(err, qt.ErrorIs, ledger.ErrInvalidCursor)
}

func TestTransferAndVerify(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	cli := newTestServer(t).InProc()
	defer cli.Close()

	id, err := cli.RegisterCircuit(ctx, testVerifyingKey(4))
	c.Assert(err, qt.IsNil)
	_, err = cli.Init(ctx, id)
	c.Assert(err, qt.IsNil)

	_, _, g1, g2 := bls12381.Generators()
	proof := &wire.Proof{A: g1, B: g2, C: g1}
	public := []fr.Element{state.Zero(state.Depth), util.RandomFieldElement(), util.RandomFieldElement(), util.RandomFieldElement()}

	ok, err := cli.Verify(ctx, id, proof, public)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
	_, err = cli.Verify(ctx, id, proof, public[:3])
	c.Assert(err, qt.ErrorIs, wire.ErrShape)
	_, err = cli.Verify(ctx, wire.CircuitID{1}, proof, public)
	c.Assert(err, qt.ErrorIs, verifier.ErrNotRegistered)

	tx := &ledger.TransferTx{
		Proof:          proof,
		OldRoot:        public[0],
		Nullifier:      public[1],
		OutCommitments: [2]fr.Element{public[2], public[3]},
	}
	_, err = cli.Transfer(ctx, tx)
	c.Assert(err, qt.ErrorIs, ledger.ErrInvalidProof)
	tx.OldRoot = util.RandomFieldElement()
	_, err = cli.Transfer(ctx, tx)
	c.Assert(err, qt.ErrorIs, ledger.ErrUnknownRoot)
}

func TestHTTPServer(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	srv := newTestServer(t)
	c.Assert(srv.URL(), qt.Equals, "")
	c.Assert(srv.Start("127.0.0.1", 0), qt.IsNil)

	cli, err := Dial(ctx, srv.URL())
	c.Assert(err, qt.IsNil)
	defer cli.Close()
	id, err := cli.RegisterCircuit(ctx, testVerifyingKey(4))
	c.Assert(err, qt.IsNil)
	_, err = cli.Init(ctx, id)
	c.Assert(err, qt.IsNil)
	latest, err := cli.LatestLedger(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(latest, qt.Equals, uint64(1))

	// a node that does not answer is a collaborator failure
	dead, err := Dial(ctx, "http://127.0.0.1:1")
	c.Assert(err, qt.IsNil)
	defer dead.Close()
	_, err = dead.LatestLedger(ctx)
	c.Assert(err, qt.ErrorIs, ErrCollaborator)
}

func TestPoolFailover(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	pool := NewPool()
	_, err := pool.LatestLedger(ctx)
	c.Assert(err, qt.ErrorIs, ErrCollaborator)

	broken := newTestServer(t).InProc()
	broken.Close()
	healthy := newTestServer(t).InProc()
	pool.AddClient("broken", broken)
	pool.AddClient("healthy", healthy)
	defer pool.Close()
	c.Assert(pool.NumberOfEndpoints(true), qt.Equals, 2)

	for range 3 {
		latest, err := pool.LatestLedger(ctx)
		c.Assert(err, qt.IsNil)
		c.Assert(latest, qt.Equals, uint64(0))
	}
	c.Assert(pool.NumberOfEndpoints(true), qt.Equals, 1)
	c.Assert(pool.NumberOfEndpoints(false), qt.Equals, 2)

	// ledger rejections are returned as is, without failing over
	_, err = pool.Deposit(ctx, util.RandomFieldElement(), nil)
	c.Assert(err, qt.ErrorIs, ledger.ErrNotInitialized)
	c.Assert(pool.NumberOfEndpoints(true), qt.Equals, 1)

	// once every endpoint failed the pool starts over
	pool.DisableEndpoint("healthy")
	c.Assert(pool.NumberOfEndpoints(true), qt.Equals, 0)
	latest, err := pool.LatestLedger(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(latest, qt.Equals, uint64(0))
}

func TestErrorCodes(t *testing.T) {
	c := qt.New(t)
	seen := map[int]bool{}
	for _, ec := range errorCodes {
		c.Assert(seen[ec.code], qt.IsFalse, qt.Commentf("duplicate code %d", ec.code))
		seen[ec.code] = true
		err := toRPCError(ec.err)
		var rerr *Error
		c.Assert(errors.As(err, &rerr), qt.IsTrue)
		c.Assert(rerr.ErrorCode(), qt.Equals, ec.code)
		c.Assert(fromRPCError(err), qt.ErrorIs, ec.err)
	}
	c.Assert(toRPCError(nil), qt.IsNil)
	plain := errors.New("disk on fire")
	c.Assert(toRPCError(plain), qt.Equals, plain)
	c.Assert(fromRPCError(plain), qt.ErrorIs, ErrCollaborator)
	c.Assert(isTransportError(plain), qt.IsTrue)
	c.Assert(isTransportError(toRPCError(ledger.ErrUnknownRoot)), qt.IsFalse)
}
