// Command e2etest runs a ledger node and an indexer in process and drives a
// deposit, a private transfer and a transfer back through them.
package main

import (
	"context"
	"fmt"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/zknotes/api/client"
	"github.com/vocdoni/zknotes/config"
	"github.com/vocdoni/zknotes/ledger"
	"github.com/vocdoni/zknotes/ledger/rpc"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/note"
	"github.com/vocdoni/zknotes/service"
	"github.com/vocdoni/zknotes/state"
	"github.com/vocdoni/zknotes/storage"
	"github.com/vocdoni/zknotes/util"
	"github.com/vocdoni/zknotes/verifier"
	"github.com/vocdoni/zknotes/wallet"
	"github.com/vocdoni/zknotes/wire"
)

const appTag = 1

func main() {
	seed := flag.String("seed", config.DefaultSetupSeed, "deterministic setup seed label")
	deposit := flag.Uint64("deposit", 1000, "value deposited by alice")
	amount := flag.Uint64("amount", 600, "value alice sends to bob")
	logLevel := flag.String("loglevel", "info", "log level")
	flag.Parse()
	log.Init(*logLevel, "stdout", nil)

	if err := run(context.Background(), *seed, *deposit, *amount); err != nil {
		log.Fatal(err)
	}
	log.Info("e2e test passed")
}

func run(ctx context.Context, seed string, deposit, amount uint64) error {
	if amount == 0 || amount > deposit {
		return fmt.Errorf("amount must be in [1, %d]", deposit)
	}
	start := time.Now()
	keys, err := service.TransferKeys(ctx, seed, time.Hour)
	if err != nil {
		return err
	}
	log.Infow("transfer keys ready", "circuitID", keys.CircuitID().String(), "took", time.Since(start).String())

	// ledger node over HTTP JSON-RPC
	lstg := storage.New(memdb.New())
	defer lstg.Close()
	l, err := ledger.New(lstg, verifier.NewRegistry(lstg))
	if err != nil {
		return err
	}
	srv, err := rpc.NewServer(l)
	if err != nil {
		return err
	}
	if err := srv.Start("127.0.0.1", 0); err != nil {
		return err
	}
	defer func() { _ = srv.Stop(context.Background()) }()

	pool := rpc.NewPool()
	defer pool.Close()
	if err := pool.AddEndpoint(ctx, srv.URL()); err != nil {
		return err
	}
	id, err := pool.RegisterCircuit(ctx, keys.VerifyingKey())
	if err != nil {
		return err
	}
	if _, err := pool.Init(ctx, id); err != nil {
		return err
	}

	// indexer following the node
	istg := storage.New(memdb.New())
	defer istg.Close()
	st, err := state.New(istg)
	if err != nil {
		return err
	}
	monitor := service.NewLedgerMonitor(pool, st, time.Hour)
	apiSrv := service.NewAPI(st, "127.0.0.1", 0)
	if err := apiSrv.Start(ctx); err != nil {
		return err
	}
	defer apiSrv.Stop()
	idx, err := client.New("http://" + apiSrv.Addr())
	if err != nil {
		return err
	}

	alice := wallet.New(note.NewSecretKey(), appTag, keys, pool, idx)
	bob := wallet.New(note.NewSecretKey(), appTag, keys, pool, idx)

	if _, _, err := alice.Deposit(ctx, deposit); err != nil {
		return err
	}
	if err := indexAndSync(ctx, monitor, alice); err != nil {
		return err
	}

	start = time.Now()
	res, err := alice.Transfer(ctx, bob.Owner(), amount)
	if err != nil {
		return err
	}
	log.Infow("alice paid bob", "amount", amount, "txId", res.TxID, "took", time.Since(start).String())
	if err := bob.Receive(res.Sent); err != nil {
		return err
	}
	if err := indexAndSync(ctx, monitor, bob); err != nil {
		return err
	}
	if err := checkRoot(ctx, idx, res.TxResult); err != nil {
		return err
	}

	back := amount / 2
	if back > 0 {
		res, err = bob.Transfer(ctx, alice.Owner(), back)
		if err != nil {
			return err
		}
		if err := alice.Receive(res.Sent); err != nil {
			return err
		}
		if err := indexAndSync(ctx, monitor, alice); err != nil {
			return err
		}
		if err := checkRoot(ctx, idx, res.TxResult); err != nil {
			return err
		}
	}

	if got, want := alice.Balance(), deposit-amount+back; got != want {
		return fmt.Errorf("alice balance %d, expected %d", got, want)
	}
	if got, want := bob.Balance(), amount-back; got != want {
		return fmt.Errorf("bob balance %d, expected %d", got, want)
	}
	leaves, err := idx.Leaves(ctx)
	if err != nil {
		return err
	}
	log.Infow("balances match",
		"alice", alice.Balance(),
		"bob", bob.Balance(),
		"leaves", len(leaves))
	return nil
}

// indexAndSync runs a poll cycle and syncs w against the indexer.
func indexAndSync(ctx context.Context, monitor *service.LedgerMonitor, w *wallet.Wallet) error {
	if err := monitor.Poll(ctx); err != nil {
		return err
	}
	if _, err := w.Sync(ctx); err != nil {
		return err
	}
	return nil
}

// checkRoot compares the indexer root with the one the ledger committed.
func checkRoot(ctx context.Context, idx *client.HTTPclient, res *rpc.TxResult) error {
	root, err := idx.Root(ctx)
	if err != nil {
		return err
	}
	committed, err := wire.HexToFr(res.Root)
	if err != nil {
		return err
	}
	if !root.Equal(&committed) {
		return fmt.Errorf("indexer root %s differs from ledger root %s", util.PrettyHex(root), util.PrettyHex(committed))
	}
	log.Infow("indexer caught up with the ledger", "root", util.PrettyHex(root), "ledger", res.Ledger)
	return nil
}
