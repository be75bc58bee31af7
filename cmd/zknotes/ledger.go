package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vocdoni/zknotes/config"
	"github.com/vocdoni/zknotes/ledger"
	"github.com/vocdoni/zknotes/ledger/rpc"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/service"
	"github.com/vocdoni/zknotes/storage"
	"github.com/vocdoni/zknotes/verifier"
)

// setupTimeout bounds the key setup run when the ledger is initialized.
const setupTimeout = 30 * time.Minute

func ledgerCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "ledger",
		Short: "Runs the reference ledger JSON-RPC node",
		RunE:  runLedger,
	}
	config.AddServerFlags(c.Flags(), config.DefaultLedgerPort)
	return c
}

func runLedger(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	database, err := openDatabase(cfg, "ledger")
	if err != nil {
		return err
	}
	stg := storage.New(database)
	defer stg.Close()

	l, err := ledger.New(stg, verifier.NewRegistry(stg))
	if err != nil {
		return err
	}
	if err := initLedger(ctx, cfg, l); err != nil {
		return err
	}

	srv, err := rpc.NewServer(l)
	if err != nil {
		return err
	}
	if err := srv.Start(cfg.Host, cfg.Port); err != nil {
		return err
	}
	log.Infow("ledger node ready", "url", srv.URL(), "latestLedger", l.Latest())
	<-ctx.Done()

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdown)
}

// initLedger binds a fresh ledger to the transfer circuit of the configured
// setup seed. An initialized ledger is left as is.
func initLedger(ctx context.Context, cfg *config.Config, l *ledger.Ledger) error {
	id, err := l.CircuitID()
	if err == nil {
		log.Infow("ledger already initialized", "circuitID", id.String())
		return nil
	}
	if !errors.Is(err, ledger.ErrNotInitialized) {
		return err
	}
	keys, err := service.TransferKeys(ctx, cfg.SetupSeed, setupTimeout)
	if err != nil {
		return fmt.Errorf("transfer keys: %w", err)
	}
	id = keys.CircuitID()
	if _, err := l.Registry().Register(keys.VerifyingKey()); err != nil && !errors.Is(err, verifier.ErrAlreadyRegistered) {
		return fmt.Errorf("register transfer circuit: %w", err)
	}
	if _, err := l.Init(id); err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}
	return nil
}
