package main

import (
	"github.com/spf13/cobra"
	"github.com/vocdoni/zknotes/config"
	"github.com/vocdoni/zknotes/ledger/rpc"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/service"
	"github.com/vocdoni/zknotes/state"
	"github.com/vocdoni/zknotes/storage"
)

func indexerCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "indexer",
		Short: "Follows the ledger and serves the commitment tree over HTTP",
		RunE:  runIndexer,
	}
	config.AddServerFlags(c.Flags(), config.DefaultIndexerPort)
	config.AddIndexerFlags(c.Flags())
	return c
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	database, err := openDatabase(cfg, "indexer")
	if err != nil {
		return err
	}
	stg := storage.New(database)
	defer stg.Close()
	st, err := state.New(stg)
	if err != nil {
		return err
	}

	pool := rpc.NewPool()
	defer pool.Close()
	for _, url := range cfg.LedgerURLs {
		if err := pool.AddEndpoint(ctx, url); err != nil {
			log.Warnw("skipping ledger endpoint", "url", url, "error", err)
		}
	}
	if pool.NumberOfEndpoints(false) == 0 {
		log.Warn("no ledger endpoint reachable yet, polls will fail until one is added")
	}

	monitor := service.NewLedgerMonitor(pool, st, cfg.PollInterval)
	if err := monitor.Start(ctx); err != nil {
		return err
	}
	defer monitor.Stop()

	api := service.NewAPI(st, cfg.Host, cfg.Port)
	if err := api.Start(ctx); err != nil {
		return err
	}
	defer api.Stop()
	log.Infow("indexer ready", "address", api.Addr(), "leaves", st.Len())
	<-ctx.Done()
	return nil
}
