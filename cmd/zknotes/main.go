// Command zknotes runs the reference ledger node, the indexer and the
// deterministic key setup of the shielded note circuits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vocdoni/zknotes/circuits"
	"github.com/vocdoni/zknotes/config"
	"github.com/vocdoni/zknotes/log"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
)

func main() {
	root := &cobra.Command{
		Use:           "zknotes",
		Short:         "Shielded note transfers over Groth16 on BLS12-381",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.AddGlobalFlags(root.PersistentFlags())
	root.AddCommand(ledgerCommand(), indexerCommand(), keysCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the command configuration and sets up the logger and
// the artifacts cache from it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	log.Init(cfg.LogLevel, cfg.LogOutput, nil)
	if cfg.ArtifactsDir != "" {
		circuits.BaseDir = cfg.ArtifactsDir
	}
	if cfg.ArtifactsURL != "" {
		circuits.RemoteURL = cfg.ArtifactsURL
	}
	log.Debugw("configuration loaded", "config", fmt.Sprintf("%+v", *cfg))
	return cfg, nil
}

// openDatabase opens the named pebble database under the data dir.
func openDatabase(cfg *config.Config, name string) (db.Database, error) {
	dir, err := cfg.DatabaseDir(name)
	if err != nil {
		return nil, err
	}
	database, err := metadb.New(db.TypePebble, dir)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", name, err)
	}
	log.Infow("database opened", "name", name, "dir", dir)
	return database, nil
}
