package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/vocdoni/zknotes/circuits"
	"github.com/vocdoni/zknotes/config"
	"github.com/vocdoni/zknotes/prover"
	"github.com/vocdoni/zknotes/service"
)

func keysCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "keys",
		Short: "Runs the deterministic setup of every circuit into the artifacts cache",
		RunE:  runKeys,
	}
	c.Flags().Duration("timeout", 2*time.Hour, "maximum time for the whole setup")
	return c
}

func runKeys(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}
	bar := progressbar.Default(int64(len(service.Definitions)), "circuit setup")
	keys, err := service.SetupKeys(cmd.Context(), cfg.SetupSeed, service.Definitions, timeout, func(*prover.Keys) {
		_ = bar.Add(1)
	})
	if err != nil {
		return err
	}
	_ = bar.Finish()

	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	slices.Sort(names)
	if err := os.MkdirAll(circuits.BaseDir, 0o755); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, name := range names {
		k := keys[name]
		path := filepath.Join(circuits.BaseDir, fmt.Sprintf(config.VerifyingKeyFile, name))
		data, err := json.MarshalIndent(k.VerifyingKey(), "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write verifying key: %w", err)
		}
		fmt.Fprintf(out, "%-12s %s constraints=%d public=%d vk=%s\n",
			name, k.CircuitID(), k.ConstraintCount(), k.NbPublic(), path)
	}
	return nil
}
