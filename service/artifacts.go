package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/zknotes/circuits"
	"github.com/vocdoni/zknotes/circuits/membership"
	"github.com/vocdoni/zknotes/circuits/ownership"
	"github.com/vocdoni/zknotes/circuits/preimage"
	"github.com/vocdoni/zknotes/circuits/rangeproof"
	"github.com/vocdoni/zknotes/circuits/transfer"
	"github.com/vocdoni/zknotes/config"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/prover"
	"golang.org/x/sync/errgroup"
)

// Definitions lists every circuit the keys command sets up.
var Definitions = []circuits.Definition{
	transfer.Definition,
	membership.Definition,
	ownership.Definition,
	preimage.Definition,
	rangeproof.Definition,
}

// SetupKeys loads or generates the deterministic keys of the given circuits
// concurrently. done, if not nil, is called after each circuit is ready.
func SetupKeys(ctx context.Context, seed string, defs []circuits.Definition, timeout time.Duration, done func(*prover.Keys)) (map[string]*prover.Keys, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	keys := make(map[string]*prover.Keys, len(defs))
	g, ctx := errgroup.WithContext(ctx)
	for _, def := range defs {
		g.Go(func() error {
			start := time.Now()
			k, err := prover.LoadOrSetup(ctx, def, config.CircuitSeed(seed, def.Name))
			if err != nil {
				return fmt.Errorf("circuit %s: %w", def.Name, err)
			}
			log.Infow("circuit keys ready",
				"circuit", def.Name,
				"circuitID", k.CircuitID().String(),
				"constraints", k.ConstraintCount(),
				"took", time.Since(start).String())
			mu.Lock()
			keys[def.Name] = k
			if done != nil {
				done(k)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return keys, nil
}

// TransferKeys returns the deterministic keys of the transfer circuit.
func TransferKeys(ctx context.Context, seed string, timeout time.Duration) (*prover.Keys, error) {
	keys, err := SetupKeys(ctx, seed, []circuits.Definition{transfer.Definition}, timeout, nil)
	if err != nil {
		return nil, err
	}
	return keys[transfer.Definition.Name], nil
}
