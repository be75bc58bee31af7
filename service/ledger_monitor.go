package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/zknotes/ledger/rpc"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/metrics"
	"github.com/vocdoni/zknotes/state"
	"github.com/vocdoni/zknotes/storage"
	"github.com/vocdoni/zknotes/util"
	"github.com/vocdoni/zknotes/wire"
)

const (
	// DefaultPollInterval is the time between two polls of the ledger.
	DefaultPollInterval = 5 * time.Second
	// eventsPageSize is the number of events requested per call.
	eventsPageSize = 100
	// maxPagesPerPoll bounds the pages read in a single poll cycle.
	maxPagesPerPoll = 50
)

// LedgerService is the part of the ledger node the indexer reads from.
type LedgerService interface {
	GetEvents(ctx context.Context, start uint64, cursor string, limit int) (*rpc.EventsPage, error)
}

// LedgerMonitor represents a service that polls the ledger for deposit and
// transfer events and appends their commitments to the indexer tree.
type LedgerMonitor struct {
	ledger   LedgerService
	state    *state.State
	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	// pollMu serializes poll cycles
	pollMu sync.Mutex
}

// NewLedgerMonitor creates a new LedgerMonitor service. A zero interval
// uses DefaultPollInterval.
func NewLedgerMonitor(ls LedgerService, st *state.State, interval time.Duration) *LedgerMonitor {
	if interval == 0 {
		interval = DefaultPollInterval
	}
	return &LedgerMonitor{
		ledger:   ls,
		state:    st,
		interval: interval,
	}
}

// Start begins polling the ledger. It returns an error if the service is
// already running.
func (lm *LedgerMonitor) Start(ctx context.Context) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.cancel != nil {
		return fmt.Errorf("service already running")
	}
	ctx, lm.cancel = context.WithCancel(ctx)
	lm.done = make(chan struct{})
	go lm.monitorLedger(ctx, lm.done)
	return nil
}

// Stop halts the polling and waits for the running cycle to finish.
func (lm *LedgerMonitor) Stop() {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.cancel != nil {
		lm.cancel()
		<-lm.done
		lm.cancel = nil
	}
}

func (lm *LedgerMonitor) monitorLedger(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(lm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lm.Poll(ctx); err != nil {
				metrics.PollErrors.Inc()
				log.Warnw("ledger poll failed, retrying next tick", "error", err)
			}
		}
	}
}

// Poll runs one poll cycle: it reads the events after the persisted cursor
// and inserts their commitments, persisting the new cursor with them. On
// first run the events are read from the first ledger.
func (lm *LedgerMonitor) Poll(ctx context.Context) error {
	lm.pollMu.Lock()
	defer lm.pollMu.Unlock()

	cursor, err := lm.state.Cursor()
	if err != nil {
		return fmt.Errorf("load sync cursor: %w", err)
	}
	if cursor == nil {
		cursor = &storage.SyncCursor{}
	}
	for range maxPagesPerPoll {
		page, err := lm.ledger.GetEvents(ctx, cursor.LastLedger, cursor.Cursor, eventsPageSize)
		if err != nil {
			return fmt.Errorf("get events: %w", err)
		}
		next := &storage.SyncCursor{LastLedger: page.LatestLedger, Cursor: page.Cursor}
		if len(page.Events) == 0 {
			if *next != *cursor {
				if err := lm.state.SetCursor(next); err != nil {
					return fmt.Errorf("persist sync cursor: %w", err)
				}
			}
			metrics.LastIndexedLedger.Set(float64(next.LastLedger))
			return nil
		}
		leaves, err := eventLeaves(page.Events)
		if err != nil {
			return err
		}
		indexes, err := lm.state.Insert(leaves, next)
		if err != nil {
			return fmt.Errorf("insert leaves: %w", err)
		}
		root := lm.state.Root()
		log.Infow("indexed ledger events",
			"events", len(page.Events),
			"leaves", len(indexes),
			"latestLedger", page.LatestLedger,
			"root", util.PrettyHex(root))
		metrics.IndexedLeaves.Set(float64(lm.state.Len()))
		metrics.LastIndexedLedger.Set(float64(page.LatestLedger))
		cursor = next
		if len(page.Events) < eventsPageSize {
			return nil
		}
	}
	return nil
}

// eventLeaves returns the commitments carried by the events, in order.
func eventLeaves(events []storage.LedgerEvent) ([]state.NewLeaf, error) {
	var leaves []state.NewLeaf
	for _, ev := range events {
		switch ev.Kind {
		case storage.EventDeposit, storage.EventTransfer:
		default:
			log.Debugw("skipping ledger event", "kind", ev.Kind, "seq", ev.Seq)
			continue
		}
		for i, b := range ev.Commitments {
			cm, err := wire.FrFromBytes(b)
			if err != nil {
				return nil, fmt.Errorf("event %d commitment %d: %w", ev.Seq, i, err)
			}
			leaves = append(leaves, state.NewLeaf{Commitment: cm, BlockHeight: ev.Ledger})
		}
	}
	return leaves, nil
}
