package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/vocdoni/zknotes/ledger/rpc"
	"github.com/vocdoni/zknotes/storage"
	"github.com/vocdoni/zknotes/types"
	"github.com/vocdoni/zknotes/wire"
)

// MockLedger implements LedgerService in memory for testing. Every emitted
// event gets its own ledger height.
type MockLedger struct {
	mu     sync.Mutex
	events []storage.LedgerEvent
	latest uint64
	fail   error
}

// NewMockLedger returns an empty mock ledger.
func NewMockLedger() *MockLedger {
	return &MockLedger{}
}

// Deposit emits a deposit event.
func (m *MockLedger) Deposit(cm fr.Element) uint64 {
	return m.emit(storage.EventDeposit, nil, cm)
}

// Transfer emits a transfer event.
func (m *MockLedger) Transfer(nullifier, cm0, cm1 fr.Element) uint64 {
	nf := wire.FrToBytes(nullifier)
	return m.emit(storage.EventTransfer, nf[:], cm0, cm1)
}

// SetFailure makes every call fail with err until called again with nil.
func (m *MockLedger) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *MockLedger) emit(kind string, nullifier []byte, cms ...fr.Element) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest++
	ev := storage.LedgerEvent{
		Seq:       uint64(len(m.events)),
		Ledger:    m.latest,
		Kind:      kind,
		Nullifier: nullifier,
		TxID:      fmt.Sprintf("mock-%d", m.latest),
	}
	for _, cm := range cms {
		b := wire.FrToBytes(cm)
		ev.Commitments = append(ev.Commitments, types.HexBytes(b[:]))
	}
	m.events = append(m.events, ev)
	return m.latest
}

// LatestLedger returns the height of the last event.
func (m *MockLedger) LatestLedger(_ context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}
	return m.latest, nil
}

// GetEvents pages through the events the same way the reference ledger does.
func (m *MockLedger) GetEvents(_ context.Context, start uint64, cursor string, limit int) (*rpc.EventsPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	var after int64 = -1
	if cursor != "" {
		seq, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		after = int64(seq)
	}
	page := &rpc.EventsPage{Events: []storage.LedgerEvent{}, Cursor: cursor, LatestLedger: m.latest}
	for _, ev := range m.events {
		if len(page.Events) == limit {
			break
		}
		if cursor != "" && int64(ev.Seq) <= after {
			continue
		}
		if cursor == "" && ev.Ledger < start {
			continue
		}
		page.Events = append(page.Events, ev)
	}
	if n := len(page.Events); n > 0 {
		page.Cursor = strconv.FormatUint(page.Events[n-1].Seq, 10)
	}
	return page, nil
}
