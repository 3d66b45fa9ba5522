// Package memory provides a process-local ledger for dry runs and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
)

// Entry is one recorded fingerprint.
type Entry struct {
	TaxpayerID invoice.TaxpayerID
	RecordedAt time.Time
}

// Ledger is an in-memory invoice.Ledger. Nothing survives the process.
type Ledger struct {
	mu      sync.RWMutex
	entries map[invoice.DedupKey]Entry
	now     func() time.Time
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[invoice.DedupKey]Entry), now: time.Now}
}

func (l *Ledger) Exists(ctx context.Context, key invoice.DedupKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[key]
	return ok, nil
}

func (l *Ledger) Record(ctx context.Context, key invoice.DedupKey, id invoice.TaxpayerID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[key]; ok {
		return false, nil
	}
	l.entries[key] = Entry{TaxpayerID: id, RecordedAt: l.now()}
	return true, nil
}

// Len returns the number of recorded fingerprints.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Count returns the number of recorded fingerprints, optionally for one taxpayer.
func (l *Ledger) Count(ctx context.Context, id invoice.TaxpayerID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if id == "" {
		return int64(len(l.entries)), nil
	}
	var n int64
	for _, e := range l.entries {
		if e.TaxpayerID == id {
			n++
		}
	}
	return n, nil
}

// Get returns the entry for key.
func (l *Ledger) Get(key invoice.DedupKey) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[key]
	return e, ok
}

func (l *Ledger) Close() error { return nil }

var (
	_ invoice.Ledger  = (*Ledger)(nil)
	_ invoice.Counter = (*Ledger)(nil)
)
