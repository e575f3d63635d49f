package market

import (
	"errors"
	"sync"
	"time"
)

var ErrNoPrice = errors.New("price not found")

// Tick is a last-trade (or mid) price observation for one symbol.
type Tick struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// TickStore keeps the latest tick per symbol. Older ticks never replace
// newer ones.
type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

// Set stores t and reports whether it became the latest tick for its symbol.
func (ts *TickStore) Set(t Tick) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if cur, ok := ts.ticks[t.Symbol]; ok && t.Time.Before(cur.Time) {
		return false
	}
	ts.ticks[t.Symbol] = t
	return true
}

func (ts *TickStore) Get(symbol string) (Tick, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.ticks[symbol]
	if !ok {
		return Tick{}, ErrNoPrice
	}
	return t, nil
}

// Snapshot returns a copy of all latest ticks.
func (ts *TickStore) Snapshot() map[string]Tick {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make(map[string]Tick, len(ts.ticks))
	for k, v := range ts.ticks {
		out[k] = v
	}
	return out
}
