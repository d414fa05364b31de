package market

import (
	"errors"
	"sync"
	"time"
)

// ErrNoPrice is returned when a symbol has never been priced.
var ErrNoPrice = errors.New("price not found")

// Tick is the last observed trade price for a symbol.
type Tick struct {
	Symbol string
	Price  float64
	Time   time.Time
}

type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

func (ts *TickStore) Set(t Tick) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.ticks[t.Symbol] = t
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

func (ts *TickStore) Reset() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.ticks = make(map[string]Tick)
}
