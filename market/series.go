package market

import "sync"

// UpdateKind says what Series.Apply did with a bar.
type UpdateKind int

const (
	Stale UpdateKind = iota
	Replaced
	Appended
)

func (k UpdateKind) String() string {
	switch k {
	case Replaced:
		return "replaced"
	case Appended:
		return "appended"
	default:
		return "stale"
	}
}

// Series is the rolling candle window for one symbol. A bar with the
// same time as the last one replaces it, a later bar is appended, and an
// older bar is ignored.
type Series struct {
	mu      sync.RWMutex
	symbol  string
	max     int
	candles []Candle
}

// NewSeries keeps at most max bars (0 means unbounded).
func NewSeries(symbol string, max int) *Series {
	return &Series{symbol: symbol, max: max}
}

func (s *Series) Symbol() string { return s.symbol }

// Apply merges one streamed bar into the window.
func (s *Series) Apply(c Candle) UpdateKind {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.candles)
	switch {
	case n == 0 || c.Time > s.candles[n-1].Time:
		s.candles = append(s.candles, c)
		s.trimLocked()
		return Appended
	case c.Time == s.candles[n-1].Time:
		s.candles[n-1] = c
		return Replaced
	default:
		return Stale
	}
}

// Replace swaps the whole window, e.g. after a fresh history fetch.
func (s *Series) Replace(candles []Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles = append(s.candles[:0:0], candles...)
	s.trimLocked()
}

func (s *Series) trimLocked() {
	if s.max > 0 && len(s.candles) > s.max {
		s.candles = append(s.candles[:0:0], s.candles[len(s.candles)-s.max:]...)
	}
}
