// Package broker holds the account and position model shared by the
// simulated engine, the journal and the API.
package broker

import (
	"fmt"
	"strings"
	"time"
)

// Side is the direction of a position.
type Side int

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Sign is +1 for long and -1 for short.
func (s Side) Sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid side %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG":
		return Buy, nil
	case "SELL", "SHORT":
		return Sell, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

// Outcome classifies a closed trade.
type Outcome int

const (
	Win Outcome = iota + 1
	Loss
	Closed // manual close, not a TP/SL hit
)

func (o Outcome) String() string {
	switch o {
	case Win:
		return "WIN"
	case Loss:
		return "LOSS"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	if o < Win || o > Closed {
		return nil, fmt.Errorf("invalid outcome %d", int(o))
	}
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "WIN":
		*o = Win
	case "LOSS":
		*o = Loss
	case "CLOSED":
		*o = Closed
	default:
		return fmt.Errorf("unknown outcome %q", string(b))
	}
	return nil
}

// OutcomeFor maps a realized pnl to WIN or LOSS.
func OutcomeFor(pnl float64) Outcome {
	if pnl > 0 {
		return Win
	}
	return Loss
}

// Exit reasons recorded with every closed trade.
const (
	ReasonTakeProfit = "TakeProfit"
	ReasonStopLoss   = "StopLoss"
	ReasonManual     = "Manual"
)

// Position is an open simulated position. TakeProfit and StopLoss are
// fixed when the position is opened.
type Position struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"type"`
	EntryPrice float64   `json:"entryPrice"`
	Amount     float64   `json:"amount"`
	TakeProfit float64   `json:"takeProfit"`
	StopLoss   float64   `json:"stopLoss"`
	Leverage   int       `json:"leverage"`
	OpenedAt   time.Time `json:"timestamp"`
}

// Notional is entry price times amount.
func (p Position) Notional() float64 {
	return p.EntryPrice * p.Amount
}

// UnrealizedPnL at the given price.
func (p Position) UnrealizedPnL(price float64) float64 {
	return (price - p.EntryPrice) * p.Amount * p.Side.Sign()
}

// TradeRecord is a closed position.
type TradeRecord struct {
	Position
	ExitPrice float64   `json:"exitPrice"`
	ExitTime  time.Time `json:"exitTime"`
	Outcome   Outcome   `json:"outcome"`
	PnL       float64   `json:"pnl"`
	Fee       float64   `json:"fee"`
	Reason    string    `json:"reason"`
}

// Account is the whole simulated account.
type Account struct {
	Active        bool                `json:"isActive"`
	StartedAt     *time.Time          `json:"startTime,omitempty"`
	Balance       float64             `json:"balance"`
	TotalProfit   float64             `json:"totalProfit"`
	OpenPositions map[string]Position `json:"activePositions"`
	History       []TradeRecord       `json:"history"`
}

func NewAccount(balance float64) Account {
	return Account{
		Balance:       balance,
		OpenPositions: make(map[string]Position),
		History:       []TradeRecord{},
	}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (a Account) Clone() Account {
	out := a
	if a.StartedAt != nil {
		t := *a.StartedAt
		out.StartedAt = &t
	}
	out.OpenPositions = make(map[string]Position, len(a.OpenPositions))
	for k, v := range a.OpenPositions {
		out.OpenPositions[k] = v
	}
	out.History = append([]TradeRecord{}, a.History...)
	return out
}

// PrependHistory puts rec at the front and drops the oldest records past
// limit. A limit of 0 keeps everything.
func PrependHistory(history []TradeRecord, rec TradeRecord, limit int) []TradeRecord {
	n := len(history) + 1
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]TradeRecord, n)
	out[0] = rec
	copy(out[1:], history)
	return out
}
