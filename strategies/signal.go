package strategies

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrader/broker"
)

// Action is the direction a signal recommends.
type Action int

const (
	Hold Action = iota
	Buy
	Sell
)

func (a Action) String() string {
	switch a {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "HOLD"
	}
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(b []byte) error {
	v, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func ParseAction(s string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	case "HOLD", "":
		return Hold, nil
	}
	return Hold, fmt.Errorf("unknown action %q", s)
}

// Side maps BUY/SELL onto a position side. HOLD has none.
func (a Action) Side() (broker.Side, bool) {
	switch a {
	case Buy:
		return broker.Buy, true
	case Sell:
		return broker.Sell, true
	}
	return 0, false
}

// ChartLine is a price level the signal was derived from.
type ChartLine struct {
	Price float64 `json:"price"`
	Title string  `json:"title"`
	Color string  `json:"color"`
	Type  string  `json:"type"`
}

type TradeSignal struct {
	Symbol     string      `json:"symbol"`
	Action     Action      `json:"action"`
	Confidence float64     `json:"confidence"`
	Reasoning  string      `json:"reasoning"`
	Entry      float64     `json:"entry"`
	TakeProfit float64     `json:"tp"`
	StopLoss   float64     `json:"sl"`
	Patterns   []string    `json:"patterns"`
	ChartLines []ChartLine `json:"chartLines,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// HoldSignal builds a no-trade signal. Levels are always zero.
func HoldSignal(symbol string, confidence float64, reasoning string, ts time.Time) TradeSignal {
	return TradeSignal{
		Symbol:     symbol,
		Action:     Hold,
		Confidence: confidence,
		Reasoning:  reasoning,
		Patterns:   []string{},
		Timestamp:  ts,
	}
}

// Tradable reports whether the signal asks for a position with usable levels.
func (s TradeSignal) Tradable() bool {
	if s.Action == Hold {
		return false
	}
	return s.Entry > 0 && s.TakeProfit > 0 && s.StopLoss > 0
}

func (s TradeSignal) String() string {
	if s.Action == Hold {
		return fmt.Sprintf("%s HOLD (%.0f%%) %s", s.Symbol, s.Confidence, s.Reasoning)
	}
	return fmt.Sprintf("%s %s @ %.6g tp=%.6g sl=%.6g (%.0f%%) %s",
		s.Symbol, s.Action, s.Entry, s.TakeProfit, s.StopLoss, s.Confidence, s.Reasoning)
}
