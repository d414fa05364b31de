package risk

import "fmt"

type Policy struct {
	// RiskFraction is the share of balance committed to each position (0.1 = 10%).
	RiskFraction float64 `yaml:"risk_fraction" json:"risk_fraction" validate:"gt=0,lte=1" default:"0.1"`

	// MaxOpenPositions caps open positions across all symbols.
	MaxOpenPositions int `yaml:"max_open_positions" json:"max_open_positions" validate:"gte=1" default:"3"`

	// FeeRate is charged on entry notional when a position closes (0.001 = 0.1%).
	FeeRate float64 `yaml:"fee_rate" json:"fee_rate" validate:"gte=0,lt=1"`

	// HistoryCap is how many closed trades the account keeps.
	HistoryCap int `yaml:"history_cap" json:"history_cap" validate:"gte=1" default:"50"`
}

func DefaultPolicy() Policy {
	return Policy{
		RiskFraction:     0.1,
		MaxOpenPositions: 3,
		FeeRate:          0,
		HistoryCap:       50,
	}
}

func (p Policy) Validate() error {
	if p.RiskFraction <= 0 || p.RiskFraction > 1 {
		return fmt.Errorf("risk.risk_fraction must be in (0, 1], got %v", p.RiskFraction)
	}
	if p.MaxOpenPositions < 1 {
		return fmt.Errorf("risk.max_open_positions must be at least 1")
	}
	if p.FeeRate < 0 || p.FeeRate >= 1 {
		return fmt.Errorf("risk.fee_rate must be in [0, 1)")
	}
	if p.HistoryCap < 1 {
		return fmt.Errorf("risk.history_cap must be at least 1")
	}
	return nil
}

type TradeIntent struct {
	Symbol     string
	Amount     float64
	Entry      float64
	Stop       float64
	TakeProfit float64
}

type AccountSnapshot struct {
	Balance       float64
	OpenPositions int
	SymbolOpen    bool
}
