// Package strategies turns a candle window into a TradeSignal.
package strategies

import (
	"context"
	"fmt"
	"strings"

	"github.com/rustyeddy/papertrader/market"
)

// Generator produces one signal for the newest bar of candles.
type Generator interface {
	Name() string
	Generate(ctx context.Context, symbol string, candles []market.Candle) TradeSignal
}

// StrategyByName builds a generator from configuration.
func StrategyByName(name string, cfg SniperConfig) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sniper", "mean-reversion", "":
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return NewSniper(cfg), nil

	case "noop", "none", "hold":
		return NoopStrategy{}, nil

	default:
		return nil, fmt.Errorf("unknown strategy %q (supported: sniper, noop)", name)
	}
}
