package strategies

import (
	"context"
	"time"

	"github.com/rustyeddy/papertrader/market"
)

// NoopStrategy always holds.
type NoopStrategy struct{}

func (NoopStrategy) Name() string { return "noop" }

func (NoopStrategy) Generate(_ context.Context, symbol string, candles []market.Candle) TradeSignal {
	ts := time.Now().UTC()
	if n := len(candles); n > 0 {
		ts = candles[n-1].Timestamp()
	}
	return HoldSignal(symbol, 0, "noop strategy", ts)
}
