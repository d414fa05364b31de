package advisor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/strategies"
)

type fixedGenerator struct{ sig strategies.TradeSignal }

func (g fixedGenerator) Name() string { return "fixed" }

func (g fixedGenerator) Generate(context.Context, string, []market.Candle) strategies.TradeSignal {
	return g.sig
}

func testLogger() zerolog.Logger { return zerolog.Nop() }
