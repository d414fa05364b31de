package bot

import (
	"context"

	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/metrics"
	"github.com/rustyeddy/papertrader/strategies"
)

// InstrumentValidator counts validator answers as confirmed, rejected or
// error.
func InstrumentValidator(v strategies.Validator, m *metrics.Recorder) strategies.Validator {
	return strategies.ValidatorFunc(func(ctx context.Context, candles []market.Candle, candidate strategies.TradeSignal) (strategies.TradeSignal, error) {
		got, err := v.Validate(ctx, candles, candidate)
		switch {
		case err != nil:
			m.Validator("error")
		case got.Action != candidate.Action:
			m.Validator("rejected")
		default:
			m.Validator("confirmed")
		}
		return got, err
	})
}
