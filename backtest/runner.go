// Package backtest replays a candle series through a strategy and the
// simulated engine, bar by bar.
package backtest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/sim"
	"github.com/rustyeddy/papertrader/strategies"
)

type Options struct {
	// CloseEnd closes whatever is still open at the last bar's close.
	CloseEnd bool
}

// Runner drives an engine forward over historical candles.
type Runner struct {
	Engine   *sim.Engine
	Strategy strategies.Generator

	// Window is how many trailing candles the strategy sees per bar.
	// Zero hands it the whole prefix.
	Window  int
	Options Options
}

// Run walks candles in order. Each bar first runs the exit check at its
// close; a symbol that held a position on that bar is not re-entered
// until the next one.
func (r *Runner) Run(ctx context.Context, symbol string, candles []market.Candle) (Result, error) {
	if r.Engine == nil {
		return Result{}, fmt.Errorf("backtest: Engine is required")
	}
	if r.Strategy == nil {
		return Result{}, fmt.Errorf("backtest: Strategy is required")
	}
	if err := market.ValidateSeries(candles); err != nil {
		return Result{}, fmt.Errorf("backtest: %w", err)
	}

	res := Result{
		Symbol:   symbol,
		Strategy: r.Strategy.Name(),
		Bars:     len(candles),
		Opening:  r.Engine.Account().Balance,
	}
	if len(candles) > 0 {
		res.Start = candles[0].Timestamp()
		res.End = candles[len(candles)-1].Timestamp()
	}

	for i, c := range candles {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		at := c.Timestamp()

		held := r.Engine.HasPosition(symbol)
		if rec, closed := r.Engine.UpdatePrice(symbol, c.Close, at); closed {
			res.History = append(res.History, rec)
			continue
		}
		if held || !r.Engine.CanOpen(symbol) {
			continue
		}

		sig := r.Strategy.Generate(ctx, symbol, r.window(candles[:i+1]))
		if !sig.Tradable() {
			continue
		}
		res.Signals++

		side, _ := sig.Action.Side()
		_, err := r.Engine.Open(ctx, sim.OpenRequest{
			Symbol:     symbol,
			Side:       side,
			Entry:      sig.Entry,
			TakeProfit: sig.TakeProfit,
			StopLoss:   sig.StopLoss,
			Time:       at,
		})
		switch {
		case err == nil:
		case errors.Is(err, sim.ErrInvalidOrder), errors.Is(err, sim.ErrRejected), errors.Is(err, sim.ErrMaxOpenPositions):
			res.Rejected++
		default:
			return Result{}, err
		}
	}

	if r.Options.CloseEnd {
		res.History = append(res.History, r.Engine.CloseAll()...)
	}

	acct := r.Engine.Account()
	res.Balance = acct.Balance
	res.Equity = r.Engine.Equity()
	res.Open = len(acct.OpenPositions)
	res.tally()
	return res, nil
}

func (r *Runner) window(candles []market.Candle) []market.Candle {
	if r.Window <= 0 || len(candles) <= r.Window {
		return candles
	}
	return candles[len(candles)-r.Window:]
}
