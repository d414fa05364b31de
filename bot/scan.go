package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/feed"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/sim"
	"github.com/rustyeddy/papertrader/strategies"
)

// SymbolResult is what one tick did for one symbol. At most one of
// Closed and Opened is set.
type SymbolResult struct {
	Symbol string                  `json:"symbol"`
	Price  float64                 `json:"price,omitempty"`
	Signal *strategies.TradeSignal `json:"signal,omitempty"`
	Opened *broker.Position        `json:"opened,omitempty"`
	Closed *broker.TradeRecord     `json:"closed,omitempty"`
	Err    error                   `json:"-"`
}

type TickReport struct {
	Started  time.Time      `json:"started"`
	Duration time.Duration  `json:"duration"`
	Symbols  []SymbolResult `json:"symbols"`
}

// ScanOnce runs one tick over the watchlist, in watchlist order. It
// returns ErrTickInProgress instead of waiting when another tick holds
// the lock.
func (b *Bot) ScanOnce(ctx context.Context) (TickReport, error) {
	if !b.engine.Active() {
		return TickReport{}, ErrInactive
	}
	if !b.tickMu.TryLock() {
		b.metrics.TickSkipped()
		b.log.Debug().Msg("tick still running, skipping")
		return TickReport{}, ErrTickInProgress
	}
	defer b.tickMu.Unlock()

	report := TickReport{Started: b.now()}
	start := time.Now()
	for _, symbol := range b.cfg.Watchlist {
		if ctx.Err() != nil {
			break
		}
		report.Symbols = append(report.Symbols, b.scanSymbol(ctx, symbol))
	}
	report.Duration = time.Since(start)

	acct := b.engine.Account()
	b.metrics.Account(acct.Balance, len(acct.OpenPositions))
	b.metrics.TickCompleted(report.Duration)
	return report, ctx.Err()
}

func (b *Bot) fetch(ctx context.Context, symbol string) ([]market.Candle, error) {
	fctx, cancel := context.WithTimeout(ctx, b.cfg.FeedTimeout)
	defer cancel()

	candles, err := b.feed.FetchHistory(fctx, symbol, b.cfg.CandleInterval, b.cfg.Limit, nil)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no candles", feed.ErrMalformed)
	}
	if err := market.ValidateSeries(candles); err != nil {
		return nil, fmt.Errorf("%w: %v", feed.ErrMalformed, err)
	}
	return candles, nil
}

func (b *Bot) scanSymbol(ctx context.Context, symbol string) SymbolResult {
	res := SymbolResult{Symbol: symbol}

	candles, err := b.fetch(ctx, symbol)
	if err != nil {
		res.Err = err
		b.metrics.SymbolError(symbol, feed.Kind(err))
		b.log.Warn().Err(err).Str("symbol", symbol).Msg("skipping symbol this tick")
		return res
	}
	res.Price = candles[len(candles)-1].Close
	if w := b.window(symbol); w != nil {
		w.Replace(candles)
	}
	b.metrics.LastPrice(symbol, res.Price)

	hadPosition := b.engine.HasPosition(symbol)
	if rec, closed := b.engine.UpdatePrice(symbol, res.Price, b.now()); closed {
		res.Closed = &rec
		return res
	}
	if hadPosition || !b.engine.Active() || !b.engine.CanOpen(symbol) {
		return res
	}

	sig := b.gen.Generate(ctx, symbol, candles)
	res.Signal = &sig
	b.metrics.Signal(symbol, sig.Action.String())
	if !sig.Tradable() {
		return res
	}

	side, _ := sig.Action.Side()
	pos, err := b.engine.Open(ctx, sim.OpenRequest{
		Symbol:     symbol,
		Side:       side,
		Entry:      sig.Entry,
		TakeProfit: sig.TakeProfit,
		StopLoss:   sig.StopLoss,
		Time:       b.now(),
	})
	switch {
	case err == nil:
		res.Opened = &pos
		b.metrics.PositionOpened(symbol, side.String())
		b.persist(ctx)
	case errors.Is(err, sim.ErrSymbolAlreadyOpen):
		res.Err = err
		b.log.Error().Err(err).Str("symbol", symbol).Msg("open refused for an already open symbol")
	case errors.Is(err, sim.ErrMaxOpenPositions):
		b.log.Debug().Str("symbol", symbol).Msg("position cap reached")
	default:
		res.Err = err
		b.log.Warn().Err(err).Str("symbol", symbol).Msg("open rejected")
	}
	return res
}

// subscribe opens one kline stream per watchlist symbol. A symbol whose
// subscription fails is still scanned by the tick.
func (b *Bot) subscribe(ctx context.Context) ([]func(), map[string]*market.Series) {
	var unsubs []func()
	windows := make(map[string]*market.Series, len(b.cfg.Watchlist))
	for _, symbol := range b.cfg.Watchlist {
		series := market.NewSeries(symbol, b.cfg.Limit)
		stop, err := b.streamer.Subscribe(ctx, symbol, b.cfg.CandleInterval, func(c market.Candle) {
			b.onStream(series, c)
		})
		if err != nil {
			b.metrics.SymbolError(symbol, "subscribe")
			b.log.Warn().Err(err).Str("symbol", symbol).Msg("kline subscription failed")
			continue
		}
		unsubs = append(unsubs, stop)
		windows[symbol] = series
	}
	return unsubs, windows
}

// window is the stream window for symbol, or nil when it is not streamed.
func (b *Bot) window(symbol string) *market.Series {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.series[symbol]
}

// onStream applies a streamed bar and runs the exit check on its close.
// The engine lock orders it against the scan tick.
func (b *Bot) onStream(series *market.Series, c market.Candle) {
	if series.Apply(c) == market.Stale {
		return
	}
	if !b.engine.Active() {
		return
	}
	b.metrics.LastPrice(series.Symbol(), c.Close)
	if rec, closed := b.engine.UpdatePrice(series.Symbol(), c.Close, b.now()); closed {
		b.log.Info().Str("symbol", rec.Symbol).Str("outcome", rec.Outcome.String()).Msg("stream closed position")
	}
}
