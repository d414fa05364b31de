// Package sim is the simulated position manager. It owns the account,
// opens positions from signals, closes them on take-profit, stop-loss or
// by hand, and journals every close.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/internal/id"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/risk"
)

var (
	ErrPositionNotFound  = errors.New("position not found")
	ErrSymbolAlreadyOpen = errors.New("symbol already has an open position")
	ErrMaxOpenPositions  = errors.New("max open positions reached")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrRejected          = errors.New("order rejected by risk policy")
)

// TradeClosedListener is told about every closed trade. It is called
// after the engine lock is released.
type TradeClosedListener interface {
	OnTradeClosed(rec broker.TradeRecord)
}

type Option func(*Engine)

func WithJournal(j journal.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

func WithListener(l TradeClosedListener) Option {
	return func(e *Engine) { e.listener = l }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type Engine struct {
	mu       sync.Mutex
	acct     broker.Account
	policy   risk.Policy
	prices   *market.TickStore
	journal  journal.Journal
	listener TradeClosedListener
	log      zerolog.Logger
	now      func() time.Time
}

func NewEngine(balance float64, policy risk.Policy, opts ...Option) *Engine {
	e := &Engine{
		acct:    broker.NewAccount(balance),
		policy:  policy,
		prices:  market.NewTickStore(),
		journal: journal.Nop{},
		log:     zerolog.Nop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetTradeClosedListener replaces the close listener.
func (e *Engine) SetTradeClosedListener(l TradeClosedListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

func (e *Engine) Policy() risk.Policy { return e.policy }

// Account returns a deep copy of the account.
func (e *Engine) Account() broker.Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct.Clone()
}

// History returns the closed trades, newest first.
func (e *Engine) History() []broker.TradeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]broker.TradeRecord{}, e.acct.History...)
}

func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct.Active
}

// SetActive flips the scanning flag. StartedAt is set on activation and
// cleared on deactivation. It reports whether anything changed.
func (e *Engine) SetActive(active bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.acct.Active == active {
		return false
	}
	e.acct.Active = active
	if active {
		t := e.now()
		e.acct.StartedAt = &t
	} else {
		e.acct.StartedAt = nil
	}
	return true
}

func (e *Engine) Position(symbol string) (broker.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.acct.OpenPositions[symbol]
	return p, ok
}

func (e *Engine) HasPosition(symbol string) bool {
	_, ok := e.Position(symbol)
	return ok
}

// OpenSymbols lists symbols with an open position, sorted.
func (e *Engine) OpenSymbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.acct.OpenPositions))
	for s := range e.acct.OpenPositions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// CanOpen reports whether a new position for symbol would pass the
// per-symbol and global caps right now.
func (e *Engine) CanOpen(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, open := e.acct.OpenPositions[symbol]
	return !open && len(e.acct.OpenPositions) < e.policy.MaxOpenPositions
}

// LastPrice is the most recent observed price for symbol.
func (e *Engine) LastPrice(symbol string) (market.Tick, error) {
	return e.prices.Get(symbol)
}

type OpenRequest struct {
	Symbol     string
	Side       broker.Side
	Entry      float64
	TakeProfit float64
	StopLoss   float64
	Time       time.Time
}

func (r OpenRequest) validate() error {
	var problems []string
	if r.Symbol == "" {
		problems = append(problems, "symbol is empty")
	}
	if !r.Side.Valid() {
		problems = append(problems, "side must be BUY or SELL")
	}
	if r.Entry <= 0 || r.TakeProfit <= 0 || r.StopLoss <= 0 {
		problems = append(problems, "entry, take-profit and stop-loss must be positive")
	} else if r.Side == broker.Buy && !(r.StopLoss < r.Entry && r.Entry < r.TakeProfit) {
		problems = append(problems, "long needs stop < entry < take-profit")
	} else if r.Side == broker.Sell && !(r.TakeProfit < r.Entry && r.Entry < r.StopLoss) {
		problems = append(problems, "short needs take-profit < entry < stop")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOrder, strings.Join(problems, "; "))
	}
	return nil
}

// Open sizes and opens a position. risk.Evaluate admits it and the
// insert happens under the same lock, so concurrent opens can never
// exceed MaxOpenPositions.
func (e *Engine) Open(ctx context.Context, req OpenRequest) (broker.Position, error) {
	if err := ctx.Err(); err != nil {
		return broker.Position{}, err
	}
	if err := req.validate(); err != nil {
		return broker.Position{}, err
	}
	at := req.Time
	if at.IsZero() {
		at = e.now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	_, symbolOpen := e.acct.OpenPositions[req.Symbol]
	size := risk.Calculate(risk.Inputs{
		Balance:      e.acct.Balance,
		RiskFraction: e.policy.RiskFraction,
		EntryPrice:   req.Entry,
	})
	d := risk.Evaluate(e.policy, risk.TradeIntent{
		Symbol:     req.Symbol,
		Amount:     size.Amount,
		Entry:      req.Entry,
		Stop:       req.StopLoss,
		TakeProfit: req.TakeProfit,
	}, risk.AccountSnapshot{
		Balance:       e.acct.Balance,
		OpenPositions: len(e.acct.OpenPositions),
		SymbolOpen:    symbolOpen,
	})
	switch {
	case d.Allowed:
	case d.Has(risk.CodeSymbolAlreadyOpen):
		return broker.Position{}, fmt.Errorf("open %s: %w", req.Symbol, ErrSymbolAlreadyOpen)
	case d.Has(risk.CodeTooManyOpen):
		return broker.Position{}, fmt.Errorf("open %s: %w (%d)", req.Symbol, ErrMaxOpenPositions, e.policy.MaxOpenPositions)
	default:
		return broker.Position{}, fmt.Errorf("open %s: %w: %s", req.Symbol, ErrRejected, strings.Join(d.Codes(), ","))
	}

	p := broker.Position{
		ID:         id.NewAt(at),
		Symbol:     req.Symbol,
		Side:       req.Side,
		EntryPrice: req.Entry,
		Amount:     size.Amount,
		TakeProfit: req.TakeProfit,
		StopLoss:   req.StopLoss,
		Leverage:   1,
		OpenedAt:   at,
	}
	e.acct.OpenPositions[p.Symbol] = p
	e.prices.Set(market.Tick{Symbol: p.Symbol, Price: p.EntryPrice, Time: at})

	e.log.Info().
		Str("symbol", p.Symbol).
		Str("side", p.Side.String()).
		Float64("entry", p.EntryPrice).
		Float64("amount", p.Amount).
		Float64("notional", p.Notional()).
		Float64("tp", p.TakeProfit).
		Float64("sl", p.StopLoss).
		Float64("rr", d.PlannedRR).
		Msg("position opened")

	return p, nil
}

// UpdatePrice records a price observation and closes the symbol's
// position if it reached take-profit or stop-loss.
func (e *Engine) UpdatePrice(symbol string, price float64, at time.Time) (broker.TradeRecord, bool) {
	if at.IsZero() {
		at = e.now()
	}

	e.mu.Lock()
	e.prices.Set(market.Tick{Symbol: symbol, Price: price, Time: at})

	p, ok := e.acct.OpenPositions[symbol]
	if !ok {
		e.mu.Unlock()
		return broker.TradeRecord{}, false
	}
	reason, hit := exitReason(p, price)
	if !hit {
		e.mu.Unlock()
		return broker.TradeRecord{}, false
	}

	rec := e.closeLocked(p, price, at, reason)
	e.snapshotLocked(at)
	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		listener.OnTradeClosed(rec)
	}
	return rec, true
}

// ClosePosition closes symbol at its last observed price with outcome
// CLOSED.
func (e *Engine) ClosePosition(symbol string) (broker.TradeRecord, error) {
	e.mu.Lock()
	p, ok := e.acct.OpenPositions[symbol]
	if !ok {
		e.mu.Unlock()
		return broker.TradeRecord{}, fmt.Errorf("close %s: %w", symbol, ErrPositionNotFound)
	}
	price, at := e.exitPriceLocked(p)
	rec := e.closeLocked(p, price, at, broker.ReasonManual)
	e.snapshotLocked(at)
	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		listener.OnTradeClosed(rec)
	}
	return rec, nil
}

// CloseAll closes every open position at its last observed price with
// outcome CLOSED, in symbol order.
func (e *Engine) CloseAll() []broker.TradeRecord {
	e.mu.Lock()
	symbols := make([]string, 0, len(e.acct.OpenPositions))
	for s := range e.acct.OpenPositions {
		symbols = append(symbols, s)
	}
	if len(symbols) == 0 {
		e.mu.Unlock()
		return nil
	}
	sort.Strings(symbols)

	var (
		closed []broker.TradeRecord
		last   time.Time
	)
	for _, s := range symbols {
		p := e.acct.OpenPositions[s]
		price, at := e.exitPriceLocked(p)
		closed = append(closed, e.closeLocked(p, price, at, broker.ReasonManual))
		if at.After(last) {
			last = at
		}
	}
	e.snapshotLocked(last)
	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		for _, rec := range closed {
			listener.OnTradeClosed(rec)
		}
	}
	return closed
}

// exitPriceLocked is the last observed price, or the entry price when
// the symbol was never priced since a restore.
func (e *Engine) exitPriceLocked(p broker.Position) (float64, time.Time) {
	tick, err := e.prices.Get(p.Symbol)
	if err != nil {
		e.log.Warn().Str("symbol", p.Symbol).Msg("no price observed, closing at entry")
		return p.EntryPrice, e.now()
	}
	return tick.Price, e.now()
}

func (e *Engine) closeLocked(p broker.Position, price float64, at time.Time, reason string) broker.TradeRecord {
	rec := realize(p, price, at, reason, e.policy.FeeRate)

	delete(e.acct.OpenPositions, p.Symbol)
	e.acct.Balance += rec.PnL
	e.acct.TotalProfit += rec.PnL
	e.acct.History = broker.PrependHistory(e.acct.History, rec, e.policy.HistoryCap)

	if err := e.journal.RecordTrade(rec); err != nil {
		e.log.Error().Err(err).Str("trade", rec.ID).Msg("journal trade")
	}

	e.log.Info().
		Str("symbol", rec.Symbol).
		Str("side", rec.Side.String()).
		Str("outcome", rec.Outcome.String()).
		Str("reason", reason).
		Float64("exit", rec.ExitPrice).
		Float64("pnl", rec.PnL).
		Float64("balance", e.acct.Balance).
		Msg("position closed")

	return rec
}

func (e *Engine) equityLocked() float64 {
	eq := e.acct.Balance
	for _, p := range e.acct.OpenPositions {
		if tick, err := e.prices.Get(p.Symbol); err == nil {
			eq += p.UnrealizedPnL(tick.Price)
		}
	}
	return eq
}

// Equity is balance plus unrealized pnl at the last observed prices.
func (e *Engine) Equity() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.equityLocked()
}

func (e *Engine) snapshotLocked(at time.Time) {
	err := e.journal.RecordEquity(journal.EquitySnapshot{
		Time:          at,
		Balance:       e.acct.Balance,
		Equity:        e.equityLocked(),
		OpenPositions: len(e.acct.OpenPositions),
	})
	if err != nil {
		e.log.Error().Err(err).Msg("journal equity")
	}
}

// Reset returns the account to its initial form: the given balance, no
// positions, no history and inactive.
func (e *Engine) Reset(balance float64) broker.Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.acct = broker.NewAccount(balance)
	e.prices.Reset()
	return e.acct.Clone()
}

// Restore replaces the account with a persisted one. The history is
// trimmed to the policy cap.
func (e *Engine) Restore(acct broker.Account) {
	acct = acct.Clone()
	if acct.OpenPositions == nil {
		acct.OpenPositions = make(map[string]broker.Position)
	}
	if acct.History == nil {
		acct.History = []broker.TradeRecord{}
	}
	if limit := e.policy.HistoryCap; limit > 0 && len(acct.History) > limit {
		acct.History = acct.History[:limit]
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.acct = acct
}
