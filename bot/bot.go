// Package bot runs the scan loop: every tick it walks the watchlist in
// order, lets open positions hit their exits and opens new ones from the
// strategy. It is also the start/stop/reset control surface.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/feed"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/metrics"
	"github.com/rustyeddy/papertrader/sim"
	"github.com/rustyeddy/papertrader/strategies"
)

var (
	ErrInactive       = errors.New("bot is not active")
	ErrTickInProgress = errors.New("scan tick already running")
)

const storeTimeout = 5 * time.Second

type Config struct {
	Watchlist       []string
	CandleInterval  string
	Limit           int
	ScanEvery       time.Duration
	FeedTimeout     time.Duration
	Stream          bool
	StartingBalance float64
}

func DefaultConfig() Config {
	return Config{
		Watchlist:       append([]string{}, market.DefaultWatchlist...),
		CandleInterval:  "1m",
		Limit:           300,
		ScanEvery:       5 * time.Second,
		FeedTimeout:     10 * time.Second,
		StartingBalance: 1000,
	}
}

type Option func(*Bot)

func WithStore(s journal.Store) Option {
	return func(b *Bot) { b.store = s }
}

// WithStreamer enables live kline subscriptions while the bot is active.
func WithStreamer(s feed.Streamer) Option {
	return func(b *Bot) { b.streamer = s }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(b *Bot) { b.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(b *Bot) { b.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(b *Bot) { b.now = now }
}

type Bot struct {
	cfg      Config
	engine   *sim.Engine
	feed     feed.Feed
	gen      strategies.Generator
	streamer feed.Streamer
	store    journal.Store
	metrics  *metrics.Recorder
	log      zerolog.Logger
	now      func() time.Time

	// tickMu is held for the whole of a scan tick.
	tickMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	unsubs []func()
	series map[string]*market.Series

	persistMu sync.Mutex
}

// New wires the bot and registers it as the engine's close listener.
func New(cfg Config, engine *sim.Engine, f feed.Feed, gen strategies.Generator, opts ...Option) *Bot {
	b := &Bot{
		cfg:    cfg,
		engine: engine,
		feed:   f,
		gen:    gen,
		log:    zerolog.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	engine.SetTradeClosedListener(b)
	return b
}

func (b *Bot) Engine() *sim.Engine { return b.engine }

func (b *Bot) Config() Config { return b.cfg }

// Restore loads the saved account into the engine. The scan loop is not
// resumed here; the result reports whether it was running when saved.
func (b *Bot) Restore(ctx context.Context) (bool, error) {
	if b.store == nil {
		return false, nil
	}
	acct, err := b.store.LoadAccount(ctx)
	if errors.Is(err, journal.ErrNoAccount) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load account: %w", err)
	}
	wasActive := acct.Active
	acct.Active = false
	acct.StartedAt = nil
	b.engine.Restore(acct)
	b.metrics.Account(acct.Balance, len(acct.OpenPositions))

	b.log.Info().
		Float64("balance", acct.Balance).
		Int("open", len(acct.OpenPositions)).
		Int("history", len(acct.History)).
		Bool("was_active", wasActive).
		Msg("account restored")
	return wasActive, nil
}

// Start activates scanning. It is a no-op when already running.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.done = make(chan struct{})
	b.engine.SetActive(true)
	if b.streamer != nil && b.cfg.Stream {
		b.unsubs, b.series = b.subscribe(loopCtx)
	}
	done := b.done
	b.mu.Unlock()

	b.persist(ctx)
	b.log.Info().Strs("watchlist", b.cfg.Watchlist).Dur("every", b.cfg.ScanEvery).Msg("bot started")

	go b.loop(loopCtx, done)
	return nil
}

// Stop halts scanning and force-closes every open position at its last
// observed price with outcome CLOSED. The closed trades are returned.
func (b *Bot) Stop(ctx context.Context) []broker.TradeRecord {
	b.halt()
	closed := b.engine.CloseAll()
	b.persist(ctx)
	b.log.Info().Int("closed", len(closed)).Msg("bot stopped")
	return closed
}

// Shutdown stops the loop for process exit. Open positions are kept and
// the saved account stays marked active when the loop was running, so
// the next Restore reports it.
func (b *Bot) Shutdown(ctx context.Context) {
	running := b.Running()
	b.halt()
	if b.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	b.persistMu.Lock()
	defer b.persistMu.Unlock()
	acct := b.engine.Account()
	acct.Active = running
	if err := b.store.SaveAccount(ctx, acct); err != nil {
		b.metrics.StoreError("save_account")
		b.log.Error().Err(err).Msg("save account on shutdown")
	}
	b.log.Info().Bool("was_active", running).Int("open", len(acct.OpenPositions)).Msg("bot shut down")
}

// Toggle starts a stopped bot or stops a running one and reports whether
// it is now active.
func (b *Bot) Toggle(ctx context.Context) (bool, error) {
	if b.Running() {
		b.Stop(ctx)
		return false, nil
	}
	if err := b.Start(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Reset stops scanning and returns the account to the starting balance
// with no positions and no history. Open positions are discarded.
func (b *Bot) Reset(ctx context.Context) broker.Account {
	b.halt()
	acct := b.engine.Reset(b.cfg.StartingBalance)
	b.persist(ctx)
	b.metrics.Account(acct.Balance, 0)
	b.log.Info().Float64("balance", acct.Balance).Msg("account reset")
	return acct
}

func (b *Bot) State() broker.Account { return b.engine.Account() }

func (b *Bot) History() []broker.TradeRecord { return b.engine.History() }

func (b *Bot) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel != nil
}

// halt cancels the loop and the subscriptions, then waits for any tick
// in flight, the loop's or a manual ScanOnce, to finish.
func (b *Bot) halt() {
	b.mu.Lock()
	cancel, done, unsubs := b.cancel, b.done, b.unsubs
	b.cancel, b.done, b.unsubs, b.series = nil, nil, nil, nil
	b.engine.SetActive(false)
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		for _, u := range unsubs {
			u()
		}
		<-done
	}
	b.tickMu.Lock()
	b.tickMu.Unlock()
}

func (b *Bot) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	every := b.cfg.ScanEvery
	if every <= 0 {
		every = 5 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if _, err := b.ScanOnce(ctx); err != nil && !errors.Is(err, ErrInactive) {
			b.log.Warn().Err(err).Msg("scan tick")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// OnTradeClosed persists the close. It runs after the engine lock is
// released, for scan, stream and stop closes alike.
func (b *Bot) OnTradeClosed(rec broker.TradeRecord) {
	b.metrics.PositionClosed(rec.Symbol, rec.Outcome.String(), rec.PnL)
	if b.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	b.persistMu.Lock()
	defer b.persistMu.Unlock()
	if err := b.store.AppendHistory(ctx, rec); err != nil {
		b.metrics.StoreError("append_history")
		b.log.Error().Err(err).Str("trade", rec.ID).Msg("append history")
	}
	b.saveLocked(ctx)
}

// persist writes the current account. A failure is logged and the next
// write carries the full state again.
func (b *Bot) persist(ctx context.Context) {
	acct := b.engine.Account()
	b.metrics.Account(acct.Balance, len(acct.OpenPositions))
	if b.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	b.persistMu.Lock()
	defer b.persistMu.Unlock()
	b.saveLocked(ctx)
}

// saveLocked snapshots inside persistMu so the last write is never older
// than an earlier one.
func (b *Bot) saveLocked(ctx context.Context) {
	if err := b.store.SaveAccount(ctx, b.engine.Account()); err != nil {
		b.metrics.StoreError("save_account")
		b.log.Error().Err(err).Msg("save account")
	}
}
