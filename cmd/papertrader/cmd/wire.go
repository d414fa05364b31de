package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/papertrader/advisor"
	"github.com/rustyeddy/papertrader/api"
	"github.com/rustyeddy/papertrader/bot"
	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/feed"
	"github.com/rustyeddy/papertrader/internal/logging"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/metrics"
	"github.com/rustyeddy/papertrader/sim"
	"github.com/rustyeddy/papertrader/strategies"
)

// app is every long-lived component built from one config.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Recorder
	source   feed.Source
	gen      strategies.Generator
	store    journal.Store
	engine   *sim.Engine
	bot      *bot.Bot

	closers []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

func newLogger(cfg *config.Config) (zerolog.Logger, io.Closer, error) {
	return logging.New(cfg.Log)
}

func newSource(cfg *config.Config, log zerolog.Logger) feed.Source {
	if cfg.Feed.Provider == feed.ProviderRandom {
		return feed.NewRandom(uint64(cfg.Feed.Seed))
	}
	return feed.NewBinance(
		feed.WithRestURL(cfg.Feed.RestURL),
		feed.WithWSURL(cfg.Feed.WSURL),
		feed.WithLogger(log.With().Str("component", "feed").Logger()),
	)
}

// newGenerator builds the configured strategy, wrapped by the remote
// validator when one is enabled.
func newGenerator(cfg *config.Config, log zerolog.Logger, m *metrics.Recorder) (strategies.Generator, error) {
	gen, err := strategies.StrategyByName(cfg.Strategy.Name, cfg.Strategy.SniperConfig)
	if err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}
	if !cfg.Advisor.Enabled {
		return gen, nil
	}
	client := advisor.New(cfg.Advisor.URL,
		advisor.WithModel(cfg.Advisor.Model),
		advisor.WithAPIKey(cfg.Advisor.APIKey),
		advisor.WithTimeout(cfg.Advisor.Timeout),
		advisor.WithLogger(log.With().Str("component", "advisor").Logger()),
	)
	return strategies.NewValidated(gen, bot.InstrumentValidator(client, m), log), nil
}

// openStore opens the account store. The SQLite store doubles as the
// trade journal; the others return a nil journal.
func openStore(cfg *config.Config) (journal.Store, journal.Journal, error) {
	switch cfg.Store.Type {
	case "memory":
		return journal.NewMemory(cfg.Risk.HistoryCap), nil, nil
	case "redis":
		s, err := journal.NewRedisStore(
			journal.WithRedisAddr(cfg.Store.Redis.Addr),
			journal.WithRedisPassword(cfg.Store.Redis.Password),
			journal.WithRedisDB(cfg.Store.Redis.DB),
			journal.WithRedisPrefix(cfg.Store.Redis.Prefix),
			journal.WithRedisHistoryLimit(cfg.Risk.HistoryCap),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis store: %w", err)
		}
		return s, nil, nil
	default:
		s, err := journal.NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite store: %w", err)
		}
		return s, s, nil
	}
}

// openJournals adds the optional CSV and Kafka sinks to base.
func openJournals(cfg *config.Config, base journal.Journal) (journal.Multi, []io.Closer, error) {
	var (
		multi   journal.Multi
		closers []io.Closer
	)
	if base != nil {
		multi = append(multi, base)
	}
	if cfg.Journal.TradesCSV != "" {
		j, err := journal.NewCSV(cfg.Journal.TradesCSV, cfg.Journal.EquityCSV)
		if err != nil {
			return nil, closers, fmt.Errorf("csv journal: %w", err)
		}
		multi = append(multi, j)
		closers = append(closers, j)
	}
	if len(cfg.Journal.KafkaBrokers) > 0 {
		j, err := journal.NewKafka(cfg.Journal.KafkaBrokers, cfg.Journal.KafkaTopic)
		if err != nil {
			return nil, closers, fmt.Errorf("kafka journal: %w", err)
		}
		multi = append(multi, j)
		closers = append(closers, j)
	}
	return multi, closers, nil
}

func botConfig(cfg *config.Config) bot.Config {
	return bot.Config{
		Watchlist:       cfg.Watchlist,
		CandleInterval:  cfg.Scan.CandleInterval,
		Limit:           cfg.Scan.Limit,
		ScanEvery:       cfg.Scan.Interval,
		FeedTimeout:     cfg.Scan.FeedTimeout,
		Stream:          cfg.Scan.Stream,
		StartingBalance: cfg.Account.StartingBalance,
	}
}

// buildApp wires the bot from cfg. On error everything opened so far is
// closed.
func buildApp(cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	log, logCloser, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a.log = log
	a.closers = append(a.closers, logCloser)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	a.source = newSource(cfg, log)
	if a.gen, err = newGenerator(cfg, log, a.metrics); err != nil {
		return nil, err
	}

	store, base, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store)

	journals, closers, err := openJournals(cfg, base)
	a.closers = append(a.closers, closers...)
	if err != nil {
		return nil, err
	}

	a.engine = sim.NewEngine(cfg.Account.StartingBalance, cfg.Risk,
		sim.WithJournal(journals),
		sim.WithLogger(log.With().Str("component", "engine").Logger()),
	)

	opts := []bot.Option{
		bot.WithStore(store),
		bot.WithMetrics(a.metrics),
		bot.WithLogger(log.With().Str("component", "bot").Logger()),
	}
	if cfg.Scan.Stream {
		opts = append(opts, bot.WithStreamer(a.source))
	}
	a.bot = bot.New(botConfig(cfg), a.engine, a.source, a.gen, opts...)
	return a, nil
}

func (a *app) server() *api.Server {
	opts := []api.ServerOption{
		api.WithHost(a.cfg.HTTP.Host),
		api.WithPort(a.cfg.HTTP.Port),
		api.WithFeedTimeout(a.cfg.Scan.FeedTimeout),
	}
	if a.cfg.Metrics.Enabled {
		opts = append(opts, api.WithMetrics(a.cfg.Metrics.Path, a.registry))
	}
	return api.NewServer(a.bot, a.source, a.gen, a.log.With().Str("component", "http").Logger(), opts...)
}
