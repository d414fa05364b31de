package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrader/backtest"
	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/sim"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest <symbol>",
	Short: "Replay recent candles for a symbol through the strategy",
	Long: `Fetch up to --bars historical candles from the configured feed and run
them bar by bar through the strategy and a fresh simulated account. With
--csv the candles are read from a file instead (see "papertrader candles").
The remote validator is never consulted.

Examples:
  papertrader backtest ETHUSDT --bars 1000 --interval 5m --close-end
  papertrader backtest ETHUSDT --csv ethusdt_5m.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runBacktest,
}

var (
	backtestBars     int
	backtestInterval string
	backtestWindow   int
	backtestCloseEnd bool
	backtestCSV      string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().IntVarP(&backtestBars, "bars", "n", 1000, "number of candles to replay (max 1000)")
	backtestCmd.Flags().StringVarP(&backtestInterval, "interval", "i", "", "candle interval (default: scan.candle_interval)")
	backtestCmd.Flags().IntVar(&backtestWindow, "window", 0, "trailing candles per decision, 0 for all")
	backtestCmd.Flags().BoolVar(&backtestCloseEnd, "close-end", false, "close open positions at the last bar")
	backtestCmd.Flags().StringVar(&backtestCSV, "csv", "", "read candles from a CSV file instead of the feed")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	cfg.Advisor.Enabled = false
	gen, err := newGenerator(cfg, log, nil)
	if err != nil {
		return err
	}

	symbol := strings.ToUpper(strings.TrimSpace(args[0]))
	candles, err := backtestCandles(cmd.Context(), cfg, log, symbol)
	if err != nil {
		return err
	}

	runner := &backtest.Runner{
		Engine:   sim.NewEngine(cfg.Account.StartingBalance, cfg.Risk, sim.WithLogger(log.With().Str("component", "backtest").Logger())),
		Strategy: gen,
		Window:   backtestWindow,
		Options:  backtest.Options{CloseEnd: backtestCloseEnd},
	}
	res, err := runner.Run(cmd.Context(), symbol, candles)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	backtest.PrintResult(cmd.OutOrStdout(), res)
	return nil
}

func backtestCandles(ctx context.Context, cfg *config.Config, log zerolog.Logger, symbol string) ([]market.Candle, error) {
	if backtestCSV != "" {
		candles, err := backtest.ReadCSVFile(backtestCSV)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", backtestCSV, err)
		}
		return candles, nil
	}

	interval := backtestInterval
	if interval == "" {
		interval = cfg.Scan.CandleInterval
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Scan.FeedTimeout)
	defer cancel()
	candles, err := newSource(cfg, log).FetchHistory(ctx, symbol, interval, backtestBars, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	return candles, nil
}
