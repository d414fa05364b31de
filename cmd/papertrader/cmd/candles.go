package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrader/backtest"
)

var candlesCmd = &cobra.Command{
	Use:   "candles <symbol>",
	Short: "Download candles from the feed as CSV",
	Long: `Fetch historical candles for a symbol and write them as CSV
(time,open,high,low,close,volume). The output can be replayed with
"papertrader backtest --csv".

Example:
  papertrader candles BTCUSDT -i 1h -n 1000 --end 2025-01-01T00:00:00Z -o btc_1h.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runCandles,
}

var (
	candlesInterval string
	candlesLimit    int
	candlesEnd      string
	candlesOut      string
)

func init() {
	rootCmd.AddCommand(candlesCmd)

	candlesCmd.Flags().StringVarP(&candlesInterval, "interval", "i", "", "candle interval (default: scan.candle_interval)")
	candlesCmd.Flags().IntVarP(&candlesLimit, "limit", "n", 500, "number of candles (max 1000)")
	candlesCmd.Flags().StringVar(&candlesEnd, "end", "", "RFC3339 time of the last candle (default: now)")
	candlesCmd.Flags().StringVarP(&candlesOut, "output", "o", "", "output CSV path (default: stdout)")
}

func runCandles(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	var end *time.Time
	if candlesEnd != "" {
		t, err := time.Parse(time.RFC3339, candlesEnd)
		if err != nil {
			return fmt.Errorf("bad --end: %w", err)
		}
		end = &t
	}
	interval := candlesInterval
	if interval == "" {
		interval = cfg.Scan.CandleInterval
	}
	symbol := strings.ToUpper(strings.TrimSpace(args[0]))

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Scan.FeedTimeout)
	defer cancel()
	candles, err := newSource(cfg, log).FetchHistory(ctx, symbol, interval, candlesLimit, end)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", symbol, err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if candlesOut != "" {
		f, err := os.Create(candlesOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", candlesOut, err)
		}
		defer f.Close()
		w = f
	}
	if err := backtest.WriteCSV(w, candles); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if candlesOut != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d candles to %s\n", len(candles), candlesOut)
	}
	return nil
}
