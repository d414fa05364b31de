package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var signalCmd = &cobra.Command{
	Use:   "signal <symbol>",
	Short: "Fetch candles and print the current signal for a symbol",
	Long: `Run the configured strategy once against fresh candles without
opening anything.

Example:
  papertrader signal BTCUSDT --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSignal,
}

var signalJSON bool

func init() {
	rootCmd.AddCommand(signalCmd)

	signalCmd.Flags().BoolVar(&signalJSON, "json", false, "print the signal as JSON")
}

func runSignal(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	gen, err := newGenerator(cfg, log, nil)
	if err != nil {
		return err
	}
	src := newSource(cfg, log)

	symbol := strings.ToUpper(strings.TrimSpace(args[0]))
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Scan.FeedTimeout)
	defer cancel()
	candles, err := src.FetchHistory(ctx, symbol, cfg.Scan.CandleInterval, cfg.Scan.Limit, nil)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", symbol, err)
	}

	sig := gen.Generate(cmd.Context(), symbol, candles)
	out := cmd.OutOrStdout()
	if signalJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sig)
	}
	fmt.Fprintln(out, sig.String())
	return nil
}
