package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrader/config"
)

var rootCmd = &cobra.Command{
	Use:   "papertrader",
	Short: "A simulated crypto trading bot",
	Long: `Papertrader scans a watchlist of crypto pairs on a fixed interval, runs a
mean-reversion-in-trend strategy over each pair's candles and manages
simulated positions with fixed take-profit and stop-loss levels.

It provides:
  - A scan loop with an HTTP control surface (start, stop, reset, state)
  - Binance or deterministic random market data
  - An optional remote validator for candidate signals
  - SQLite or Redis account persistence
  - Trade journals in SQLite, CSV and Kafka
  - Backtests over historical candles

Configuration is read from --config and PAPERTRADER_* environment variables.`,
	SilenceUsage: true,
}

var cfgFile string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file, YAML or JSON (default: built-in defaults)")
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithEnv(cfgFile, os.Getenv)
}
