package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot and its HTTP control surface",
	Long: `Run the scan loop and serve the HTTP API until interrupted.

The saved account is restored first. Scanning resumes when it was active
at the last shutdown, or when --start is given; otherwise it waits for
POST /api/start.

Example:
  papertrader run --config papertrader.yaml --start`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var runStart bool

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runStart, "start", false, "start scanning immediately")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wasActive, err := a.bot.Restore(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("restore failed, starting from a fresh account")
	}

	a.log.Info().
		Str("feed", cfg.Feed.Provider).
		Str("store", cfg.Store.Type).
		Str("strategy", a.gen.Name()).
		Strs("watchlist", cfg.Watchlist).
		Msg("papertrader ready")

	if wasActive || runStart {
		if err := a.bot.Start(ctx); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}

	err = a.server().Run(ctx)
	a.bot.Shutdown(context.Background())
	return err
}
