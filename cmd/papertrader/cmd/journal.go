package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query and display closed trades from the SQLite journal as Org entries.

Subcommands:
  trade   - Get details of a specific trade by ID
  today   - List trades closed today
  day     - List trades closed on a specific day
  recent  - List the most recent trades

Examples:
  papertrader journal trade <trade-id>
  papertrader journal today
  papertrader journal day 2025-01-15
  papertrader journal recent -n 20`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades closed today",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recent trades",
	Args:  cobra.NoArgs,
	RunE:  runJournalRecent,
}

var (
	journalDBPath string
	journalRecent int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalRecentCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to SQLite journal DB (default: store.sqlite_path)")
	journalRecentCmd.Flags().IntVarP(&journalRecent, "count", "n", 10, "number of trades")
}

func openJournal() (*journal.SQLite, error) {
	path := journalDBPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		path = cfg.Store.SQLitePath
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	return listDay(cmd.OutOrStdout(), time.Now().In(time.Local).Format("2006-01-02"))
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	return listDay(cmd.OutOrStdout(), args[0])
}

func listDay(w io.Writer, day string) error {
	start, end, err := dayBounds(time.Local, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListTradesClosedBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	printTrades(w, recs)
	return nil
}

func runJournalRecent(cmd *cobra.Command, args []string) error {
	if journalRecent < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListRecentTrades(journalRecent)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	printTrades(cmd.OutOrStdout(), recs)
	return nil
}

func printTrades(w io.Writer, recs []broker.TradeRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no trades")
		return
	}
	fmt.Fprintln(w, journal.FormatSummaryOrg(journal.Summarize(recs)))
	fmt.Fprintln(w, journal.FormatTradesOrg(recs))
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}
