package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/journal"
)

// Result is a summary of a backtest run.
type Result struct {
	Symbol   string
	Strategy string
	Bars     int

	Opening float64
	Balance float64
	Equity  float64
	Open    int

	Signals  int
	Rejected int
	Summary  journal.Summary

	Start time.Time
	End   time.Time

	History []broker.TradeRecord
}

func (r *Result) tally() {
	r.Summary = journal.Summarize(r.History)
}

// Return is the fractional change from the opening balance.
func (r Result) Return() float64 {
	if r.Opening == 0 {
		return 0
	}
	return (r.Balance - r.Opening) / r.Opening
}

func PrintResult(w io.Writer, r Result) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Strategy:      %s\n", r.Strategy)
	fmt.Fprintf(w, "Symbol:        %s\n", r.Symbol)
	fmt.Fprintf(w, "Bars:          %d\n", r.Bars)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(time.RFC3339))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Signals:       %d\n", r.Signals)
	fmt.Fprintf(w, "Rejected:      %d\n", r.Rejected)
	fmt.Fprintf(w, "Trades:        %d\n", r.Summary.Trades)
	fmt.Fprintf(w, "Wins:          %d\n", r.Summary.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", r.Summary.Losses)
	fmt.Fprintf(w, "Closed:        %d\n", r.Summary.Closed)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", r.Summary.WinRate()*100)
	if r.Summary.ProfitFactor > 0 {
		fmt.Fprintf(w, "Profit Factor: %.2f\n", r.Summary.ProfitFactor)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Opening:       %.2f\n", r.Opening)
	fmt.Fprintf(w, "Balance:       %.2f\n", r.Balance)
	fmt.Fprintf(w, "Equity:        %.2f\n", r.Equity)
	fmt.Fprintf(w, "Return:        %.2f%%\n", r.Return()*100)
	fmt.Fprintf(w, "Still Open:    %d\n", r.Open)
}

func (r Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}
