package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrader/broker"
)

// FormatTradeOrg renders a closed trade as an Org-mode entry with the
// facts in a PROPERTIES drawer and empty review sections.
func FormatTradeOrg(t broker.TradeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s %s %s (%s)\n", t.Outcome, t.Side, t.Symbol, shortID(t.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TRADE_ID: %s\n", t.ID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", t.Symbol)
	fmt.Fprintf(&b, ":SIDE: %s\n", t.Side)
	fmt.Fprintf(&b, ":AMOUNT: %.8f\n", t.Amount)
	fmt.Fprintf(&b, ":ENTRY_PRICE: %.8g\n", t.EntryPrice)
	fmt.Fprintf(&b, ":EXIT_PRICE: %.8g\n", t.ExitPrice)
	fmt.Fprintf(&b, ":TAKE_PROFIT: %.8g\n", t.TakeProfit)
	fmt.Fprintf(&b, ":STOP_LOSS: %.8g\n", t.StopLoss)
	fmt.Fprintf(&b, ":OPEN_TIME: %s\n", t.OpenedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":CLOSE_TIME: %s\n", t.ExitTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":PNL: %.2f\n", t.PnL)
	if t.Fee != 0 {
		fmt.Fprintf(&b, ":FEE: %.2f\n", t.Fee)
	}
	fmt.Fprintf(&b, ":REASON: %s\n", t.Reason)
	b.WriteString(":END:\n\n")
	b.WriteString("*** Thesis\n- \n\n")
	b.WriteString("*** Review\n- \n")
	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []broker.TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

// FormatSummaryOrg renders a Summary as an Org table.
func FormatSummaryOrg(s Summary) string {
	var b strings.Builder
	b.WriteString("| trades | wins | losses | closed | win rate | net | fees |\n")
	b.WriteString("|--------+------+--------+--------+----------+-----+------|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %.1f%% | %.2f | %.2f |\n",
		s.Trades, s.Wins, s.Losses, s.Closed, 100*s.WinRate(), s.Net, s.Fees)
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
