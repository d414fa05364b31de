package sim

import (
	"time"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/risk"
)

// realize turns an open position into a closed trade record. pnl is net
// of the fee.
func realize(p broker.Position, exit float64, at time.Time, reason string, feeRate float64) broker.TradeRecord {
	fee := risk.Fee(feeRate, p.EntryPrice, p.Amount)
	pnl := risk.PnL(p.Side.Sign(), p.EntryPrice, exit, p.Amount) - fee

	outcome := broker.OutcomeFor(pnl)
	if reason == broker.ReasonManual {
		outcome = broker.Closed
	}

	return broker.TradeRecord{
		Position:  p,
		ExitPrice: exit,
		ExitTime:  at,
		Outcome:   outcome,
		PnL:       pnl,
		Fee:       fee,
		Reason:    reason,
	}
}
