package sim

import "github.com/rustyeddy/papertrader/broker"

func hitTakeProfit(p broker.Position, price float64) bool {
	if p.Side == broker.Sell {
		return price <= p.TakeProfit
	}
	return price >= p.TakeProfit
}

func hitStopLoss(p broker.Position, price float64) bool {
	if p.Side == broker.Sell {
		return price >= p.StopLoss
	}
	return price <= p.StopLoss
}

// exitReason checks take-profit before stop-loss, so a gap through both
// levels counts as a take-profit.
func exitReason(p broker.Position, price float64) (string, bool) {
	switch {
	case hitTakeProfit(p, price):
		return broker.ReasonTakeProfit, true
	case hitStopLoss(p, price):
		return broker.ReasonStopLoss, true
	}
	return "", false
}
