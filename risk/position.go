package risk

import "math"

type Inputs struct {
	Balance      float64
	RiskFraction float64
	EntryPrice   float64
}

type Result struct {
	Amount     float64 // base-asset quantity
	RiskAmount float64 // quote committed
}

// Calculate sizes a position as (balance × riskFraction) / entry.
func Calculate(in Inputs) Result {
	if in.EntryPrice <= 0 || in.Balance <= 0 || in.RiskFraction <= 0 {
		return Result{}
	}
	riskAmt := in.Balance * in.RiskFraction
	return Result{
		Amount:     riskAmt / in.EntryPrice,
		RiskAmount: riskAmt,
	}
}

// PnL is (exit - entry) × amount, negated for shorts.
func PnL(sign, entry, exit, amount float64) float64 {
	return (exit - entry) * amount * sign
}

// Fee is rate × entry notional.
func Fee(rate, entry, amount float64) float64 {
	return rate * math.Abs(entry*amount)
}
