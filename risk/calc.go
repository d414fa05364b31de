package risk

import "math"

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// PlannedRisk is the quote amount lost if the stop is hit.
func PlannedRisk(amount, entry, stop float64) float64 {
	return abs(entry-stop) * amount
}

func RR(entry, stop, takeProfit float64) float64 {
	risk := abs(entry - stop)
	reward := abs(takeProfit - entry)
	if risk == 0 {
		return 0
	}
	return reward / risk
}

func RiskPct(plannedRisk, balance float64) float64 {
	if balance <= 0 {
		return math.Inf(1)
	}
	return plannedRisk / balance
}
