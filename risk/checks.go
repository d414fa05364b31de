package risk

import "fmt"

// Violation codes reported by Evaluate.
const (
	CodeNoStopOrEntry       = "NO_STOP_OR_ENTRY"
	CodeNoUnits             = "NO_UNITS"
	CodeSymbolAlreadyOpen   = "SYMBOL_ALREADY_OPEN"
	CodeTooManyOpen         = "TOO_MANY_OPEN_POSITIONS"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	PlannedRisk    float64
	PlannedRiskPct float64
	PlannedRR      float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Has reports whether code is among the violations.
func (d Decision) Has(code string) bool {
	for _, v := range d.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// Codes returns the violation codes in order.
func (d Decision) Codes() []string {
	out := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		out[i] = v.Code
	}
	return out
}

// Evaluate checks an entry against the policy before the engine opens it.
func Evaluate(p Policy, intent TradeIntent, acct AccountSnapshot) Decision {
	d := Decision{Allowed: true}

	if intent.Entry <= 0 || intent.Stop <= 0 || intent.TakeProfit <= 0 {
		d.add(CodeNoStopOrEntry, "entry/stop/take-profit must be set")
		return d
	}
	if intent.Amount <= 0 {
		d.add(CodeNoUnits, "amount must be positive")
		return d
	}

	d.PlannedRisk = PlannedRisk(intent.Amount, intent.Entry, intent.Stop)
	d.PlannedRiskPct = RiskPct(d.PlannedRisk, acct.Balance)
	d.PlannedRR = RR(intent.Entry, intent.Stop, intent.TakeProfit)

	if acct.SymbolOpen {
		d.add(CodeSymbolAlreadyOpen, fmt.Sprintf("%s already has an open position", intent.Symbol))
	}
	if acct.OpenPositions >= p.MaxOpenPositions {
		d.add(CodeTooManyOpen,
			fmt.Sprintf("open positions %d >= max %d", acct.OpenPositions, p.MaxOpenPositions))
	}
	if notional := intent.Entry * intent.Amount; notional > acct.Balance*(1+1e-9) {
		d.add(CodeInsufficientBalance,
			fmt.Sprintf("notional %.2f exceeds balance %.2f", notional, acct.Balance))
	}

	return d
}
