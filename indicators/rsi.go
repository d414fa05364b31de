package indicators

// RSINeutral is returned when there is not enough data.
const RSINeutral = 50.0

// lossFloor keeps rs finite when the window has no down moves.
const lossFloor = 1.0

// RSI sums the close-to-close gains and losses over the last period
// deltas (a plain sum, not Wilder smoothing) and maps gains/losses into
// [0,100]. It returns RSINeutral with fewer than period+1 closes.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return RSINeutral
	}
	var gains, losses float64
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d >= 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	if losses == 0 {
		losses = lossFloor
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}
