package indicators

import "math"

// SMA returns the arithmetic mean of the last period values, or 0 when
// the series is shorter than period.
func SMA(series []float64, period int) float64 {
	if period <= 0 || len(series) < period {
		return 0
	}
	sum := 0.0
	for _, v := range series[len(series)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// StdDev returns the population standard deviation of the last period
// values around mean, or 0 when the series is shorter than period.
func StdDev(series []float64, period int, mean float64) float64 {
	if period <= 0 || len(series) < period {
		return 0
	}
	sum := 0.0
	for _, v := range series[len(series)-period:] {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(period))
}

// EMA returns the full exponential moving average sequence seeded with
// series[0]. Callers normally use the last element.
func EMA(series []float64, period int) []float64 {
	if len(series) == 0 || period <= 0 {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, len(series))
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = series[i]*k + out[i-1]*(1-k)
	}
	return out
}

// LastEMA is the final value of EMA, or 0 for an empty series.
func LastEMA(series []float64, period int) float64 {
	ema := EMA(series, period)
	if len(ema) == 0 {
		return 0
	}
	return ema[len(ema)-1]
}
