// Package indicators provides technical analysis indicators over close
// price series. Every function is pure: the same slice always yields the
// same value.
package indicators

// Bands is a Bollinger envelope around a simple moving average.
type Bands struct {
	Middle float64
	Upper  float64
	Lower  float64
	StdDev float64
}

// Width returns (upper-lower)/middle, or 0 when the middle is unavailable.
func (b Bands) Width() float64 {
	if b.Middle == 0 {
		return 0
	}
	return (b.Upper - b.Lower) / b.Middle
}

// Bollinger computes SMA(period) ± k·stddev(period). The zero Bands is
// returned when the series is shorter than period.
func Bollinger(series []float64, period int, k float64) Bands {
	mid := SMA(series, period)
	if mid == 0 {
		return Bands{}
	}
	sd := StdDev(series, period, mid)
	return Bands{
		Middle: mid,
		Upper:  mid + k*sd,
		Lower:  mid - k*sd,
		StdDev: sd,
	}
}
