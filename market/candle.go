package market

import (
	"fmt"
	"math"
	"time"
)

// Candle is one OHLCV bar. Time is the bar open in unix seconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Timestamp returns the bar open as a UTC time.
func (c Candle) Timestamp() time.Time {
	return time.Unix(c.Time, 0).UTC()
}

// Validate reports whether the bar carries usable prices.
func (c Candle) Validate() error {
	for name, v := range map[string]float64{
		"open": c.Open, "high": c.High, "low": c.Low, "close": c.Close,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("candle %d: bad %s %v", c.Time, name, v)
		}
	}
	if c.Volume < 0 || math.IsNaN(c.Volume) {
		return fmt.Errorf("candle %d: bad volume %v", c.Time, c.Volume)
	}
	return nil
}

// Closes extracts the close prices in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// ValidateSeries checks every bar and that times are strictly increasing.
func ValidateSeries(candles []Candle) error {
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return err
		}
		if i > 0 && c.Time <= candles[i-1].Time {
			return fmt.Errorf("candle %d: time %d not after %d", i, c.Time, candles[i-1].Time)
		}
	}
	return nil
}
