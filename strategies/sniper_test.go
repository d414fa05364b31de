package strategies

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrader/indicators"
	"github.com/rustyeddy/papertrader/market"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func candlesFrom(closes []float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{Time: int64(i+1) * 60, Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return out
}

// 150 bars climbing 50 -> 100 then 100 flat bars at 100.
func uptrendBase() []float64 {
	out := make([]float64, 0, 250)
	for i := 0; i < 150; i++ {
		out = append(out, 50+50*float64(i)/149)
	}
	for i := 0; i < 100; i++ {
		out = append(out, 100)
	}
	return out
}

// 150 bars falling 150 -> 100 then 100 flat bars at 100.
func downtrendBase() []float64 {
	out := make([]float64, 0, 250)
	for i := 0; i < 150; i++ {
		out = append(out, 150-50*float64(i)/149)
	}
	for i := 0; i < 100; i++ {
		out = append(out, 100)
	}
	return out
}

// base followed by n bars stepping away from 100 by step each bar.
func ramp(base []float64, n int, step float64) []float64 {
	out := append([]float64{}, base...)
	for i := 0; i < n; i++ {
		out = append(out, 100+step*float64(i+1))
	}
	return out
}

func flat(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func newTestSniper() *Sniper {
	return NewSniper(SniperDefaults()).WithClock(func() time.Time { return fixedNow })
}

func TestSniperBuyOnPullbackInUptrend(t *testing.T) {
	t.Parallel()

	s := newTestSniper()
	sig := s.Generate(context.Background(), "BTCUSDT", candlesFrom(append(uptrendBase(), 95)))

	require.Equal(t, Buy, sig.Action)
	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.Equal(t, 92.0, sig.Confidence)
	assert.Equal(t, 95.0, sig.Entry)
	assert.InDelta(t, 94.05, sig.StopLoss, 1e-9)
	assert.InDelta(t, 101.92944947177034, sig.TakeProfit, 1e-9)
	assert.Equal(t, "SNIPER LONG: Price at Lower BB + Uptrend + RSI Oversold", sig.Reasoning)
	assert.Equal(t, []string{"BB Squeeze", "Trend Pullback"}, sig.Patterns)
	assert.Equal(t, fixedNow, sig.Timestamp)
	require.Len(t, sig.ChartLines, 3)
	assert.InDelta(t, 97.57055052822966, sig.ChartLines[2].Price, 1e-9)

	snap := s.Analyze(market.Closes(candlesFrom(append(uptrendBase(), 95))))
	assert.InDelta(t, 90.53004867604528, snap.Trend, 1e-9)
	assert.Equal(t, 0.0, snap.RSI)
}

func TestSniperSellOnRallyInDowntrend(t *testing.T) {
	t.Parallel()

	sig := newTestSniper().Generate(context.Background(), "ETHUSDT", candlesFrom(append(downtrendBase(), 105)))

	require.Equal(t, Sell, sig.Action)
	assert.Equal(t, 105.0, sig.Entry)
	assert.InDelta(t, 106.05, sig.StopLoss, 1e-9)
	assert.InDelta(t, 98.07055052822966, sig.TakeProfit, 1e-9)
	assert.Equal(t, []string{"BB Rejection", "Trend Continuation"}, sig.Patterns)
	assert.True(t, sig.Tradable())
}

func TestSniperHolds(t *testing.T) {
	t.Parallel()

	zigzag := append([]float64{}, uptrendBase()[:236]...)
	for i := 0; i < 6; i++ {
		zigzag = append(zigzag, 103, 100)
	}
	zigzag = append(zigzag, 100, 95)

	alternating := make([]float64, 250)
	for i := range alternating {
		alternating[i] = 90
		if i%2 == 1 {
			alternating[i] = 110
		}
	}

	tests := []struct {
		name       string
		closes     []float64
		confidence float64
		reasoning  string
		patterns   []string
	}{
		{
			name:       "insufficient history",
			closes:     uptrendBase()[:199],
			confidence: 0,
			reasoning:  "insufficient data: 199 of 200 bars",
			patterns:   []string{},
		},
		{
			// the drop is at the band with RSI 0 but the trend is down
			name:       "flat then drop without uptrend",
			closes:     append(flat(200, 100), 95),
			confidence: 10,
			reasoning:  "No clear signal. RSI: 0",
			patterns:   []string{},
		},
		{
			name:       "band touch with rsi above threshold",
			closes:     zigzag,
			confidence: 10,
			reasoning:  "No clear signal. RSI: 44",
			patterns:   []string{},
		},
		{
			name:       "squeeze",
			closes:     flat(250, 100),
			confidence: 50,
			reasoning:  "VOLATILITY SQUEEZE: Big move imminent. Waiting for breakout.",
			patterns:   []string{"Squeeze"},
		},
		{
			name:       "wide chop",
			closes:     alternating,
			confidence: 10,
			reasoning:  "No clear signal. RSI: 50",
			patterns:   []string{},
		},
		{
			// lower band is about 94.634, so the buy limit is about 94.823
			name:       "uptrend pullback just outside band tolerance",
			closes:     append(ramp(uptrendBase(), 10, -0.5), 94.825),
			confidence: 10,
			reasoning:  "No clear signal. RSI: 0",
			patterns:   []string{},
		},
		{
			// upper band is about 105.359, so the sell limit is about 105.149
			name:       "downtrend rally just outside band tolerance",
			closes:     append(ramp(downtrendBase(), 10, 0.5), 105.147),
			confidence: 10,
			reasoning:  "No clear signal. RSI: 84",
			patterns:   []string{},
		},
		{
			// exactly 200 bars uses the shorter trend EMA, which sits above 95
			name:       "fallback trend period",
			closes:     append(uptrendBase()[51:], 95),
			confidence: 10,
			reasoning:  "No clear signal. RSI: 0",
			patterns:   []string{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sig := newTestSniper().Generate(context.Background(), "SOLUSDT", candlesFrom(tt.closes))
			assert.Equal(t, Hold, sig.Action)
			assert.Equal(t, tt.confidence, sig.Confidence)
			assert.Equal(t, tt.reasoning, sig.Reasoning)
			assert.Equal(t, tt.patterns, sig.Patterns)
			assert.Zero(t, sig.Entry)
			assert.Zero(t, sig.TakeProfit)
			assert.Zero(t, sig.StopLoss)
			assert.False(t, sig.Tradable())
		})
	}
}

func TestSniperThresholdEdges(t *testing.T) {
	t.Parallel()

	dip := append(uptrendBase(), 103, 102, 101, 100, 99, 98, 97, 96, 95)
	rally := append(downtrendBase(), 97, 98, 99, 100, 101, 102, 103, 104, 105)
	rsiOf := func(closes []float64) float64 {
		return indicators.RSI(closes, SniperDefaults().RSIPeriod)
	}

	tests := []struct {
		name   string
		closes []float64
		tune   func(cfg *SniperConfig, closes []float64)
		want   Action
	}{
		{
			name:   "buy just inside band tolerance",
			closes: append(ramp(uptrendBase(), 10, -0.5), 94.821),
			want:   Buy,
		},
		{
			name:   "buy just outside band tolerance",
			closes: append(ramp(uptrendBase(), 10, -0.5), 94.825),
			want:   Hold,
		},
		{
			name:   "sell just inside band tolerance",
			closes: append(ramp(downtrendBase(), 10, 0.5), 105.151),
			want:   Sell,
		},
		{
			name:   "sell just outside band tolerance",
			closes: append(ramp(downtrendBase(), 10, 0.5), 105.147),
			want:   Hold,
		},
		{
			name:   "rsi below buy threshold",
			closes: dip,
			want:   Buy,
		},
		{
			name:   "rsi equal to buy threshold",
			closes: dip,
			tune:   func(cfg *SniperConfig, closes []float64) { cfg.RSIBuy = rsiOf(closes) },
			want:   Hold,
		},
		{
			name:   "rsi above sell threshold",
			closes: rally,
			want:   Sell,
		},
		{
			name:   "rsi equal to sell threshold",
			closes: rally,
			tune:   func(cfg *SniperConfig, closes []float64) { cfg.RSISell = rsiOf(closes) },
			want:   Hold,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := SniperDefaults()
			if tt.tune != nil {
				tt.tune(&cfg, tt.closes)
			}
			s := NewSniper(cfg).WithClock(func() time.Time { return fixedNow })
			sig := s.Generate(context.Background(), "ADAUSDT", candlesFrom(tt.closes))
			assert.Equal(t, tt.want, sig.Action)
			assert.Equal(t, tt.want != Hold, sig.Tradable())
		})
	}
}

func TestSniperDeterministic(t *testing.T) {
	t.Parallel()

	candles := candlesFrom(append(uptrendBase(), 95))
	s := newTestSniper()
	a := s.Generate(context.Background(), "BTCUSDT", candles)
	b := s.Generate(context.Background(), "BTCUSDT", candles)
	assert.Equal(t, a, b)
}

func TestSniperConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, SniperDefaults().Validate())

	cfg := SniperDefaults()
	cfg.RSIBuy = 70
	assert.ErrorContains(t, cfg.Validate(), "rsi_buy")

	cfg = SniperDefaults()
	cfg.MinHistory = 10
	assert.ErrorContains(t, cfg.Validate(), "min_history")

	cfg = SniperDefaults()
	cfg.StopPct = 0
	assert.Error(t, cfg.Validate())
}

func TestStrategyByName(t *testing.T) {
	t.Parallel()

	g, err := StrategyByName("Sniper", SniperDefaults())
	require.NoError(t, err)
	assert.Equal(t, "sniper", g.Name())

	g, err = StrategyByName("noop", SniperDefaults())
	require.NoError(t, err)
	sig := g.Generate(context.Background(), "XRPUSDT", candlesFrom(flat(3, 1)))
	assert.Equal(t, Hold, sig.Action)
	assert.Equal(t, time.Unix(180, 0).UTC(), sig.Timestamp)

	_, err = StrategyByName("ema-cross", SniperDefaults())
	assert.Error(t, err)

	bad := SniperDefaults()
	bad.RSIBuy = 90
	_, err = StrategyByName("sniper", bad)
	assert.Error(t, err)
}

func TestActionText(t *testing.T) {
	t.Parallel()

	for _, a := range []Action{Hold, Buy, Sell} {
		b, err := a.MarshalText()
		require.NoError(t, err)
		var back Action
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, a, back)
	}

	_, err := ParseAction("short")
	assert.Error(t, err)

	_, ok := Hold.Side()
	assert.False(t, ok)
	side, ok := Sell.Side()
	assert.True(t, ok)
	assert.Equal(t, "SELL", side.String())
}
