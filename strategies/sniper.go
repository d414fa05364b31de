package strategies

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/papertrader/indicators"
	"github.com/rustyeddy/papertrader/market"
)

// SniperConfig parameterizes the mean-reversion-in-trend strategy: buy a
// dip to the lower band in an uptrend, sell a rally to the upper band in
// a downtrend.
type SniperConfig struct {
	BandPeriod    int     `yaml:"band_period" json:"band_period" validate:"gte=2" default:"20"`
	BandK         float64 `yaml:"band_k" json:"band_k" validate:"gt=0" default:"2"`
	TrendPeriod   int     `yaml:"trend_period" json:"trend_period" validate:"gte=2" default:"200"`
	TrendFallback int     `yaml:"trend_fallback" json:"trend_fallback" validate:"gte=2" default:"50"`
	RSIPeriod     int     `yaml:"rsi_period" json:"rsi_period" validate:"gte=1" default:"14"`
	MinHistory    int     `yaml:"min_history" json:"min_history" validate:"gte=1" default:"200"`
	RSIBuy        float64 `yaml:"rsi_buy" json:"rsi_buy" validate:"gt=0,lt=100" default:"40"`
	RSISell       float64 `yaml:"rsi_sell" json:"rsi_sell" validate:"gt=0,lt=100" default:"60"`
	BandTolerance float64 `yaml:"band_tolerance" json:"band_tolerance" validate:"gte=0,lt=1" default:"0.002"`
	StopPct       float64 `yaml:"stop_pct" json:"stop_pct" validate:"gt=0,lt=1" default:"0.01"`
	SqueezeWidth  float64 `yaml:"squeeze_width" json:"squeeze_width" validate:"gte=0" default:"0.02"`
	Confidence    float64 `yaml:"confidence" json:"confidence" validate:"gte=0,lte=100" default:"92"`
}

func SniperDefaults() SniperConfig {
	return SniperConfig{
		BandPeriod:    20,
		BandK:         2,
		TrendPeriod:   200,
		TrendFallback: 50,
		RSIPeriod:     14,
		MinHistory:    200,
		RSIBuy:        40,
		RSISell:       60,
		BandTolerance: 0.002,
		StopPct:       0.01,
		SqueezeWidth:  0.02,
		Confidence:    92,
	}
}

func (c SniperConfig) Validate() error {
	if c.BandPeriod < 2 || c.TrendPeriod < 2 || c.TrendFallback < 2 || c.RSIPeriod < 1 {
		return fmt.Errorf("strategy periods must be positive")
	}
	if c.MinHistory < c.BandPeriod || c.MinHistory < c.RSIPeriod+1 {
		return fmt.Errorf("strategy.min_history %d must cover band_period and rsi_period+1", c.MinHistory)
	}
	if c.RSIBuy >= c.RSISell {
		return fmt.Errorf("strategy.rsi_buy %v must be below rsi_sell %v", c.RSIBuy, c.RSISell)
	}
	if c.StopPct <= 0 || c.StopPct >= 1 {
		return fmt.Errorf("strategy.stop_pct must be in (0, 1)")
	}
	if c.Confidence < 0 || c.Confidence > 100 {
		return fmt.Errorf("strategy.confidence must be in [0, 100]")
	}
	return nil
}

// Sniper is the mean-reversion-in-trend generator.
type Sniper struct {
	cfg SniperConfig
	now func() time.Time
}

func NewSniper(cfg SniperConfig) *Sniper {
	return &Sniper{cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the signal timestamp source.
func (s *Sniper) WithClock(now func() time.Time) *Sniper {
	s.now = now
	return s
}

func (s *Sniper) Name() string { return "sniper" }

func (s *Sniper) Config() SniperConfig { return s.cfg }

// Snapshot is the indicator state a decision was made from.
type Snapshot struct {
	Price float64
	Bands indicators.Bands
	Trend float64
	RSI   float64
}

// Analyze computes the indicator snapshot for the newest close.
func (s *Sniper) Analyze(closes []float64) Snapshot {
	period := s.cfg.TrendPeriod
	if len(closes) <= period {
		period = s.cfg.TrendFallback
	}
	snap := Snapshot{
		Bands: indicators.Bollinger(closes, s.cfg.BandPeriod, s.cfg.BandK),
		Trend: indicators.LastEMA(closes, period),
		RSI:   indicators.RSI(closes, s.cfg.RSIPeriod),
	}
	if n := len(closes); n > 0 {
		snap.Price = closes[n-1]
	}
	return snap
}

func (s *Sniper) Generate(_ context.Context, symbol string, candles []market.Candle) TradeSignal {
	now := s.now()
	if len(candles) < s.cfg.MinHistory {
		return HoldSignal(symbol, 0,
			fmt.Sprintf("insufficient data: %d of %d bars", len(candles), s.cfg.MinHistory), now)
	}

	snap := s.Analyze(market.Closes(candles))
	price, b := snap.Price, snap.Bands
	lines := []ChartLine{
		{Price: snap.Trend, Title: "EMA Trend", Color: "#eab308", Type: "TREND"},
		{Price: b.Upper, Title: "Upper BB", Color: "rgba(59, 130, 246, 0.5)", Type: "BAND_UPPER"},
		{Price: b.Lower, Title: "Lower BB", Color: "rgba(59, 130, 246, 0.5)", Type: "BAND_LOWER"},
	}

	switch {
	case price > snap.Trend && price <= b.Lower*(1+s.cfg.BandTolerance) && snap.RSI < s.cfg.RSIBuy:
		return TradeSignal{
			Symbol:     symbol,
			Action:     Buy,
			Confidence: s.cfg.Confidence,
			Reasoning:  "SNIPER LONG: Price at Lower BB + Uptrend + RSI Oversold",
			Entry:      price,
			TakeProfit: b.Upper,
			StopLoss:   price * (1 - s.cfg.StopPct),
			Patterns:   []string{"BB Squeeze", "Trend Pullback"},
			ChartLines: lines,
			Timestamp:  now,
		}

	case price < snap.Trend && price >= b.Upper*(1-s.cfg.BandTolerance) && snap.RSI > s.cfg.RSISell:
		return TradeSignal{
			Symbol:     symbol,
			Action:     Sell,
			Confidence: s.cfg.Confidence,
			Reasoning:  "SNIPER SHORT: Price at Upper BB + Downtrend + RSI Overbought",
			Entry:      price,
			TakeProfit: b.Lower,
			StopLoss:   price * (1 + s.cfg.StopPct),
			Patterns:   []string{"BB Rejection", "Trend Continuation"},
			ChartLines: lines,
			Timestamp:  now,
		}

	case b.Width() < s.cfg.SqueezeWidth:
		sig := HoldSignal(symbol, 50, "VOLATILITY SQUEEZE: Big move imminent. Waiting for breakout.", now)
		sig.Patterns = []string{"Squeeze"}
		sig.ChartLines = lines
		return sig
	}

	sig := HoldSignal(symbol, 10, fmt.Sprintf("No clear signal. RSI: %.0f", snap.RSI), now)
	sig.ChartLines = lines
	return sig
}
