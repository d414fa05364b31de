package strategies

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/papertrader/market"
)

// Validator reviews a candidate signal. It may change the action, which
// the caller treats as a rejection.
type Validator interface {
	Validate(ctx context.Context, candles []market.Candle, candidate TradeSignal) (TradeSignal, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, candles []market.Candle, candidate TradeSignal) (TradeSignal, error)

func (f ValidatorFunc) Validate(ctx context.Context, candles []market.Candle, candidate TradeSignal) (TradeSignal, error) {
	return f(ctx, candles, candidate)
}

// Validated wraps a generator so that every BUY/SELL is passed through a
// validator. HOLD signals are never sent.
type Validated struct {
	Generator
	validator Validator
	log       zerolog.Logger
}

func NewValidated(g Generator, v Validator, log zerolog.Logger) *Validated {
	return &Validated{Generator: g, validator: v, log: log}
}

func (v *Validated) Name() string { return v.Generator.Name() + "+validated" }

func (v *Validated) Generate(ctx context.Context, symbol string, candles []market.Candle) TradeSignal {
	candidate := v.Generator.Generate(ctx, symbol, candles)
	if candidate.Action == Hold || v.validator == nil {
		return candidate
	}
	got, err := v.validator.Validate(ctx, candles, candidate)
	if err != nil {
		v.log.Warn().Err(err).Str("symbol", symbol).Msg("signal validator unavailable")
	}
	out := Merge(candidate, got, err)
	if out.Action != candidate.Action {
		v.log.Info().Str("symbol", symbol).Str("action", candidate.Action.String()).Msg("signal rejected by validator")
	}
	return out
}

// Merge combines the algorithmic candidate with the validator's answer.
// A validator error keeps the candidate.
func Merge(candidate, got TradeSignal, err error) TradeSignal {
	if err != nil {
		out := candidate
		out.Reasoning = candidate.Reasoning + " (AI Unreachable)"
		return out
	}

	if got.Action != candidate.Action {
		out := HoldSignal(candidate.Symbol, got.Confidence,
			fmt.Sprintf("AI rejected %s: %s", candidate.Action, got.Reasoning), candidate.Timestamp)
		out.ChartLines = candidate.ChartLines
		return out
	}

	out := candidate
	if got.Confidence > 0 {
		out.Confidence = clamp(got.Confidence, 0, 100)
	}
	if got.Reasoning != "" {
		out.Reasoning = "AI: " + got.Reasoning
	}
	if got.TakeProfit > 0 {
		out.TakeProfit = got.TakeProfit
	}
	if got.StopLoss > 0 {
		out.StopLoss = got.StopLoss
	}
	if len(got.Patterns) > 0 {
		out.Patterns = got.Patterns
	}
	if !levelsConsistent(out) {
		out.TakeProfit, out.StopLoss = candidate.TakeProfit, candidate.StopLoss
	}
	return out
}

// levelsConsistent keeps TP on the profit side and SL on the loss side of entry.
func levelsConsistent(s TradeSignal) bool {
	switch s.Action {
	case Buy:
		return s.TakeProfit > s.Entry && s.StopLoss < s.Entry
	case Sell:
		return s.TakeProfit < s.Entry && s.StopLoss > s.Entry
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
