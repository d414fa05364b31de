// Package feed supplies candles: a history fetch for each scan and a live
// kline stream that revises the in-progress bar.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/papertrader/market"
)

const (
	ProviderBinance = "binance"
	ProviderRandom  = "random"
)

// ErrMalformed is returned when a payload cannot be turned into candles.
var ErrMalformed = errors.New("malformed feed payload")

// Feed fetches candles in ascending time order. A nil endTime means the
// most recent bars.
type Feed interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int, endTime *time.Time) ([]market.Candle, error)
}

// Streamer delivers in-progress and new bars until the returned stop
// function is called or ctx ends.
type Streamer interface {
	Subscribe(ctx context.Context, symbol, interval string, onUpdate func(market.Candle)) (func(), error)
}

// Source is a feed that can also stream.
type Source interface {
	Feed
	Streamer
}

// StatusError is a non-2xx answer from an upstream API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed status %d: %s", e.Code, e.Body)
}

// RateLimited reports 429 and the 418 ban Binance returns after repeated 429s.
func (e *StatusError) RateLimited() bool {
	return e.Code == 429 || e.Code == 418
}

// Kind classifies a feed error for logs and metrics.
func Kind(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.As(err, &se) && se.RateLimited():
		return "rate_limit"
	case errors.As(err, &se):
		return "status"
	}
	return "transport"
}

func checkInterval(interval string) error {
	if _, ok := market.Intervals[interval]; !ok {
		return fmt.Errorf("unsupported interval %q", interval)
	}
	return nil
}
