package feed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rustyeddy/papertrader/market"
)

// Random is an offline feed producing a seeded random walk per symbol.
// The same seed, symbol, interval and end bar always give the same history.
type Random struct {
	Seed       uint64
	Volatility float64
	TickEvery  time.Duration
	Now        func() time.Time
}

func NewRandom(seed uint64) *Random {
	return &Random{
		Seed:       seed,
		Volatility: 0.002,
		TickEvery:  time.Second,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *Random) rng(symbol string, salt int64) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return rand.New(rand.NewPCG(r.Seed^h.Sum64(), uint64(salt)))
}

func basePrice(symbol string) float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return 10 + float64(h.Sum32()%1000)
}

func (r *Random) step(rng *rand.Rand, price float64) float64 {
	next := price * (1 + rng.NormFloat64()*r.Volatility)
	return math.Max(next, 0.0001)
}

func (r *Random) bar(rng *rand.Rand, t int64, open float64) market.Candle {
	c := market.Candle{Time: t, Open: open, High: open, Low: open, Close: open}
	for i := 0; i < 4; i++ {
		c.Close = r.step(rng, c.Close)
		c.High = math.Max(c.High, c.Close)
		c.Low = math.Min(c.Low, c.Close)
	}
	c.Volume = 1 + rng.Float64()*100
	return c
}

func (r *Random) FetchHistory(ctx context.Context, symbol, interval string, limit int, endTime *time.Time) ([]market.Candle, error) {
	if err := checkInterval(interval); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	step := market.Intervals[interval]
	end := r.Now()
	if endTime != nil {
		end = *endTime
	}
	lastOpen := end.Unix() / step * step
	first := lastOpen - int64(limit-1)*step

	rng := r.rng(symbol, lastOpen)
	out := make([]market.Candle, 0, limit)
	price := basePrice(symbol)
	for i := 0; i < limit; i++ {
		c := r.bar(rng, first+int64(i)*step, price)
		out = append(out, c)
		price = c.Close
	}
	return out, nil
}

// Subscribe revises the current bar every TickEvery and opens a new bar
// when the interval boundary passes.
func (r *Random) Subscribe(ctx context.Context, symbol, interval string, onUpdate func(market.Candle)) (func(), error) {
	if err := checkInterval(interval); err != nil {
		return nil, err
	}
	if onUpdate == nil {
		return nil, fmt.Errorf("onUpdate is required")
	}
	hist, err := r.FetchHistory(ctx, symbol, interval, 1, nil)
	if err != nil {
		return nil, err
	}

	step := market.Intervals[interval]
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	cur := hist[0]
	rng := r.rng(symbol, cur.Time+1)

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.TickEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				open := r.Now().Unix() / step * step
				if open > cur.Time {
					cur = market.Candle{Time: open, Open: cur.Close, High: cur.Close, Low: cur.Close, Close: cur.Close}
				}
				cur.Close = r.step(rng, cur.Close)
				cur.High = math.Max(cur.High, cur.Close)
				cur.Low = math.Min(cur.Low, cur.Close)
				cur.Volume += rng.Float64()
				onUpdate(cur)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}
