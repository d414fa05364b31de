package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrader/market"
)

func fixedRandom(seed uint64, now time.Time) *Random {
	r := NewRandom(seed)
	r.Now = func() time.Time { return now }
	return r
}

func TestRandomFetchHistoryDeterministic(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000095, 0)
	a, err := fixedRandom(7, now).FetchHistory(context.Background(), "BTCUSDT", "1m", 300, nil)
	require.NoError(t, err)
	b, err := fixedRandom(7, now).FetchHistory(context.Background(), "BTCUSDT", "1m", 300, nil)
	require.NoError(t, err)

	require.Len(t, a, 300)
	assert.Equal(t, a, b)
	require.NoError(t, market.ValidateSeries(a))
	assert.Equal(t, int64(1700000040), a[len(a)-1].Time)
	assert.Equal(t, int64(60), a[1].Time-a[0].Time)

	other, err := fixedRandom(7, now).FetchHistory(context.Background(), "ETHUSDT", "1m", 300, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a[len(a)-1].Close, other[len(other)-1].Close)
}

func TestRandomFetchHistoryEndTime(t *testing.T) {
	t.Parallel()

	end := time.Unix(1700003600, 0)
	candles, err := NewRandom(1).FetchHistory(context.Background(), "SOLUSDT", "1h", 24, &end)
	require.NoError(t, err)
	require.Len(t, candles, 24)
	assert.Equal(t, int64(1700002800), candles[23].Time)
	for _, c := range candles {
		assert.LessOrEqual(t, c.Low, c.Close)
		assert.GreaterOrEqual(t, c.High, c.Close)
	}
}

func TestRandomRejectsBadArgs(t *testing.T) {
	t.Parallel()

	r := NewRandom(1)
	_, err := r.FetchHistory(context.Background(), "BTCUSDT", "2m", 10, nil)
	assert.Error(t, err)
	_, err = r.FetchHistory(context.Background(), "BTCUSDT", "1m", 0, nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.FetchHistory(ctx, "BTCUSDT", "1m", 10, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRandomSubscribe(t *testing.T) {
	t.Parallel()

	r := NewRandom(3)
	r.TickEvery = 5 * time.Millisecond

	got := make(chan market.Candle, 64)
	stop, err := r.Subscribe(context.Background(), "BTCUSDT", "1m", func(c market.Candle) {
		select {
		case got <- c:
		default:
		}
	})
	require.NoError(t, err)

	var first, second market.Candle
	select {
	case first = <-got:
	case <-time.After(time.Second):
		t.Fatal("no update")
	}
	select {
	case second = <-got:
	case <-time.After(time.Second):
		t.Fatal("no second update")
	}
	stop()

	assert.GreaterOrEqual(t, second.Time, first.Time)
	require.NoError(t, first.Validate())
	require.NoError(t, second.Validate())
}
