package broker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSide(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, Buy.Sign())
	assert.Equal(t, -1.0, Sell.Sign())
	assert.False(t, Side(0).Valid())

	s, err := ParseSide(" short ")
	require.NoError(t, err)
	assert.Equal(t, Sell, s)

	_, err = ParseSide("HOLD")
	assert.Error(t, err)

	_, err = Side(0).MarshalText()
	assert.Error(t, err)
}

func TestOutcomeFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Win, OutcomeFor(0.01))
	assert.Equal(t, Loss, OutcomeFor(0))
	assert.Equal(t, Loss, OutcomeFor(-3))
	assert.Equal(t, "CLOSED", Closed.String())
}

func TestTradeRecordJSON(t *testing.T) {
	t.Parallel()

	opened := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := TradeRecord{
		Position: Position{
			ID: "01J", Symbol: "BTCUSDT", Side: Sell, EntryPrice: 100, Amount: 2,
			TakeProfit: 90, StopLoss: 101, Leverage: 1, OpenedAt: opened,
		},
		ExitPrice: 90, ExitTime: opened.Add(time.Hour), Outcome: Win, PnL: 20, Reason: ReasonTakeProfit,
	}

	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "SELL", m["type"])
	assert.Equal(t, "WIN", m["outcome"])
	assert.Equal(t, "BTCUSDT", m["symbol"])

	var back TradeRecord
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, rec, back)
}

func TestPositionPnL(t *testing.T) {
	t.Parallel()

	long := Position{Side: Buy, EntryPrice: 100, Amount: 2}
	short := Position{Side: Sell, EntryPrice: 100, Amount: 2}
	assert.Equal(t, 10.0, long.UnrealizedPnL(105))
	assert.Equal(t, -10.0, short.UnrealizedPnL(105))
	assert.Equal(t, 200.0, long.Notional())
}

func TestPrependHistory(t *testing.T) {
	t.Parallel()

	var h []TradeRecord
	for i := 1; i <= 51; i++ {
		h = PrependHistory(h, TradeRecord{PnL: float64(i)}, 50)
	}
	require.Len(t, h, 50)
	assert.Equal(t, 51.0, h[0].PnL)
	assert.Equal(t, 2.0, h[49].PnL)

	unbounded := PrependHistory(h, TradeRecord{PnL: 52}, 0)
	assert.Len(t, unbounded, 51)
}

func TestAccountClone(t *testing.T) {
	t.Parallel()

	now := time.Now()
	a := NewAccount(1000)
	a.StartedAt = &now
	a.OpenPositions["BTCUSDT"] = Position{ID: "1"}
	a.History = append(a.History, TradeRecord{PnL: 1})

	c := a.Clone()
	c.OpenPositions["ETHUSDT"] = Position{ID: "2"}
	c.History[0].PnL = 99
	*c.StartedAt = now.Add(time.Hour)

	assert.Len(t, a.OpenPositions, 1)
	assert.Equal(t, 1.0, a.History[0].PnL)
	assert.Equal(t, now, *a.StartedAt)
}
