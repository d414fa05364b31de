package journal

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrader/broker"
)

var t0 = time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

func sampleTrade(id string, pnl float64, closeAt time.Time) broker.TradeRecord {
	outcome := broker.OutcomeFor(pnl)
	return broker.TradeRecord{
		Position: broker.Position{
			ID: id, Symbol: "BTCUSDT", Side: broker.Buy, EntryPrice: 95, Amount: 1.5,
			TakeProfit: 101.5, StopLoss: 94.05, Leverage: 1, OpenedAt: t0,
		},
		ExitPrice: 95 + pnl/1.5,
		ExitTime:  closeAt,
		Outcome:   outcome,
		PnL:       pnl,
		Reason:    broker.ReasonTakeProfit,
	}
}

type recordingJournal struct {
	trades []broker.TradeRecord
	equity []EquitySnapshot
	err    error
	closed bool
}

func (r *recordingJournal) RecordTrade(rec broker.TradeRecord) error {
	r.trades = append(r.trades, rec)
	return r.err
}

func (r *recordingJournal) RecordEquity(e EquitySnapshot) error {
	r.equity = append(r.equity, e)
	return r.err
}

func (r *recordingJournal) Close() error {
	r.closed = true
	return r.err
}

func TestMulti(t *testing.T) {
	t.Parallel()

	a := &recordingJournal{}
	b := &recordingJournal{err: errors.New("disk full")}
	m := Multi{a, b, Nop{}}

	err := m.RecordTrade(sampleTrade("T1", 3, t0))
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, a.trades, 1)
	assert.Len(t, b.trades, 1)

	assert.Error(t, m.RecordEquity(EquitySnapshot{Time: t0, Balance: 1}))
	assert.Len(t, a.equity, 1)

	assert.Error(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)

	assert.NoError(t, Multi{a}.Close())
}

func TestCSVJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tp, ep := filepath.Join(dir, "trades.csv"), filepath.Join(dir, "equity.csv")
	j, err := NewCSV(tp, ep)
	require.NoError(t, err)

	require.NoError(t, j.RecordTrade(sampleTrade("T1", 9.75, t0.Add(time.Hour))))
	require.NoError(t, j.RecordEquity(EquitySnapshot{Time: t0, Balance: 1009.75, Equity: 1009.75}))
	require.NoError(t, j.Close())

	trades, err := os.ReadFile(tp)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(trades)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "trade_id,symbol,side"))
	assert.Equal(t,
		"T1,BTCUSDT,BUY,1.500000,95.000000,101.500000,101.500000,94.050000,2025-02-03T04:05:06Z,2025-02-03T05:05:06Z,WIN,9.750000,0.000000,TakeProfit",
		lines[1])

	equity, err := os.ReadFile(ep)
	require.NoError(t, err)
	assert.Contains(t, string(equity), "2025-02-03T04:05:06Z,1009.750000,1009.750000,0")
}

func TestFormatTradeOrg(t *testing.T) {
	t.Parallel()

	rec := sampleTrade("01JABCDEFGHJKMNPQRSTVWXYZ0", -1.5, t0.Add(2*time.Hour))
	rec.Reason = broker.ReasonStopLoss
	out := FormatTradeOrg(rec)

	assert.Contains(t, out, "** LOSS BUY BTCUSDT (STVWXYZ0)")
	assert.Contains(t, out, ":TRADE_ID: 01JABCDEFGHJKMNPQRSTVWXYZ0")
	assert.Contains(t, out, ":OPEN_TIME: 2025-02-03T04:05:06Z")
	assert.Contains(t, out, ":CLOSE_TIME: 2025-02-03T06:05:06Z")
	assert.Contains(t, out, ":PNL: -1.50")
	assert.Contains(t, out, ":REASON: StopLoss")
	assert.NotContains(t, out, ":FEE:")
	assert.Contains(t, out, "*** Review")

	both := FormatTradesOrg([]broker.TradeRecord{rec, sampleTrade("short", 2, t0)})
	assert.Equal(t, 2, strings.Count(both, ":PROPERTIES:"))
	assert.Contains(t, both, "(short)")
	assert.Equal(t, "", FormatTradesOrg(nil))
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	closed := sampleTrade("C", -1, t0)
	closed.Outcome = broker.Closed
	closed.Fee = 0.5
	s := Summarize([]broker.TradeRecord{
		sampleTrade("A", 6, t0),
		sampleTrade("B", -2, t0),
		closed,
	})

	assert.Equal(t, 3, s.Trades)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, 1, s.Closed)
	assert.InDelta(t, 6.0, s.GrossProfit, 1e-12)
	assert.InDelta(t, 3.0, s.GrossLoss, 1e-12)
	assert.InDelta(t, 3.0, s.Net, 1e-12)
	assert.InDelta(t, 2.0, s.ProfitFactor, 1e-12)
	assert.InDelta(t, 0.5, s.WinRate(), 1e-12)
	assert.InDelta(t, 0.5, s.Fees, 1e-12)
	assert.Contains(t, FormatSummaryOrg(s), "| 3 | 1 | 1 | 1 | 50.0% | 3.00 | 0.50 |")

	assert.Equal(t, 0.0, Summarize(nil).WinRate())
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory(2)

	_, err := m.LoadAccount(ctx)
	assert.ErrorIs(t, err, ErrNoAccount)

	acct := broker.NewAccount(1000)
	acct.OpenPositions["ETHUSDT"] = broker.Position{ID: "P1", Symbol: "ETHUSDT", Side: broker.Sell}
	require.NoError(t, m.SaveAccount(ctx, acct))

	acct.OpenPositions["SOLUSDT"] = broker.Position{ID: "P2"}
	got, err := m.LoadAccount(ctx)
	require.NoError(t, err)
	assert.Len(t, got.OpenPositions, 1)

	for _, id := range []string{"A", "B", "C", "C"} {
		require.NoError(t, m.AppendHistory(ctx, sampleTrade(id, 1, t0)))
	}
	h, err := m.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, "C", h[0].ID)
	assert.Equal(t, "B", h[1].ID)
	assert.NoError(t, m.Close())
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaJournal(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	j := &KafkaJournal{writer: w, timeout: time.Second}

	require.NoError(t, j.RecordTrade(sampleTrade("T1", 4, t0)))
	require.NoError(t, j.RecordEquity(EquitySnapshot{Time: t0, Balance: 1004, Equity: 1004}))
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "BTCUSDT", string(w.msgs[0].Key))
	assert.Contains(t, string(w.msgs[0].Value), `"type":"trade"`)
	assert.Contains(t, string(w.msgs[0].Value), `"outcome":"WIN"`)
	assert.Equal(t, "equity", string(w.msgs[1].Key))
	assert.Contains(t, string(w.msgs[1].Value), `"balance":1004`)

	w.err = errors.New("broker down")
	assert.Error(t, j.RecordTrade(sampleTrade("T2", 1, t0)))

	require.NoError(t, j.Close())
	assert.True(t, w.closed)

	_, err := NewKafka(nil, "trades")
	assert.Error(t, err)
	_, err = NewKafka([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}

func TestRedisAccountEncoding(t *testing.T) {
	t.Parallel()

	started := t0
	acct := broker.NewAccount(1234.5)
	acct.Active = true
	acct.StartedAt = &started
	acct.TotalProfit = 234.5
	acct.OpenPositions["BTCUSDT"] = broker.Position{ID: "P1", Symbol: "BTCUSDT", Side: broker.Buy, EntryPrice: 95, Amount: 1, OpenedAt: t0}
	acct.History = []broker.TradeRecord{sampleTrade("T1", 1, t0)}

	b, err := encodeAccount(acct)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "history")

	back, err := decodeAccount(b)
	require.NoError(t, err)
	acct.History = []broker.TradeRecord{}
	assert.Equal(t, acct, back)
}

// replyHook answers commands from a map instead of a server and counts
// how they were sent.
type replyHook struct {
	mu      sync.Mutex
	values  map[string]string
	lists   map[string][]string
	singles int
	txs     [][]string
}

func (h *replyHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *replyHook) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.singles++
		h.answer(cmd)
		return cmd.Err()
	}
}

func (h *replyHook) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		var names []string
		var first error
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
			h.answer(cmd)
			if err := cmd.Err(); err != nil && first == nil {
				first = err
			}
		}
		h.txs = append(h.txs, names)
		return first
	}
}

func (h *replyHook) answer(cmd redis.Cmder) {
	switch c := cmd.(type) {
	case *redis.StringCmd:
		v, ok := h.values[c.Args()[1].(string)]
		if !ok {
			c.SetErr(redis.Nil)
			return
		}
		c.SetVal(v)
	case *redis.StringSliceCmd:
		c.SetVal(h.lists[c.Args()[1].(string)])
	}
}

func hookedRedis(t *testing.T, h *replyHook) *RedisStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	client.AddHook(h)
	t.Cleanup(func() { _ = client.Close() })
	return &RedisStore{client: client, cfg: RedisConfig{Prefix: "pt", HistoryLimit: 50}}
}

func TestRedisLoadAccountSingleTransaction(t *testing.T) {
	t.Parallel()

	acct := broker.NewAccount(1500)
	doc, err := encodeAccount(acct)
	require.NoError(t, err)
	rec, err := json.Marshal(sampleTrade("T9", 2, t0))
	require.NoError(t, err)

	tests := []struct {
		name    string
		values  map[string]string
		lists   map[string][]string
		wantErr error
		history int
	}{
		{
			name:    "account with history",
			values:  map[string]string{"pt:account": string(doc)},
			lists:   map[string][]string{"pt:history": {string(rec)}},
			history: 1,
		},
		{
			name:    "account without history",
			values:  map[string]string{"pt:account": string(doc)},
			history: 0,
		},
		{
			name:    "no account",
			lists:   map[string][]string{"pt:history": {string(rec)}},
			wantErr: ErrNoAccount,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := &replyHook{values: tt.values, lists: tt.lists}
			s := hookedRedis(t, h)

			got, err := s.LoadAccount(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, 1500.0, got.Balance)
				assert.Len(t, got.History, tt.history)
			}

			h.mu.Lock()
			defer h.mu.Unlock()
			assert.Zero(t, h.singles)
			require.Len(t, h.txs, 1)
			assert.Equal(t, []string{"multi", "get", "lrange", "exec"}, h.txs[0])
		})
	}
}

func TestRedisLoadAccountBadHistory(t *testing.T) {
	t.Parallel()

	doc, err := encodeAccount(broker.NewAccount(10))
	require.NoError(t, err)
	s := hookedRedis(t, &replyHook{
		values: map[string]string{"pt:account": string(doc)},
		lists:  map[string][]string{"pt:history": {"{not json"}},
	})
	_, err = s.LoadAccount(context.Background())
	assert.ErrorContains(t, err, "decode history")
}

// Runs only against a real server: PAPERTRADER_TEST_REDIS=localhost:6379
func TestRedisStoreLive(t *testing.T) {
	addr := os.Getenv("PAPERTRADER_TEST_REDIS")
	if addr == "" {
		t.Skip("PAPERTRADER_TEST_REDIS not set")
	}

	ctx := context.Background()
	s, err := NewRedisStore(WithRedisAddr(addr), WithRedisPrefix("papertrader-test-"+t.Name()), WithRedisHistoryLimit(2))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	acct := broker.NewAccount(1000)
	acct.History = []broker.TradeRecord{sampleTrade("A", 1, t0)}
	require.NoError(t, s.SaveAccount(ctx, acct))
	require.NoError(t, s.AppendHistory(ctx, sampleTrade("B", 1, t0)))
	require.NoError(t, s.AppendHistory(ctx, sampleTrade("C", 1, t0)))

	got, err := s.LoadAccount(ctx)
	require.NoError(t, err)
	require.Len(t, got.History, 2)
	assert.Equal(t, "C", got.History[0].ID)

	require.NoError(t, s.SaveAccount(ctx, broker.NewAccount(1000)))
	h, err := s.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, h)
}
