package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/papertrader/broker"
)

type CSVJournal struct {
	mu     sync.Mutex
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}

	tw := csv.NewWriter(tf)
	ew := csv.NewWriter(ef)

	if err := tw.Write([]string{"trade_id", "symbol", "side", "amount", "entry_price", "exit_price",
		"take_profit", "stop_loss", "open_time", "close_time", "outcome", "pnl", "fee", "reason"}); err != nil {
		return nil, err
	}
	if err := ew.Write([]string{"time", "balance", "equity", "open_positions"}); err != nil {
		return nil, err
	}

	tw.Flush()
	if err := tw.Error(); err != nil {
		return nil, err
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{trades: tw, equity: ew, tf: tf, ef: ef}, nil
}

func (j *CSVJournal) RecordTrade(t broker.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.trades.Write([]string{
		t.ID,
		t.Symbol,
		t.Side.String(),
		f(t.Amount),
		f(t.EntryPrice),
		f(t.ExitPrice),
		f(t.TakeProfit),
		f(t.StopLoss),
		t.OpenedAt.UTC().Format(time.RFC3339),
		t.ExitTime.UTC().Format(time.RFC3339),
		t.Outcome.String(),
		f(t.PnL),
		f(t.Fee),
		t.Reason,
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.equity.Write([]string{
		e.Time.UTC().Format(time.RFC3339),
		f(e.Balance),
		f(e.Equity),
		strconv.Itoa(e.OpenPositions),
	})
	if err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	return j.ef.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
