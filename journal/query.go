package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/papertrader/broker"
)

const tradeColumns = `trade_id, symbol, side, amount, entry_price, exit_price, take_profit, stop_loss,
	open_time, close_time, outcome, pnl, fee, reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (broker.TradeRecord, error) {
	var (
		rec           broker.TradeRecord
		side, outcome string
	)
	err := s.Scan(
		&rec.ID,
		&rec.Symbol,
		&side,
		&rec.Amount,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.TakeProfit,
		&rec.StopLoss,
		&rec.OpenedAt,
		&rec.ExitTime,
		&outcome,
		&rec.PnL,
		&rec.Fee,
		&rec.Reason,
	)
	if err != nil {
		return rec, err
	}
	if rec.Side, err = broker.ParseSide(side); err != nil {
		return rec, err
	}
	if err = rec.Outcome.UnmarshalText([]byte(outcome)); err != nil {
		return rec, err
	}
	rec.Leverage = 1
	rec.OpenedAt = rec.OpenedAt.UTC()
	rec.ExitTime = rec.ExitTime.UTC()
	return rec, nil
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (broker.TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)
	rec, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return broker.TradeRecord{}, fmt.Errorf("trade %q: %w", tradeID, ErrTradeNotFound)
	}
	return rec, err
}

// ListTradesClosedBetween returns trades whose close_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]broker.TradeRecord, error) {
	return j.listTrades(`SELECT `+tradeColumns+` FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start.UTC(), end.UTC())
}

// ListRecentTrades returns up to limit trades, newest first.
func (j *SQLite) ListRecentTrades(limit int) ([]broker.TradeRecord, error) {
	return j.listTrades(`SELECT `+tradeColumns+` FROM trades
		ORDER BY close_time DESC LIMIT ?`, limit)
}

func (j *SQLite) listTrades(query string, args ...any) ([]broker.TradeRecord, error) {
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []broker.TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary aggregates a set of closed trades.
type Summary struct {
	Trades       int
	Wins         int
	Losses       int
	Closed       int
	GrossProfit  float64
	GrossLoss    float64
	Net          float64
	Fees         float64
	ProfitFactor float64
}

func Summarize(trades []broker.TradeRecord) Summary {
	var s Summary
	for _, t := range trades {
		s.Trades++
		switch t.Outcome {
		case broker.Win:
			s.Wins++
		case broker.Loss:
			s.Losses++
		case broker.Closed:
			s.Closed++
		}
		if t.PnL > 0 {
			s.GrossProfit += t.PnL
		} else {
			s.GrossLoss -= t.PnL
		}
		s.Net += t.PnL
		s.Fees += t.Fee
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	return s
}

func (s Summary) WinRate() float64 {
	if s.Wins+s.Losses == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Wins+s.Losses)
}
