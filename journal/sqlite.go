package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/papertrader/broker"
)

// SQLite is both a Journal and a Store.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer keeps sqlite from returning SQLITE_BUSY under concurrent saves
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t broker.TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO trades
		(trade_id, symbol, side, amount, entry_price, exit_price, take_profit, stop_loss,
		 open_time, close_time, outcome, pnl, fee, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, t.Side.String(), t.Amount, t.EntryPrice, t.ExitPrice,
		t.TakeProfit, t.StopLoss, t.OpenedAt.UTC(), t.ExitTime.UTC(),
		t.Outcome.String(), t.PnL, t.Fee, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity (time, balance, equity, open_positions)
		VALUES (?, ?, ?, ?)`,
		e.Time.UTC(), e.Balance, e.Equity, e.OpenPositions,
	)
	return err
}

func (j *SQLite) LoadAccount(ctx context.Context) (broker.Account, error) {
	var (
		acct    broker.Account
		active  bool
		started sql.NullTime
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT active, started_at, balance, total_profit FROM account WHERE id = 1`,
	).Scan(&active, &started, &acct.Balance, &acct.TotalProfit)
	if errors.Is(err, sql.ErrNoRows) {
		return broker.Account{}, ErrNoAccount
	}
	if err != nil {
		return broker.Account{}, fmt.Errorf("load account: %w", err)
	}
	acct.Active = active
	if started.Valid {
		t := started.Time.UTC()
		acct.StartedAt = &t
	}

	acct.OpenPositions, err = j.loadPositions(ctx)
	if err != nil {
		return broker.Account{}, err
	}
	acct.History, err = j.LoadHistory(ctx)
	if err != nil {
		return broker.Account{}, err
	}
	return acct, nil
}

func (j *SQLite) loadPositions(ctx context.Context) (map[string]broker.Position, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT symbol, position_id, side, entry_price, amount, take_profit, stop_loss, leverage, opened_at
		FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]broker.Position)
	for rows.Next() {
		var (
			p    broker.Position
			side string
		)
		if err := rows.Scan(&p.Symbol, &p.ID, &side, &p.EntryPrice, &p.Amount,
			&p.TakeProfit, &p.StopLoss, &p.Leverage, &p.OpenedAt); err != nil {
			return nil, err
		}
		if p.Side, err = broker.ParseSide(side); err != nil {
			return nil, err
		}
		p.OpenedAt = p.OpenedAt.UTC()
		out[p.Symbol] = p
	}
	return out, rows.Err()
}

// SaveAccount writes the account row, its positions and its history in
// one transaction.
func (j *SQLite) SaveAccount(ctx context.Context, acct broker.Account) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var started any
	if acct.StartedAt != nil {
		started = acct.StartedAt.UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO account (id, active, started_at, balance, total_profit, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			active = excluded.active,
			started_at = excluded.started_at,
			balance = excluded.balance,
			total_profit = excluded.total_profit,
			updated_at = excluded.updated_at`,
		acct.Active, started, acct.Balance, acct.TotalProfit, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return err
	}
	for _, p := range acct.OpenPositions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO positions
			(symbol, position_id, side, entry_price, amount, take_profit, stop_loss, leverage, opened_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Symbol, p.ID, p.Side.String(), p.EntryPrice, p.Amount,
			p.TakeProfit, p.StopLoss, p.Leverage, p.OpenedAt.UTC(),
		); err != nil {
			return fmt.Errorf("save position %s: %w", p.Symbol, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return err
	}
	n := len(acct.History)
	for i, rec := range acct.History {
		if err := insertHistory(ctx, tx, rec, n-i); err != nil {
			return err
		}
	}

	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertHistory(ctx context.Context, db execer, rec broker.TradeRecord, seq int) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO history (trade_id, close_time, seq, record) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.ExitTime.UTC(), seq, string(b))
	if err != nil {
		return fmt.Errorf("save history %s: %w", rec.ID, err)
	}
	return nil
}

// AppendHistory adds rec as the newest history entry.
func (j *SQLite) AppendHistory(ctx context.Context, rec broker.TradeRecord) error {
	var seq int
	if err := j.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM history`).Scan(&seq); err != nil {
		return err
	}
	return insertHistory(ctx, j.db, rec, seq+1)
}

// LoadHistory returns the stored history, newest first.
func (j *SQLite) LoadHistory(ctx context.Context) ([]broker.TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT record FROM history ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	out := []broker.TradeRecord{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec broker.TradeRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
