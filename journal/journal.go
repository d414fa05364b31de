// Package journal records closed trades and equity snapshots, and
// persists the account between runs.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/papertrader/broker"
)

var (
	// ErrNoAccount is returned by LoadAccount when nothing was saved yet.
	ErrNoAccount = errors.New("no saved account")

	ErrTradeNotFound = errors.New("trade not found")
)

type EquitySnapshot struct {
	Time          time.Time `json:"time"`
	Balance       float64   `json:"balance"`
	Equity        float64   `json:"equity"`
	OpenPositions int       `json:"openPositions"`
}

// Journal is an append-only trade log.
type Journal interface {
	RecordTrade(broker.TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Store persists the account. SaveAccount replaces the stored account,
// its open positions and its history in one atomic write.
type Store interface {
	LoadAccount(ctx context.Context) (broker.Account, error)
	SaveAccount(ctx context.Context, acct broker.Account) error
	AppendHistory(ctx context.Context, rec broker.TradeRecord) error
	LoadHistory(ctx context.Context) ([]broker.TradeRecord, error)
	Close() error
}

// Multi fans every record out to each journal and joins the errors.
type Multi []Journal

func (m Multi) RecordTrade(rec broker.TradeRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordTrade(rec))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordEquity(e EquitySnapshot) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordEquity(e))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.Close())
	}
	return errors.Join(errs...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTrade(broker.TradeRecord) error { return nil }
func (Nop) RecordEquity(EquitySnapshot) error    { return nil }
func (Nop) Close() error                         { return nil }
