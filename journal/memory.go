package journal

import (
	"context"
	"sync"

	"github.com/rustyeddy/papertrader/broker"
)

// Memory is an in-process Store, used when persistence is disabled and
// in tests.
type Memory struct {
	mu      sync.RWMutex
	acct    *broker.Account
	history []broker.TradeRecord
	limit   int
}

// NewMemory keeps at most limit appended history records (0 = unbounded).
func NewMemory(limit int) *Memory {
	return &Memory{limit: limit}
}

func (m *Memory) LoadAccount(context.Context) (broker.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.acct == nil {
		return broker.Account{}, ErrNoAccount
	}
	acct := m.acct.Clone()
	acct.History = append([]broker.TradeRecord{}, m.history...)
	return acct, nil
}

func (m *Memory) SaveAccount(_ context.Context, acct broker.Account) error {
	c := acct.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acct = &c
	m.history = append([]broker.TradeRecord{}, c.History...)
	return nil
}

func (m *Memory) AppendHistory(_ context.Context, rec broker.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.history {
		if h.ID == rec.ID {
			return nil
		}
	}
	m.history = broker.PrependHistory(m.history, rec, m.limit)
	return nil
}

func (m *Memory) LoadHistory(context.Context) ([]broker.TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]broker.TradeRecord{}, m.history...), nil
}

func (m *Memory) Close() error { return nil }
