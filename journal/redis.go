package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rustyeddy/papertrader/broker"
)

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Prefix       string
	HistoryLimit int
	DialTimeout  time.Duration
}

type RedisOption func(*RedisConfig)

func WithRedisAddr(addr string) RedisOption {
	return func(c *RedisConfig) { c.Addr = addr }
}

func WithRedisPassword(pw string) RedisOption {
	return func(c *RedisConfig) { c.Password = pw }
}

func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) { c.DB = db }
}

func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

func WithRedisHistoryLimit(n int) RedisOption {
	return func(c *RedisConfig) { c.HistoryLimit = n }
}

// RedisStore keeps the account as one JSON value and the history as a
// list, newest at the head.
type RedisStore struct {
	client *redis.Client
	cfg    RedisConfig
}

func NewRedisStore(opts ...RedisOption) (*RedisStore, error) {
	cfg := RedisConfig{
		Addr:         "localhost:6379",
		Prefix:       "papertrader",
		HistoryLimit: 50,
		DialTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{client: client, cfg: cfg}, nil
}

func (s *RedisStore) accountKey() string { return s.cfg.Prefix + ":account" }
func (s *RedisStore) historyKey() string { return s.cfg.Prefix + ":history" }

// accountDoc is the stored account without its history.
type accountDoc struct {
	Active        bool                       `json:"isActive"`
	StartedAt     *time.Time                 `json:"startTime,omitempty"`
	Balance       float64                    `json:"balance"`
	TotalProfit   float64                    `json:"totalProfit"`
	OpenPositions map[string]broker.Position `json:"activePositions"`
}

func encodeAccount(acct broker.Account) ([]byte, error) {
	return json.Marshal(accountDoc{
		Active:        acct.Active,
		StartedAt:     acct.StartedAt,
		Balance:       acct.Balance,
		TotalProfit:   acct.TotalProfit,
		OpenPositions: acct.OpenPositions,
	})
}

func decodeAccount(b []byte) (broker.Account, error) {
	var doc accountDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return broker.Account{}, err
	}
	acct := broker.NewAccount(doc.Balance)
	acct.Active = doc.Active
	acct.StartedAt = doc.StartedAt
	acct.TotalProfit = doc.TotalProfit
	for k, v := range doc.OpenPositions {
		acct.OpenPositions[k] = v
	}
	return acct, nil
}

// LoadAccount reads the account and its history inside one MULTI/EXEC,
// so it never pairs an account with a history from a different save.
func (s *RedisStore) LoadAccount(ctx context.Context) (broker.Account, error) {
	pipe := s.client.TxPipeline()
	get := pipe.Get(ctx, s.accountKey())
	lrange := pipe.LRange(ctx, s.historyKey(), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return broker.Account{}, fmt.Errorf("load account: %w", err)
	}

	b, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return broker.Account{}, ErrNoAccount
	}
	if err != nil {
		return broker.Account{}, fmt.Errorf("load account: %w", err)
	}
	acct, err := decodeAccount(b)
	if err != nil {
		return broker.Account{}, fmt.Errorf("decode account: %w", err)
	}
	raw, err := lrange.Result()
	if err != nil {
		return broker.Account{}, fmt.Errorf("load history: %w", err)
	}
	if acct.History, err = decodeHistory(raw); err != nil {
		return broker.Account{}, err
	}
	return acct, nil
}

// SaveAccount replaces the account and history inside MULTI/EXEC so a
// reader never sees one without the other.
func (s *RedisStore) SaveAccount(ctx context.Context, acct broker.Account) error {
	doc, err := encodeAccount(acct)
	if err != nil {
		return err
	}
	history := make([]any, 0, len(acct.History))
	for _, rec := range acct.History {
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		history = append(history, b)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.accountKey(), doc, 0)
	pipe.Del(ctx, s.historyKey())
	if len(history) > 0 {
		pipe.RPush(ctx, s.historyKey(), history...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (s *RedisStore) AppendHistory(ctx context.Context, rec broker.TradeRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.historyKey(), b)
	if s.cfg.HistoryLimit > 0 {
		pipe.LTrim(ctx, s.historyKey(), 0, int64(s.cfg.HistoryLimit-1))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) LoadHistory(ctx context.Context) ([]broker.TradeRecord, error) {
	raw, err := s.client.LRange(ctx, s.historyKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return decodeHistory(raw)
}

func decodeHistory(raw []string) ([]broker.TradeRecord, error) {
	out := make([]broker.TradeRecord, 0, len(raw))
	for _, r := range raw {
		var rec broker.TradeRecord
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
