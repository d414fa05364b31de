package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func env(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1000.0, cfg.Account.StartingBalance)
	assert.Equal(t, 0.1, cfg.Risk.RiskFraction)
	assert.Equal(t, 3, cfg.Risk.MaxOpenPositions)
	assert.Equal(t, 50, cfg.Risk.HistoryCap)
	assert.Equal(t, "sniper", cfg.Strategy.Name)
	assert.Equal(t, 20, cfg.Strategy.BandPeriod)
	assert.Equal(t, 200, cfg.Strategy.MinHistory)
	assert.Equal(t, 5*time.Second, cfg.Scan.Interval)
	assert.Equal(t, 300, cfg.Scan.Limit)
	assert.Equal(t, "1m", cfg.Scan.CandleInterval)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Len(t, cfg.Watchlist, 10)
	assert.True(t, cfg.Metrics.Enabled)
	assert.True(t, cfg.Scan.Stream)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "bot.yaml", `
account:
  starting_balance: 5000
risk:
  risk_fraction: 0.05
  max_open_positions: 2
watchlist: [btcusdt, " ethusdt ", BTCUSDT]
scan:
  interval: 30s
  stream: false
strategy:
  rsi_buy: 35
metrics:
  enabled: false
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 5000.0, cfg.Account.StartingBalance)
	assert.Equal(t, 0.05, cfg.Risk.RiskFraction)
	assert.Equal(t, 2, cfg.Risk.MaxOpenPositions)
	assert.Equal(t, 50, cfg.Risk.HistoryCap)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Watchlist)
	assert.Equal(t, 30*time.Second, cfg.Scan.Interval)
	assert.False(t, cfg.Scan.Stream)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 35.0, cfg.Strategy.RSIBuy)
	assert.Equal(t, 60.0, cfg.Strategy.RSISell)
}

func TestLoadJSONFallback(t *testing.T) {
	path := writeFile(t, "bot.json", `{"account":{"starting_balance":250},"store":{"type":"memory"}}`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 250.0, cfg.Account.StartingBalance)
	assert.Equal(t, "memory", cfg.Store.Type)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"negative balance", "account:\n  starting_balance: -1\n", "account.starting_balance"},
		{"unknown store", "store:\n  type: postgres\n", "store.type"},
		{"risk fraction", "risk:\n  risk_fraction: 2\n", "risk.risk_fraction"},
		{"rsi order", "strategy:\n  rsi_buy: 70\n", "rsi_buy"},
		{"advisor without url", "advisor:\n  enabled: true\n", "advisor.url"},
		{"half csv", "journal:\n  trades_csv: t.csv\n", "trades_csv"},
		{"kafka topic", "journal:\n  kafka_brokers: [localhost:9092]\n", "kafka_topic"},
		{"interval", "scan:\n  candle_interval: 7m\n", "candle_interval"},
		{"limit below history", "scan:\n  limit: 100\n", "min_history"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeFile(t, "bad.yaml", tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoadWithEnv(t *testing.T) {
	cfg, err := LoadWithEnv("", env(map[string]string{
		"PAPERTRADER_WATCHLIST":       "solusdt,ethusdt",
		"PAPERTRADER_ADVISOR_API_KEY": "k-123",
		"PAPERTRADER_STORE":           "redis",
		"PAPERTRADER_REDIS_ADDR":      "cache:6379",
		"PAPERTRADER_FEED":            "random",
		"PAPERTRADER_LOG_LEVEL":       "debug",
		"PAPERTRADER_HTTP_PORT":       "9090",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"SOLUSDT", "ETHUSDT"}, cfg.Watchlist)
	assert.Equal(t, "k-123", cfg.Advisor.APIKey)
	assert.Equal(t, "redis", cfg.Store.Type)
	assert.Equal(t, "cache:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "random", cfg.Feed.Provider)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.HTTP.Port)
}

func TestLoadWithEnvBadPort(t *testing.T) {
	_, err := LoadWithEnv("", env(map[string]string{"PAPERTRADER_HTTP_PORT": "http"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_PORT")
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"out.yaml", "out.json"} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Account.StartingBalance = 777
			cfg.Scan.Interval = 2 * time.Minute
			cfg.Watchlist = []string{"BTCUSDT"}

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, cfg.SaveToFile(path))

			got, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, got)
		})
	}
}
