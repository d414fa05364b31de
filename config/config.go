// Package config loads the bot configuration from YAML or JSON, fills
// defaults from struct tags, applies environment overrides and validates.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/papertrader/internal/logging"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/risk"
	"github.com/rustyeddy/papertrader/strategies"
)

const EnvPrefix = "PAPERTRADER_"

type Config struct {
	Account   AccountConfig  `json:"account" yaml:"account"`
	Risk      risk.Policy    `json:"risk" yaml:"risk"`
	Strategy  StrategyConfig `json:"strategy" yaml:"strategy"`
	Watchlist []string       `json:"watchlist" yaml:"watchlist"`
	Scan      ScanConfig     `json:"scan" yaml:"scan"`
	Feed      FeedConfig     `json:"feed" yaml:"feed"`
	Advisor   AdvisorConfig  `json:"advisor" yaml:"advisor"`
	Store     StoreConfig    `json:"store" yaml:"store"`
	Journal   JournalConfig  `json:"journal" yaml:"journal"`
	HTTP      HTTPConfig     `json:"http" yaml:"http"`
	Metrics   MetricsConfig  `json:"metrics" yaml:"metrics"`
	Log       logging.Config `json:"log" yaml:"log"`
}

type AccountConfig struct {
	StartingBalance float64 `json:"starting_balance" yaml:"starting_balance" default:"1000" validate:"gt=0"`
	Currency        string  `json:"currency" yaml:"currency" default:"USDT" validate:"required"`
}

type StrategyConfig struct {
	Name                    string `json:"name" yaml:"name" default:"sniper" validate:"oneof=sniper noop"`
	strategies.SniperConfig `yaml:",inline"`
}

type ScanConfig struct {
	Interval       time.Duration `json:"interval" yaml:"interval" default:"5s" validate:"gt=0"`
	CandleInterval string        `json:"candle_interval" yaml:"candle_interval" default:"1m"`
	Limit          int           `json:"limit" yaml:"limit" default:"300" validate:"gte=1,lte=1000"`
	FeedTimeout    time.Duration `json:"feed_timeout" yaml:"feed_timeout" default:"10s" validate:"gt=0"`
	Stream         bool          `json:"stream" yaml:"stream"`
}

type FeedConfig struct {
	Provider string `json:"provider" yaml:"provider" default:"binance" validate:"oneof=binance random"`
	RestURL  string `json:"rest_url" yaml:"rest_url" default:"https://api.binance.com" validate:"url"`
	WSURL    string `json:"ws_url" yaml:"ws_url" default:"wss://stream.binance.com:9443" validate:"url"`
	Seed     int64  `json:"seed" yaml:"seed" default:"1"`
}

type AdvisorConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	URL     string        `json:"url" yaml:"url" validate:"omitempty,url"`
	Model   string        `json:"model" yaml:"model" default:"gemini-2.5-flash"`
	APIKey  string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" default:"15s" validate:"gt=0"`
}

type StoreConfig struct {
	Type       string      `json:"type" yaml:"type" default:"sqlite" validate:"oneof=sqlite redis memory"`
	SQLitePath string      `json:"sqlite_path" yaml:"sqlite_path" default:"papertrader.db"`
	Redis      RedisConfig `json:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr" default:"localhost:6379"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db" yaml:"db" validate:"gte=0"`
	Prefix   string `json:"prefix" yaml:"prefix" default:"papertrader"`
}

type JournalConfig struct {
	TradesCSV    string   `json:"trades_csv,omitempty" yaml:"trades_csv,omitempty"`
	EquityCSV    string   `json:"equity_csv,omitempty" yaml:"equity_csv,omitempty"`
	KafkaBrokers []string `json:"kafka_brokers,omitempty" yaml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `json:"kafka_topic,omitempty" yaml:"kafka_topic,omitempty"`
}

type HTTPConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path" default:"/metrics"`
}

// Default returns a configuration with every tag default applied.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// tags are static, a failure here is a typo in this file
		panic(err)
	}
	cfg.Watchlist = append([]string{}, market.DefaultWatchlist...)
	cfg.Scan.Stream = true
	cfg.Metrics.Enabled = true
	return cfg
}

// LoadFromFile reads YAML (falling back to JSON) over the defaults and
// validates the result.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadWithEnv is LoadFromFile plus PAPERTRADER_* overrides. An empty
// path starts from the defaults.
func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = parseFile(path); err != nil {
			return nil, err
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", errors.Join(err, jerr))
		}
	}
	cfg.Watchlist = market.NormalizeSymbols(cfg.Watchlist)
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvPrefix + "WATCHLIST"); v != "" {
		c.Watchlist = market.NormalizeSymbols(strings.Split(v, ","))
	}
	if v := getenv(EnvPrefix + "ADVISOR_API_KEY"); v != "" {
		c.Advisor.APIKey = v
	}
	if v := getenv(EnvPrefix + "STORE"); v != "" {
		c.Store.Type = v
	}
	if v := getenv(EnvPrefix + "REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := getenv(EnvPrefix + "FEED"); v != "" {
		c.Feed.Provider = v
	}
	if v := getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvPrefix + "HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sHTTP_PORT: %w", EnvPrefix, err)
		}
		c.HTTP.Port = port
	}
	return nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks tag rules first, then the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				field := strings.TrimPrefix(fe.Namespace(), "Config.")
				if fe.Param() != "" {
					msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
				} else {
					msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", field, fe.Tag()))
				}
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if len(c.Watchlist) == 0 {
		return fmt.Errorf("watchlist must not be empty")
	}
	if _, ok := market.Intervals[c.Scan.CandleInterval]; !ok {
		return fmt.Errorf("scan.candle_interval %q is not supported", c.Scan.CandleInterval)
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if c.Strategy.Name == "sniper" {
		if err := c.Strategy.SniperConfig.Validate(); err != nil {
			return err
		}
		if c.Scan.Limit < c.Strategy.MinHistory {
			return fmt.Errorf("scan.limit %d is below strategy.min_history %d", c.Scan.Limit, c.Strategy.MinHistory)
		}
	}
	if c.Advisor.Enabled && c.Advisor.URL == "" {
		return fmt.Errorf("advisor.url is required when the advisor is enabled")
	}
	if (c.Journal.TradesCSV == "") != (c.Journal.EquityCSV == "") {
		return fmt.Errorf("journal trades_csv and equity_csv must be set together")
	}
	if len(c.Journal.KafkaBrokers) > 0 && c.Journal.KafkaTopic == "" {
		return fmt.Errorf("journal.kafka_topic is required with kafka_brokers")
	}
	if c.Store.Type == "sqlite" && c.Store.SQLitePath == "" {
		return fmt.Errorf("store.sqlite_path is required for the sqlite store")
	}
	return nil
}
