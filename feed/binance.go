package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/papertrader/market"
)

const (
	defaultRestURL = "https://api.binance.com"
	defaultWSURL   = "wss://stream.binance.com:9443"
	maxKlineLimit  = 1000
)

// Binance reads public klines over REST and the kline websocket stream.
type Binance struct {
	restURL string
	wsURL   string
	client  *http.Client
	dialer  *websocket.Dialer
	log     zerolog.Logger
}

type BinanceOption func(*Binance)

func WithRestURL(u string) BinanceOption {
	return func(b *Binance) {
		if u != "" {
			b.restURL = strings.TrimSuffix(u, "/")
		}
	}
}

func WithWSURL(u string) BinanceOption {
	return func(b *Binance) {
		if u != "" {
			b.wsURL = strings.TrimSuffix(u, "/")
		}
	}
}

func WithHTTPClient(c *http.Client) BinanceOption {
	return func(b *Binance) {
		if c != nil {
			b.client = c
		}
	}
}

func WithLogger(l zerolog.Logger) BinanceOption {
	return func(b *Binance) { b.log = l }
}

func NewBinance(opts ...BinanceOption) *Binance {
	b := &Binance{
		restURL: defaultRestURL,
		wsURL:   defaultWSURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FetchHistory calls GET /api/v3/klines. endTime is sent in milliseconds.
func (b *Binance) FetchHistory(ctx context.Context, symbol, interval string, limit int, endTime *time.Time) ([]market.Candle, error) {
	if err := checkInterval(interval); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxKlineLimit {
		return nil, fmt.Errorf("limit must be in [1, %d], got %d", maxKlineLimit, limit)
	}

	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	if endTime != nil {
		q.Set("endTime", strconv.FormatInt(endTime.UnixMilli(), 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.restURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	candles := make([]market.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformed, i, err)
		}
		candles = append(candles, c)
	}
	if err := market.ValidateSeries(candles); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return candles, nil
}

// parseKlineRow reads [openTimeMs, "open", "high", "low", "close", "volume", ...].
func parseKlineRow(row []json.RawMessage) (market.Candle, error) {
	if len(row) < 6 {
		return market.Candle{}, fmt.Errorf("want at least 6 fields, got %d", len(row))
	}
	var openMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return market.Candle{}, fmt.Errorf("open time: %v", err)
	}
	vals := make([]float64, 5)
	for i := range vals {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return market.Candle{}, fmt.Errorf("field %d: %v", i+1, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("field %d: %v", i+1, err)
		}
		vals[i] = v
	}
	return market.Candle{
		Time:   openMs / 1000,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

type klineEvent struct {
	Event  string       `json:"e"`
	Symbol string       `json:"s"`
	Kline  klinePayload `json:"k"`
}

type klinePayload struct {
	Start  int64  `json:"t"`
	Open   string `json:"o"`
	High   string `json:"h"`
	Low    string `json:"l"`
	Close  string `json:"c"`
	Volume string `json:"v"`
	Closed bool   `json:"x"`
}

func (k klinePayload) candle() (market.Candle, error) {
	vals := make([]float64, 5)
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		vals[i] = v
	}
	c := market.Candle{
		Time:   k.Start / 1000,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}
	if err := c.Validate(); err != nil {
		return market.Candle{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return c, nil
}

// Subscribe opens <symbol>@kline_<interval> and keeps it open, redialing
// with backoff, until stop is called or ctx ends. Bars older than the last
// delivered one are dropped here so onUpdate only sees replace or append.
func (b *Binance) Subscribe(ctx context.Context, symbol, interval string, onUpdate func(market.Candle)) (func(), error) {
	if err := checkInterval(interval); err != nil {
		return nil, err
	}
	if onUpdate == nil {
		return nil, fmt.Errorf("onUpdate is required")
	}

	stream := fmt.Sprintf("%s/ws/%s@kline_%s", b.wsURL, strings.ToLower(symbol), interval)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	var last int64 = -1
	deliver := func(c market.Candle) {
		if c.Time < last {
			return
		}
		last = c.Time
		onUpdate(c)
	}

	go func() {
		defer close(done)
		b.runStream(ctx, symbol, stream, deliver)
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

func (b *Binance) runStream(ctx context.Context, symbol, stream string, deliver func(market.Candle)) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for ctx.Err() == nil {
		err := b.consumeStream(ctx, symbol, stream, deliver)
		if ctx.Err() != nil {
			return
		}
		b.log.Warn().Err(err).Str("symbol", symbol).Dur("backoff", backoff).Msg("kline stream disconnected, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = time.Duration(min(float64(maxBackoff), float64(backoff)*1.8))
	}
}

func (b *Binance) consumeStream(ctx context.Context, symbol, stream string, deliver func(market.Candle)) error {
	conn, _, err := b.dialer.DialContext(ctx, stream, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	b.log.Info().Str("symbol", symbol).Msg("kline stream connected")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	})

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ReadMessage does not watch ctx; closing the conn unblocks it.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case <-connCtx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		var ev klineEvent
		if err := json.Unmarshal(msg, &ev); err != nil || ev.Event != "kline" {
			continue
		}
		c, err := ev.Kline.candle()
		if err != nil {
			b.log.Debug().Err(err).Str("symbol", symbol).Msg("dropping kline")
			continue
		}
		deliver(c)
	}
}
