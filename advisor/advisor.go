// Package advisor asks an LLM endpoint to confirm or veto a strategy
// signal before it is traded.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/strategies"
)

const (
	DefaultModel = "gemini-2.5-flash"
	// RecentBars is how many candles go into the prompt.
	RecentBars = 20
)

// Client posts {model, prompt} to an analyze endpoint and expects
// {"text": "<json signal>"} back.
type Client struct {
	url        string
	model      string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

type Option func(*Client)

func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

func WithAPIKey(k string) Option {
	return func(c *Client) { c.apiKey = k }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type analyzeRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type analyzeResponse struct {
	Text string `json:"text"`
}

// verdict is the JSON the model is asked to answer with.
type verdict struct {
	Action     string   `json:"action"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	TP         float64  `json:"tp"`
	SL         float64  `json:"sl"`
	Patterns   []string `json:"patterns"`
}

// Prompt renders the candidate and the last RecentBars candles.
func Prompt(candles []market.Candle, candidate strategies.TradeSignal) string {
	if len(candles) > RecentBars {
		candles = candles[len(candles)-RecentBars:]
	}
	bars := make([]string, len(candles))
	for i, c := range candles {
		bars[i] = fmt.Sprintf("H:%g L:%g C:%g", c.High, c.Low, c.Close)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Context: %s trading.\n", candidate.Symbol)
	fmt.Fprintf(&b, "Algo Strategy Signal: %s\n", candidate.Action)
	fmt.Fprintf(&b, "Confidence: %.0f%%\n", candidate.Confidence)
	fmt.Fprintf(&b, "Reason: %s\n", candidate.Reasoning)
	fmt.Fprintf(&b, "Entry: %g TP: %g SL: %g\n", candidate.Entry, candidate.TakeProfit, candidate.StopLoss)
	fmt.Fprintf(&b, "Data (Last %d candles): %s\n", len(bars), strings.Join(bars, "|"))
	b.WriteString("Task: Validate the trade. If the signal is weak, change action to HOLD.\n")
	b.WriteString(`Respond in JSON only: {"action":"BUY|SELL|HOLD","confidence":0-100,"reasoning":"...","tp":0,"sl":0,"patterns":[]}`)
	return b.String()
}

// Validate implements strategies.Validator. An empty answer returns the
// candidate unchanged; transport and decode failures return an error so the
// caller can fall back.
func (c *Client) Validate(ctx context.Context, candles []market.Candle, candidate strategies.TradeSignal) (strategies.TradeSignal, error) {
	body, err := json.Marshal(analyzeRequest{Model: c.model, Prompt: Prompt(candles, candidate)})
	if err != nil {
		return candidate, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return candidate, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return candidate, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return candidate, fmt.Errorf("advisor error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var ar analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return candidate, fmt.Errorf("decode response: %w", err)
	}
	c.log.Debug().Str("symbol", candidate.Symbol).Dur("took", time.Since(start)).Msg("advisor answered")

	text := stripFence(ar.Text)
	if text == "" {
		return candidate, nil
	}
	var v verdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return candidate, fmt.Errorf("decode verdict: %w", err)
	}
	return v.signal(candidate), nil
}

func (v verdict) signal(candidate strategies.TradeSignal) strategies.TradeSignal {
	action, err := strategies.ParseAction(v.Action)
	if err != nil {
		action = strategies.Hold
	}
	return strategies.TradeSignal{
		Symbol:     candidate.Symbol,
		Action:     action,
		Confidence: v.Confidence,
		Reasoning:  v.Reasoning,
		Entry:      candidate.Entry,
		TakeProfit: v.TP,
		StopLoss:   v.SL,
		Patterns:   v.Patterns,
		Timestamp:  candidate.Timestamp,
	}
}

// stripFence removes a ```json ... ``` wrapper models like to add.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
