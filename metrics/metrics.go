// Package metrics exposes the bot's Prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "papertrader"

// Recorder owns every collector. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	ticks           *prometheus.CounterVec
	tickDuration    prometheus.Histogram
	symbolErrors    *prometheus.CounterVec
	signals         *prometheus.CounterVec
	positionsOpened *prometheus.CounterVec
	positionsClosed *prometheus.CounterVec
	realizedPnL     *prometheus.CounterVec
	openPositions   prometheus.Gauge
	balance         prometheus.Gauge
	lastPrice       *prometheus.GaugeVec
	validator       *prometheus.CounterVec
	storeErrors     *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_ticks_total",
			Help:      "Scan ticks by result (completed, skipped).",
		}, []string{"result"}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_tick_duration_seconds",
			Help:      "Wall time of one full watchlist scan.",
			Buckets:   prometheus.DefBuckets,
		}),
		symbolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbol_errors_total",
			Help:      "Per-symbol failures that skipped the symbol for a tick.",
		}, []string{"symbol", "kind"}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Generated signals by action.",
		}, []string{"symbol", "action"}),
		positionsOpened: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_opened_total",
			Help:      "Opened positions by side.",
		}, []string{"symbol", "side"}),
		positionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_closed_total",
			Help:      "Closed positions by outcome.",
		}, []string{"symbol", "outcome"}),
		realizedPnL: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realized_pnl_abs_total",
			Help:      "Absolute realized pnl, split by sign.",
		}, []string{"sign"}),
		openPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Currently open positions.",
		}),
		balance: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "account_balance",
			Help:      "Account balance after the last close or reset.",
		}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_price",
			Help:      "Last observed close per symbol.",
		}, []string{"symbol"}),
		validator: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validator_results_total",
			Help:      "Signal validator results (confirmed, rejected, error).",
		}, []string{"result"}),
		storeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed account store writes by operation.",
		}, []string{"op"}),
	}
}

func (r *Recorder) TickCompleted(d time.Duration) {
	if r == nil {
		return
	}
	r.ticks.WithLabelValues("completed").Inc()
	r.tickDuration.Observe(d.Seconds())
}

func (r *Recorder) TickSkipped() {
	if r == nil {
		return
	}
	r.ticks.WithLabelValues("skipped").Inc()
}

func (r *Recorder) SymbolError(symbol, kind string) {
	if r == nil {
		return
	}
	r.symbolErrors.WithLabelValues(symbol, kind).Inc()
}

func (r *Recorder) Signal(symbol, action string) {
	if r == nil {
		return
	}
	r.signals.WithLabelValues(symbol, action).Inc()
}

func (r *Recorder) PositionOpened(symbol, side string) {
	if r == nil {
		return
	}
	r.positionsOpened.WithLabelValues(symbol, side).Inc()
}

func (r *Recorder) PositionClosed(symbol, outcome string, pnl float64) {
	if r == nil {
		return
	}
	r.positionsClosed.WithLabelValues(symbol, outcome).Inc()
	if pnl >= 0 {
		r.realizedPnL.WithLabelValues("profit").Add(pnl)
	} else {
		r.realizedPnL.WithLabelValues("loss").Add(-pnl)
	}
}

func (r *Recorder) Account(balance float64, open int) {
	if r == nil {
		return
	}
	r.balance.Set(balance)
	r.openPositions.Set(float64(open))
}

func (r *Recorder) LastPrice(symbol string, price float64) {
	if r == nil {
		return
	}
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) Validator(result string) {
	if r == nil {
		return
	}
	r.validator.WithLabelValues(result).Inc()
}

func (r *Recorder) StoreError(op string) {
	if r == nil {
		return
	}
	r.storeErrors.WithLabelValues(op).Inc()
}
