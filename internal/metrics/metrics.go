package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EntrySignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atrbo_entry_signals_total",
			Help: "Total number of bars flagged for entry (by pair).",
		},
		[]string{"pair"},
	)

	TradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atrbo_trades_closed_total",
			Help: "Total number of closed trades (by pair and exit reason).",
		},
		[]string{"pair", "exit_reason"},
	)

	AnchorFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atrbo_anchor_fallbacks_total",
			Help: "Positions opened without an anchored ATR, using the fallback stop.",
		},
		[]string{"pair"},
	)

	PositionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "atrbo_positions_open",
			Help: "Current number of open positions per pair.",
		},
		[]string{"pair"},
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atrbo_run_duration_seconds",
			Help:    "Wall time of one backtest evaluation per pair.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pair"},
	)
)

func init() {
	prometheus.MustRegister(EntrySignals, TradesClosed, AnchorFallbacks, PositionsOpen, RunDuration)
}

// Handler 暴露 /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
