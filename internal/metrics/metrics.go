package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_bars_ingested_total", Help: "Closed bars accepted from the feed"},
		[]string{"symbol"},
	)
	BarsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_bars_dropped_total", Help: "Bars dropped (stale, duplicate or queue full)"},
		[]string{"reason"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_signals_total", Help: "Signals emitted by the strategy engine"},
		[]string{"symbol", "side"},
	)
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_risk_decisions_total", Help: "Risk decisions by outcome"},
		[]string{"outcome"}, // approved | причина отказа
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_orders_total", Help: "Orders by terminal status"},
		[]string{"symbol", "status"},
	)
	OrderRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "engine_order_retries_total", Help: "Broker call retries in the executor"},
	)
	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "engine_positions_open", Help: "Currently open positions"},
	)
	BreakerActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "engine_breaker_active", Help: "1 when the drawdown circuit breaker is tripped"},
	)
	WorkerRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_worker_restarts_total", Help: "Supervisor worker restarts"},
		[]string{"worker"},
	)
	AIFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "engine_ai_fallbacks_total", Help: "AI advisor timeouts or bad responses, technical-only scoring used"},
	)
)

func init() {
	prometheus.MustRegister(
		BarsIngested, BarsDropped,
		SignalsTotal, DecisionsTotal,
		OrdersTotal, OrderRetries,
		PositionsOpen, BreakerActive,
		WorkerRestarts, AIFallbacks,
	)
}

// Handler отдаёт /metrics для health-мукса.
func Handler() http.Handler { return promhttp.Handler() }
