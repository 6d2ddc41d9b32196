// Package metrics exposes Prometheus metrics for the engine:
//
//	fxbot_cycles_total{result}            cycles by outcome (complete|no_account|locked|tripped|closed|full)
//	fxbot_signals_total{signal,outcome}   signal decisions
//	fxbot_orders_total{side,result}       order submissions (filled|rejected|exhausted)
//	fxbot_order_attempts_total            individual submission attempts
//	fxbot_trailing_moves_total{symbol}    stop-loss modifications
//	fxbot_invalidations_total{symbol}     early exits on reversed signals
//	fxbot_kill_switch_trips_total         kill-switch activations
//	fxbot_equity, fxbot_balance           account gauges
//	fxbot_drawdown_ratio                  drawdown against the daily start balance
//	fxbot_capacity_occupied, fxbot_reservations_pending
//	fxbot_kill_switch_active              0 or 1
//	fxbot_notifications_total{sender,result}
//	fxbot_http_requests_total{route,code}
//
// Collectors are registered on the default registry in init() and served at
// /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fxbot_cycles_total", Help: "Engine cycles by outcome"},
		[]string{"result"},
	)

	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fxbot_signals_total", Help: "Signal decisions by signal and outcome"},
		[]string{"signal", "outcome"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fxbot_orders_total", Help: "Order executions by side and result"},
		[]string{"side", "result"},
	)

	OrderAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "fxbot_order_attempts_total", Help: "Individual order submission attempts"},
	)

	TrailingMoves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fxbot_trailing_moves_total", Help: "Stop-loss modifications applied"},
		[]string{"symbol"},
	)

	Invalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fxbot_invalidations_total", Help: "Positions closed on reversed signals"},
		[]string{"symbol"},
	)

	KillSwitchTrips = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "fxbot_kill_switch_trips_total", Help: "Kill-switch activations"},
	)

	Equity = prometheus.NewGauge(prometheus.GaugeOpts{Name: "fxbot_equity", Help: "Account equity"})

	Balance = prometheus.NewGauge(prometheus.GaugeOpts{Name: "fxbot_balance", Help: "Account balance"})

	Drawdown = prometheus.NewGauge(prometheus.GaugeOpts{Name: "fxbot_drawdown_ratio", Help: "Drawdown against daily start balance"})

	Occupied = prometheus.NewGauge(prometheus.GaugeOpts{Name: "fxbot_capacity_occupied", Help: "Open positions plus reservations"})

	Pending = prometheus.NewGauge(prometheus.GaugeOpts{Name: "fxbot_reservations_pending", Help: "In-flight execution reservations"})

	KillSwitchActive = prometheus.NewGauge(prometheus.GaugeOpts{Name: "fxbot_kill_switch_active", Help: "1 while new entries are halted"})

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fxbot_notifications_total", Help: "Notifications by sender and result (sent|failed|dropped)"},
		[]string{"sender", "result"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fxbot_http_requests_total", Help: "API requests by route and status code"},
		[]string{"route", "code"},
	)
)

func init() {
	prometheus.MustRegister(
		Cycles, Signals, Orders, OrderAttempts, TrailingMoves, Invalidations,
		KillSwitchTrips, Equity, Balance, Drawdown, Occupied, Pending, KillSwitchActive,
		Notifications, HTTPRequests,
	)
}

// SetAccount updates the account gauges.
func SetAccount(balance, equity, drawdown float64) {
	Balance.Set(balance)
	Equity.Set(equity)
	Drawdown.Set(drawdown)
}

// SetKillSwitch flips the kill-switch gauge.
func SetKillSwitch(active bool) {
	if active {
		KillSwitchActive.Set(1)
		return
	}
	KillSwitchActive.Set(0)
}
