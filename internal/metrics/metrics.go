package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SignalsConfirmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fakeout_signals_confirmed_total",
			Help: "Breakout reversals that passed every required filter (by symbol and side).",
		},
		[]string{"symbol", "side"},
	)

	SignalsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fakeout_signals_rejected_total",
			Help: "Confirmed reversals abandoned before order submission (by reason).",
		},
		[]string{"symbol", "reason"},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fakeout_orders_submitted_total",
			Help: "Entry orders successfully submitted (by symbol and side).",
		},
		[]string{"symbol", "side"},
	)

	StopAdjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fakeout_stop_adjustments_total",
			Help: "Breakeven and trailing stop modifications applied (by kind).",
		},
		[]string{"symbol", "kind"},
	)

	PositionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fakeout_positions_open",
			Help: "Currently open positions per symbol.",
		},
		[]string{"symbol"},
	)

	RangeReplacements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fakeout_range_replacements_total",
			Help: "Reference range replacements per symbol.",
		},
		[]string{"symbol"},
	)

	GateDisablements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fakeout_gate_disablements_total",
			Help: "Times the performance gate disabled an instrument.",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsConfirmed,
		SignalsRejected,
		OrdersSubmitted,
		StopAdjustments,
		PositionsOpen,
		RangeReplacements,
		GateDisablements,
	)
}
