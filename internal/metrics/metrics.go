// Package metrics exposes the session's Prometheus instrumentation:
//
//   - quoterd_cycles_total                 – quoting cycles completed
//   - quoterd_orders_placed_total{side}    – accepted orders by side
//   - quoterd_fills_total{side,token}      – detected fills
//   - quoterd_round_trips_total{token}     – completed buy/sell round trips
//   - quoterd_estimated_pnl_usdc           – running revenue-minus-cost gauge
//   - quoterd_api_failures_total           – gateway query failures
//   - quoterd_cycle_timeouts_total         – per-token cycle deadline misses
//   - quoterd_cycle_duration_seconds       – cycle wall time histogram
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/polyquote/quoterd/internal/domain"
)

// Metrics bundles the collectors for one session. A nil *Metrics is valid
// and records nothing, so tests and metrics-disabled runs skip wiring.
type Metrics struct {
	cycles        prometheus.Counter
	ordersPlaced  *prometheus.CounterVec
	fills         *prometheus.CounterVec
	roundTrips    *prometheus.CounterVec
	estimatedPnl  prometheus.Gauge
	apiFailures   prometheus.Counter
	cycleTimeouts prometheus.Counter
	cycleDuration prometheus.Histogram
}

// New builds and registers the session collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quoterd_cycles_total",
			Help: "Quoting cycles completed",
		}),
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quoterd_orders_placed_total",
			Help: "Accepted orders by side",
		}, []string{"side"}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quoterd_fills_total",
			Help: "Detected fills by side and token",
		}, []string{"side", "token"}),
		roundTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quoterd_round_trips_total",
			Help: "Completed buy/sell round trips by token",
		}, []string{"token"}),
		estimatedPnl: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quoterd_estimated_pnl_usdc",
			Help: "Estimated session P&L (revenue minus cost) in USDC",
		}),
		apiFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quoterd_api_failures_total",
			Help: "Gateway query failures",
		}),
		cycleTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quoterd_cycle_timeouts_total",
			Help: "Per-token cycle deadline misses",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quoterd_cycle_duration_seconds",
			Help:    "Wall time of one full quoting cycle",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
	}

	reg.MustRegister(
		m.cycles, m.ordersPlaced, m.fills, m.roundTrips,
		m.estimatedPnl, m.apiFailures, m.cycleTimeouts, m.cycleDuration,
	)
	return m
}

func (m *Metrics) CycleCompleted(seconds float64) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(seconds)
}

func (m *Metrics) OrderPlaced(side domain.OrderSide) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(string(side)).Inc()
}

func (m *Metrics) FillDetected(side domain.OrderSide, token domain.TokenLabel) {
	if m == nil {
		return
	}
	m.fills.WithLabelValues(string(side), string(token)).Inc()
}

func (m *Metrics) RoundTripCompleted(token domain.TokenLabel) {
	if m == nil {
		return
	}
	m.roundTrips.WithLabelValues(string(token)).Inc()
}

func (m *Metrics) SetEstimatedPnl(usdc float64) {
	if m == nil {
		return
	}
	m.estimatedPnl.Set(usdc)
}

func (m *Metrics) APIFailure() {
	if m == nil {
		return
	}
	m.apiFailures.Inc()
}

func (m *Metrics) CycleTimeout() {
	if m == nil {
		return
	}
	m.cycleTimeouts.Inc()
}
