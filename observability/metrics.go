package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type settlementMetrics struct {
	tradesInitiated prometheus.Counter
	tradesApproved  prometheus.Counter
	tradesExecuted  prometheus.Counter
	tradesReversed  prometheus.Counter
	transfers       *prometheus.CounterVec
	rpcRequests     *prometheus.CounterVec
	rpcLatency      *prometheus.HistogramVec
}

var (
	settlementOnce     sync.Once
	settlementRegistry *settlementMetrics
)

// SettlementMetrics returns the lazily-initialised metrics registry used to
// record ledger and trade lifecycle activity.
func SettlementMetrics() *settlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = &settlementMetrics{
			tradesInitiated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rtsettle",
				Subsystem: "settlement",
				Name:      "trades_initiated_total",
				Help:      "Total trade agreements recorded.",
			}),
			tradesApproved: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rtsettle",
				Subsystem: "settlement",
				Name:      "trade_approvals_total",
				Help:      "Total counterparty approvals applied to trades.",
			}),
			tradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rtsettle",
				Subsystem: "settlement",
				Name:      "trades_executed_total",
				Help:      "Total trades settled atomically.",
			}),
			tradesReversed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rtsettle",
				Subsystem: "settlement",
				Name:      "trade_reversals_total",
				Help:      "Total compensating reversals issued after a failed second leg.",
			}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rtsettle",
				Subsystem: "token",
				Name:      "transfers_total",
				Help:      "Total balance movements segmented by asset.",
			}, []string{"token"}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rtsettle",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "rtsettle",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			settlementRegistry.tradesInitiated,
			settlementRegistry.tradesApproved,
			settlementRegistry.tradesExecuted,
			settlementRegistry.tradesReversed,
			settlementRegistry.transfers,
			settlementRegistry.rpcRequests,
			settlementRegistry.rpcLatency,
		)
	})
	return settlementRegistry
}

// RecordTradeInitiated increments the initiated-trades counter.
func (m *settlementMetrics) RecordTradeInitiated() {
	if m == nil {
		return
	}
	m.tradesInitiated.Inc()
}

func (m *settlementMetrics) RecordTradeApproved() {
	if m == nil {
		return
	}
	m.tradesApproved.Inc()
}

func (m *settlementMetrics) RecordTradeExecuted() {
	if m == nil {
		return
	}
	m.tradesExecuted.Inc()
}

func (m *settlementMetrics) RecordTradeReversed() {
	if m == nil {
		return
	}
	m.tradesReversed.Inc()
}

// RecordTransfer counts a balance movement on the named asset ledger.
func (m *settlementMetrics) RecordTransfer(token string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(token).Inc()
}

// RecordRPC counts one handled JSON-RPC request and observes its latency.
func (m *settlementMetrics) RecordRPC(method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(seconds)
}
