// Package metrics exposes Prometheus metrics for the wallet bot.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gateway-fm/walletbot/pkg/types"
)

// PrometheusMetrics holds all Prometheus metrics for the wallet bot.
type PrometheusMetrics struct {
	// Counters
	OperationsTotal   *prometheus.CounterVec
	AttemptsTotal     *prometheus.CounterVec
	CyclesTotal       *prometheus.CounterVec
	WalletsProcessed  prometheus.Counter
	TransactionsTotal *prometheus.CounterVec

	// Gauges
	State *prometheus.GaugeVec

	// Histograms
	CycleDuration prometheus.Histogram
	RPCLatency    *prometheus.HistogramVec
	PauseSeconds  *prometheus.HistogramVec
}

// NewPrometheusMetrics creates and registers all Prometheus metrics.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletbot_operations_total",
				Help: "Operations by name and final status",
			},
			[]string{"operation", "status"},
		),

		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletbot_operation_attempts_total",
				Help: "Attempts spent on each operation, retries included",
			},
			[]string{"operation"},
		),

		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletbot_cycles_total",
				Help: "Finished cycles by status",
			},
			[]string{"status"},
		),

		WalletsProcessed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "walletbot_wallets_processed_total",
				Help: "Wallets that ran through the operation catalog",
			},
		),

		TransactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletbot_transactions_total",
				Help: "Submitted transactions by outcome",
			},
			[]string{"status"},
		),

		State: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "walletbot_state",
				Help: "Current scheduler state (1 if active, 0 otherwise)",
			},
			[]string{"state"},
		),

		CycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "walletbot_cycle_duration_seconds",
				Help:    "Wall time of a full cycle",
				Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800},
			},
		),

		RPCLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "walletbot_rpc_latency_seconds",
				Help:    "RPC call latency by method",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),

		PauseSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "walletbot_pause_seconds",
				Help:    "Randomized pauses by reason",
				Buckets: []float64{5, 10, 30, 60, 120, 180, 300},
			},
			[]string{"reason"},
		),
	}
}

// RecordOperation records the final outcome of one operation.
func (m *PrometheusMetrics) RecordOperation(op types.OperationReport) {
	m.OperationsTotal.WithLabelValues(op.Operation, string(op.Status)).Inc()
	if op.Attempts > 0 {
		m.AttemptsTotal.WithLabelValues(op.Operation).Add(float64(op.Attempts))
	}
}

// RecordWallet records a finished wallet.
func (m *PrometheusMetrics) RecordWallet() {
	m.WalletsProcessed.Inc()
}

// RecordCycle records a finished cycle and its duration.
func (m *PrometheusMetrics) RecordCycle(status types.CycleStatus, d time.Duration) {
	m.CyclesTotal.WithLabelValues(string(status)).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// RecordTransaction records a transaction outcome: confirmed, reverted or failed.
func (m *PrometheusMetrics) RecordTransaction(status string) {
	m.TransactionsTotal.WithLabelValues(status).Inc()
}

// knownRPCMethods is a fixed set of known RPC methods to prevent cardinality explosion
var knownRPCMethods = map[string]bool{
	"eth_sendRawTransaction":    true,
	"eth_getTransactionCount":   true,
	"eth_blockNumber":           true,
	"eth_chainId":               true,
	"eth_gasPrice":              true,
	"eth_estimateGas":           true,
	"eth_getTransactionReceipt": true,
	"eth_call":                  true,
}

// RecordRPCLatency records RPC call latency.
func (m *PrometheusMetrics) RecordRPCLatency(method string, d time.Duration) {
	if !knownRPCMethods[method] {
		method = "other"
	}
	m.RPCLatency.WithLabelValues(method).Observe(d.Seconds())
}

// RecordPause records a pacing pause.
func (m *PrometheusMetrics) RecordPause(reason string, d time.Duration) {
	m.PauseSeconds.WithLabelValues(reason).Observe(d.Seconds())
}

// SetState updates the state gauges so exactly one state reads 1.
func (m *PrometheusMetrics) SetState(state types.BotState) {
	for _, s := range []types.BotState{types.StateIdle, types.StateRunning, types.StateSleeping} {
		if s == state {
			m.State.WithLabelValues(string(s)).Set(1)
		} else {
			m.State.WithLabelValues(string(s)).Set(0)
		}
	}
}
