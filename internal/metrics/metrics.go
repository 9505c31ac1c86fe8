// Package metrics provides Prometheus instrumentation for courier.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds courier's collectors. A nil *Metrics is valid and records
// nothing, so components can be constructed without instrumentation.
type Metrics struct {
	RPCCalls    *prometheus.CounterVec
	RPCLatency  *prometheus.HistogramVec
	Broadcasts  *prometheus.CounterVec
	Submissions *prometheus.CounterVec
	Tasks       *prometheus.CounterVec
	Finalized   *prometheus.CounterVec
}

// New registers courier's collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RPCCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_rpc_calls_total",
			Help: "Chain RPC calls by chain, method and result.",
		}, []string{"chain", "method", "result"}),
		RPCLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "courier_rpc_latency_seconds",
			Help:    "Chain RPC call latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"chain", "method"}),
		Broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_broadcasts_total",
			Help: "Signed transactions accepted by a provider, by submission step.",
		}, []string{"chain", "step"}),
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_submissions_total",
			Help: "Submission flows by kind and result.",
		}, []string{"kind", "result"}),
		Tasks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_tasks_total",
			Help: "Monitored task outcomes.",
		}, []string{"task", "status"}),
		Finalized: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_finalized_total",
			Help: "Transactions finalized by terminal status.",
		}, []string{"status"}),
	}
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// RecordRPC records an RPC call with its duration and outcome.
func (m *Metrics) RecordRPC(chain, method string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.RPCCalls.WithLabelValues(chain, method, result(err)).Inc()
	m.RPCLatency.WithLabelValues(chain, method).Observe(d.Seconds())
}

// RecordBroadcast records a broadcast accepted by the network.
func (m *Metrics) RecordBroadcast(chain, step string) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(chain, step).Inc()
}

// RecordSubmission records the end of a submission flow.
func (m *Metrics) RecordSubmission(kind string, err error) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(kind, result(err)).Inc()
}

// RecordTask records a monitored task reaching a terminal status.
func (m *Metrics) RecordTask(task, status string) {
	if m == nil {
		return
	}
	m.Tasks.WithLabelValues(task, status).Inc()
}

// RecordFinalized records a transaction reaching a terminal status.
func (m *Metrics) RecordFinalized(status string) {
	if m == nil {
		return
	}
	m.Finalized.WithLabelValues(status).Inc()
}
