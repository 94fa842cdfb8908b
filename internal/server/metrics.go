package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/funvibe/torrentrpc/internal/rpc"
)

// Metrics counts requests per transport and calls per method. It satisfies
// rpc.Observer.
type Metrics struct {
	requests *prometheus.CounterVec
	calls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var _ rpc.Observer = (*Metrics)(nil)

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "torrentrpc_requests_total",
			Help: "RPC requests received, by transport.",
		}, []string{"transport"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "torrentrpc_calls_total",
			Help: "Commands dispatched, by method and fault code (0 for success).",
		}, []string{"method", "fault"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "torrentrpc_call_duration_seconds",
			Help:    "Time spent in a dispatched command.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"transport"}),
	}
	reg.MustRegister(m.requests, m.calls, m.latency)
	return m
}

func (m *Metrics) ObserveRequest(transport string) {
	m.requests.WithLabelValues(transport).Inc()
}

// ObserveCall folds unknown method names into one label value so clients
// cannot grow the series set.
func (m *Metrics) ObserveCall(transport, method string, faultCode int, elapsed time.Duration) {
	if faultCode == rpc.FaultUnknownMethod {
		method = "unknown"
	}
	m.calls.WithLabelValues(method, strconv.Itoa(faultCode)).Inc()
	m.latency.WithLabelValues(transport).Observe(elapsed.Seconds())
}
