// Package metrics exposes Prometheus counters for the edge cache data path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the edge counters. A nil *Metrics is valid and records
// nothing, so instrumentation points never need nil checks at call sites.
type Metrics struct {
	requests   *prometheus.CounterVec
	hits       *prometheus.CounterVec
	misses     *prometheus.CounterVec
	netErrors  prometheus.Counter
	synthetic  prometheus.Counter
	replayOK   prometheus.Counter
	replayFail prometheus.Counter
	replayDrop prometheus.Counter
}

// New registers the edge metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "costshub_edge_requests_total",
			Help: "Intercepted requests by selected strategy.",
		}, []string{"strategy"}),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "costshub_edge_cache_hits_total",
			Help: "Requests served from a cache store, by strategy.",
		}, []string{"strategy"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "costshub_edge_cache_misses_total",
			Help: "Cache lookups that found no entry, by strategy.",
		}, []string{"strategy"}),
		netErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "costshub_edge_network_errors_total",
			Help: "Upstream fetches that failed.",
		}),
		synthetic: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "costshub_edge_synthetic_responses_total",
			Help: "Synthetic 503 responses returned to callers.",
		}),
		replayOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "costshub_edge_replay_success_total",
			Help: "Queued offline actions replayed successfully.",
		}),
		replayFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "costshub_edge_replay_failure_total",
			Help: "Offline action replay attempts that failed.",
		}),
		replayDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "costshub_edge_replay_dropped_total",
			Help: "Offline actions dropped after exhausting their attempts.",
		}),
	}
	reg.MustRegister(m.requests, m.hits, m.misses, m.netErrors, m.synthetic,
		m.replayOK, m.replayFail, m.replayDrop)
	return m
}

func (m *Metrics) Request(strategy string) {
	if m != nil {
		m.requests.WithLabelValues(strategy).Inc()
	}
}

func (m *Metrics) Hit(strategy string) {
	if m != nil {
		m.hits.WithLabelValues(strategy).Inc()
	}
}

func (m *Metrics) Miss(strategy string) {
	if m != nil {
		m.misses.WithLabelValues(strategy).Inc()
	}
}

func (m *Metrics) NetworkError() {
	if m != nil {
		m.netErrors.Inc()
	}
}

func (m *Metrics) Synthetic() {
	if m != nil {
		m.synthetic.Inc()
	}
}

func (m *Metrics) ReplaySuccess() {
	if m != nil {
		m.replayOK.Inc()
	}
}

func (m *Metrics) ReplayFailure() {
	if m != nil {
		m.replayFail.Inc()
	}
}

func (m *Metrics) ReplayDropped() {
	if m != nil {
		m.replayDrop.Inc()
	}
}
