// Package metrics holds the Prometheus collectors for the feed pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	fetches          *prometheus.CounterVec
	fallbacks        prometheus.Counter
	cacheRequests    *prometheus.CounterVec
	items            *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitefeed_fetch_total",
			Help: "Page fetches by transport and outcome.",
		}, []string{"transport", "outcome"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitefeed_transport_fallback_total",
			Help: "Fetches retried through the rendering transport after being blocked.",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitefeed_cache_requests_total",
			Help: "Keyed cache lookups by result.",
		}, []string{"result"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitefeed_items_total",
			Help: "Assembled feed items by status.",
		}, []string{"status"}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitefeed_pipeline_duration_seconds",
			Help:    "Duration of pipeline invocations.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.fetches, m.fallbacks, m.cacheRequests, m.items, m.pipelineDuration)
	return m
}

// Fetch counts one fetch attempt.
func (m *Metrics) Fetch(transport, outcome string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(transport, outcome).Inc()
}

// Fallback counts one switch to the rendering transport.
func (m *Metrics) Fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

// CacheRequest counts a cache lookup: hit, miss, shared or store_hit.
func (m *Metrics) CacheRequest(result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// Items counts assembled items by status.
func (m *Metrics) Items(ok, degraded int) {
	if m == nil {
		return
	}
	m.items.WithLabelValues("ok").Add(float64(ok))
	m.items.WithLabelValues("degraded").Add(float64(degraded))
}

// Pipeline observes one invocation.
func (m *Metrics) Pipeline(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
