package cache

// metrics.go is a thin abstraction over Prometheus so ShardCache works with
// or without metrics wired in, mirroring the no-op/Prometheus split the
// generation-ring cache this package grew out of used for its shard-level
// counters.
//
// © 2025 veil authors. MIT License.

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metricsSink interface {
	incHit(tier string)
	incMiss(tier string)
	incEvict(tier string)
	setBytes(tier string, value int64)
}

type noopMetrics struct{}

func (noopMetrics) incHit(string)          {}
func (noopMetrics) incMiss(string)         {}
func (noopMetrics) incEvict(string)        {}
func (noopMetrics) setBytes(string, int64) {}

type promMetrics struct {
	hits    *prometheus.CounterVec
	misses  *prometheus.CounterVec
	evicts  *prometheus.CounterVec
	bytes   *prometheus.GaugeVec
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	m := &promMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veil_cache_hits_total",
			Help: "Shard cache hits by publisher tier.",
		}, []string{"tier"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veil_cache_misses_total",
			Help: "Shard cache misses by publisher tier.",
		}, []string{"tier"}),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veil_cache_evictions_total",
			Help: "Shard cache evictions by publisher tier.",
		}, []string{"tier"}),
		bytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "veil_cache_bytes",
			Help: "Live shard cache bytes by publisher tier.",
		}, []string{"tier"}),
	}
	reg.MustRegister(m.hits, m.misses, m.evicts, m.bytes)
	return m
}

func (m *promMetrics) incHit(tier string)            { m.hits.WithLabelValues(tier).Inc() }
func (m *promMetrics) incMiss(tier string)           { m.misses.WithLabelValues(tier).Inc() }
func (m *promMetrics) incEvict(tier string)          { m.evicts.WithLabelValues(tier).Inc() }
func (m *promMetrics) setBytes(tier string, v int64) { m.bytes.WithLabelValues(tier).Set(float64(v)) }
