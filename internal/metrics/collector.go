// Package metrics provides internal metrics collection for collective
// dispatch.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector tracks collective traffic per operation and backend.
type Collector struct {
	collectivesIssued   *prometheus.CounterVec
	collectivesFinished *prometheus.CounterVec
	collectiveDuration  *prometheus.HistogramVec
	pendingWorks        *prometheus.GaugeVec
}

// NewCollector creates the collector and registers its metrics with reg;
// a nil reg uses the default prometheus registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		collectivesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commflow",
			Name:      "collectives_issued_total",
			Help:      "Collective operations handed to a backend.",
		}, []string{"op", "backend"}),
		collectivesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commflow",
			Name:      "collectives_finished_total",
			Help:      "Collective operations that reached a terminal state.",
		}, []string{"op", "backend", "status"}),
		collectiveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "commflow",
			Name:      "collective_duration_seconds",
			Help:      "Time from issue to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 12),
		}, []string{"op", "backend"}),
		pendingWorks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "commflow",
			Name:      "pending_works",
			Help:      "Works issued but not yet terminal.",
		}, []string{"backend"}),
	}
	c.collectivesIssued = register(reg, c.collectivesIssued)
	c.collectivesFinished = register(reg, c.collectivesFinished)
	c.collectiveDuration = register(reg, c.collectiveDuration)
	c.pendingWorks = register(reg, c.pendingWorks)
	return c
}

// register adds a collector to reg, reusing the existing instance when a
// sibling group already registered the same metric. Multiple in-process
// groups share one registry.
func register[T prometheus.Collector](reg prometheus.Registerer, coll T) T {
	if err := reg.Register(coll); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(T)
		}
		panic(err)
	}
	return coll
}

// ObserveIssued records one issued collective.
func (c *Collector) ObserveIssued(op, backend string) {
	c.collectivesIssued.WithLabelValues(op, backend).Inc()
	c.pendingWorks.WithLabelValues(backend).Inc()
}

// ObserveFinished records one terminal collective.
func (c *Collector) ObserveFinished(op, backend, status string, d time.Duration) {
	c.collectivesFinished.WithLabelValues(op, backend, status).Inc()
	c.collectiveDuration.WithLabelValues(op, backend).Observe(d.Seconds())
	c.pendingWorks.WithLabelValues(backend).Dec()
}
