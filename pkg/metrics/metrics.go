// Package metrics exposes pool activity as Prometheus metrics.
//
// # Overview
//
// A Collector implements pool.Observer. Register it on every pool (or pass it
// to factory.New) and it keeps counters and gauges per pool and variant:
//
//	reg := prometheus.NewRegistry()
//	collector := metrics.NewCollector(reg)
//	f, err := factory.New(host, specs, log, pool.WithObserver(collector))
//
// The gauges are derived from the event stream, so they match Pool.Stats as
// long as the collector observed the pool from construction.
//
// # Metric Types
//
// Counter: created instances, checkouts (split by free list or emergency
// growth), returns, rejected returns.
// Gauge: free and active instances.
// Histogram: duration of precreation ticks.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "spawnpool"

// Collector records pool events into Prometheus metrics.
type Collector struct {
	created       *prometheus.CounterVec // pool, variant
	checkouts     *prometheus.CounterVec // pool, variant, source
	returns       *prometheus.CounterVec // pool, variant
	rejected      *prometheus.CounterVec // pool
	free          *prometheus.GaugeVec   // pool, variant
	active        *prometheus.GaugeVec   // pool, variant
	precreateTick prometheus.Histogram   // seconds per PrecreateAll call
	precreateRuns *prometheus.CounterVec // outcome
}

// NewCollector creates a collector and registers its metrics on reg. A nil
// reg uses the default Prometheus registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		created: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instances_created_total",
				Help:      "Total number of pool instances created",
			},
			[]string{"pool", "variant"},
		),
		checkouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkouts_total",
				Help:      "Total number of checkouts, by whether the free list was empty",
			},
			[]string{"pool", "variant", "source"},
		),
		returns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "returns_total",
				Help:      "Total number of instances returned to their pool",
			},
			[]string{"pool", "variant"},
		),
		rejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_returns_total",
				Help:      "Returns of instances that were not active in the pool",
			},
			[]string{"pool"},
		),
		free: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "free_instances",
				Help:      "Instances waiting for checkout",
			},
			[]string{"pool", "variant"},
		),
		active: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_instances",
				Help:      "Instances currently checked out",
			},
			[]string{"pool", "variant"},
		),
		precreateTick: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "precreate_tick_seconds",
				Help:      "Duration of one precreation tick",
				Buckets: []float64{
					1e-6, // 1μs - nothing left to create
					1e-5, // 10μs
					1e-4, // 100μs
					1e-3, // 1ms
					1e-2, // 10ms - a noticeable share of a frame
					1e-1, // 100ms - dropped frames
				},
			},
		),
		precreateRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "precreate_ticks_total",
				Help:      "Precreation ticks by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Created implements pool.Observer.
func (c *Collector) Created(pool string, variant int) {
	v := strconv.Itoa(variant)
	c.created.WithLabelValues(pool, v).Inc()
	c.free.WithLabelValues(pool, v).Inc()
}

// CheckedOut implements pool.Observer.
func (c *Collector) CheckedOut(pool string, variant int, emergency bool) {
	v := strconv.Itoa(variant)
	source := "free_list"
	if emergency {
		source = "emergency"
	}
	c.checkouts.WithLabelValues(pool, v, source).Inc()
	c.free.WithLabelValues(pool, v).Dec()
	c.active.WithLabelValues(pool, v).Inc()
}

// Returned implements pool.Observer.
func (c *Collector) Returned(pool string, variant int) {
	v := strconv.Itoa(variant)
	c.returns.WithLabelValues(pool, v).Inc()
	c.active.WithLabelValues(pool, v).Dec()
	c.free.WithLabelValues(pool, v).Inc()
}

// Rejected implements pool.Observer.
func (c *Collector) Rejected(pool string) {
	c.rejected.WithLabelValues(pool).Inc()
}

// ObservePrecreateTick records one PrecreateAll call.
func (c *Collector) ObservePrecreateTick(d time.Duration, done bool) {
	c.precreateTick.Observe(d.Seconds())
	outcome := "pending"
	if done {
		outcome = "done"
	}
	c.precreateRuns.WithLabelValues(outcome).Inc()
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
//
// Example:
//
//	timer := metrics.NewTimer()
//	done := f.PrecreateAll()
//	collector.ObservePrecreateTick(timer.Stop(), done)
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called
// multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
