package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Config names the metric family prefix.
type Config struct {
	Namespace string
	Subsystem string

	// PassBuckets are the histogram buckets for recomputes and depth per
	// pass. Nil uses DefaultPassBuckets.
	PassBuckets []float64
}

// DefaultPassBuckets covers passes from a single recompute up to the
// default depth limit.
var DefaultPassBuckets = prometheus.ExponentialBuckets(1, 2, 11)

// Collector records runtime metrics. It implements engine.Metrics.
type Collector struct {
	recomputesTotal   *prometheus.CounterVec
	passesTotal       prometheus.Counter
	passRecomputes    prometheus.Histogram
	passPeakDepth     prometheus.Histogram
	historyStepsTotal *prometheus.CounterVec
	edgesAddedTotal   prometheus.Counter
	edgesRemovedTotal prometheus.Counter
	failuresTotal     *prometheus.CounterVec
}

// NewCollector creates the runtime metrics and registers them with
// registry. If registry is nil a fresh one is used, so tests never touch
// the global default registry.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	collector := metrics.NewCollector(metrics.Config{Namespace: "rxstore"}, registry)
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	buckets := cfg.PassBuckets
	if buckets == nil {
		buckets = DefaultPassBuckets
	}

	c := &Collector{
		recomputesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "recomputes_total",
				Help:      "Total number of RxFunc invocations by node kind",
			},
			[]string{"kind"},
		),
		passesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "passes_total",
				Help:      "Total number of finished propagation passes",
			},
		),
		passRecomputes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "pass_recomputes",
				Help:      "Recomputes per propagation pass",
				Buckets:   buckets,
			},
		),
		passPeakDepth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "pass_peak_depth",
				Help:      "Deepest propagation level reached per pass",
				Buckets:   buckets,
			},
		),
		historyStepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "history_steps_total",
				Help:      "Total number of undo/redo steps by direction",
			},
			[]string{"direction"},
		),
		edgesAddedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "edges_added_total",
				Help:      "Total number of dependency edges recorded",
			},
		),
		edgesRemovedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "edges_removed_total",
				Help:      "Total number of dependency edges pruned",
			},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "failures_total",
				Help:      "Total number of runtime errors by code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		c.recomputesTotal,
		c.passesTotal,
		c.passRecomputes,
		c.passPeakDepth,
		c.historyStepsTotal,
		c.edgesAddedTotal,
		c.edgesRemovedTotal,
		c.failuresTotal,
	)
	return c
}

// Recompute counts one RxFunc invocation.
//
// Example:
//
//	collector.Recompute("reaction")
func (c *Collector) Recompute(kind string) {
	c.recomputesTotal.WithLabelValues(kind).Inc()
}

// Pass records a finished propagation pass.
func (c *Collector) Pass(recomputes, peakDepth int) {
	c.passesTotal.Inc()
	c.passRecomputes.Observe(float64(recomputes))
	c.passPeakDepth.Observe(float64(peakDepth))
}

// HistoryStep counts one undo ("backward") or redo ("forward") step.
func (c *Collector) HistoryStep(direction string) {
	c.historyStepsTotal.WithLabelValues(direction).Inc()
}

// Edges records dependency graph churn.
func (c *Collector) Edges(added, removed int) {
	if added > 0 {
		c.edgesAddedTotal.Add(float64(added))
	}
	if removed > 0 {
		c.edgesRemovedTotal.Add(float64(removed))
	}
}

// Failure counts a runtime error by code.
//
// Example:
//
//	collector.Failure("CYCLE_DETECTED")
func (c *Collector) Failure(code string) {
	c.failuresTotal.WithLabelValues(code).Inc()
}

// WriteText gathers g and writes every metric family in the Prometheus
// text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
