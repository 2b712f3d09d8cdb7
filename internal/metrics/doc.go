// Package metrics provides Prometheus metrics for the reactive runtime.
//
// # Overview
//
// Collector implements engine.Metrics. Install it with engine.WithMetrics
// and every recompute, propagation pass, history step, edge change and
// runtime failure is counted.
//
// # Metrics
//
//   - recomputes_total{kind}: RxFunc invocations by node kind
//   - passes_total: finished propagation passes
//   - pass_recomputes: histogram of recomputes per pass
//   - pass_peak_depth: histogram of the deepest level reached per pass
//   - history_steps_total{direction}: undo/redo steps
//   - edges_added_total, edges_removed_total: dependency graph churn
//   - failures_total{code}: runtime errors by code
//
// # Usage
//
//	registry := prometheus.NewRegistry()
//	collector := metrics.NewCollector(metrics.Config{Namespace: "rxstore"}, registry)
//	rt := engine.New(engine.WithMetrics(collector))
//
//	// ... drive the runtime ...
//
//	metrics.WriteText(os.Stdout, registry)
package metrics
