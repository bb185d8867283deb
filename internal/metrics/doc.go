// Package metrics exposes the engine's Prometheus collectors — zone and
// shard size gauges, cache occupancy, GC counters/durations, and
// in-flight reader counts. Grounded on cuemby-warren's pkg/metrics:
// package-level prometheus.NewGaugeVec/NewCounterVec/NewHistogramVec
// vars, registered once from an init func, plus the same Timer helper
// for histogram observation.
package metrics
