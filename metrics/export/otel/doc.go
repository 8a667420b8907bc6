// Package otel publishes engine metrics through an OpenTelemetry Meter.
//
// [New] registers an Int64ObservableCounter per engine counter and, per
// latency histogram, a bucket gauge with an "le" attribute and a count gauge.
// One callback reads MetricsSnapshot on each collection cycle. The caller
// owns the MeterProvider.
package otel
