// Package prometheus renders engine counters and latency histograms in the
// Prometheus text exposition format.
//
// Counter names are prefixed boxum_ and end in _total. The histograms are
// boxum_login_latency_seconds and boxum_registration_latency_seconds and
// report a zero _sum. Nothing is registered globally; callers mount
// [Exporter.Handler] themselves.
package prometheus
