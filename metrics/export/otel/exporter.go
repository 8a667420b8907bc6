package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/Yellowatch/boxumco"
	"github.com/Yellowatch/boxumco/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// MetricsSource is satisfied by *boxumco.Engine.
type MetricsSource interface {
	MetricsSnapshot() boxumco.MetricsSnapshot
	AuditDropped() uint64
}

// bucketAttrs holds one "le" attribute option per bucket bound, built once.
var bucketAttrs = func() [boxumco.HistogramBucketCount]metric.ObserveOption {
	var out [boxumco.HistogramBucketCount]metric.ObserveOption
	for i, bound := range internaldefs.HistogramBounds {
		out[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", bound)))
	}
	return out
}()

type latencyInstruments struct {
	id      boxumco.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter holds the instrument registration. Close unregisters it.
type Exporter struct {
	source       MetricsSource
	registration metric.Registration
	counters     map[boxumco.MetricID]metric.Int64ObservableCounter
	latencies    []latencyInstruments
	auditDropped metric.Int64ObservableCounter
}

// New registers observable instruments on meter that read from source. Each
// latency histogram becomes a <name>_bucket gauge keyed by an "le" attribute
// holding cumulative counts, plus a <name>_count gauge.
func New(meter metric.Meter, source MetricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make(map[boxumco.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = c
		observables = append(observables, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."),
			metric.WithUnit("{request}"))
		if err != nil {
			return nil, fmt.Errorf("otel gauge %s_bucket: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."),
			metric.WithUnit("{request}"))
		if err != nil {
			return nil, fmt.Errorf("otel gauge %s_count: %w", def.Name, err)
		}
		e.latencies = append(e.latencies, latencyInstruments{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter("boxum_audit_dropped_total",
		metric.WithDescription("Audit events dropped on a full dispatcher buffer."))
	if err != nil {
		return nil, fmt.Errorf("otel counter boxum_audit_dropped_total: %w", err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("otel register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for id, c := range e.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}
	for _, l := range e.latencies {
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[l.id]))
		for i, n := range cum {
			o.ObserveInt64(l.buckets, int64(n), bucketAttrs[i])
		}
		o.ObserveInt64(l.count, int64(cum[len(cum)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
