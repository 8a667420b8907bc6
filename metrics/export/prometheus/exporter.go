package prometheus

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Yellowatch/boxumco"
	"github.com/Yellowatch/boxumco/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// MetricsSource is satisfied by *boxumco.Engine.
type MetricsSource interface {
	MetricsSnapshot() boxumco.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter reads a fresh snapshot on every scrape and keeps no state.
type Exporter struct {
	source MetricsSource
}

func New(source MetricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the exposition, typically mounted at /metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		p.WriteTo(&buf)
		w.Header().Set("Content-Type", contentType)
		_, _ = buf.WriteTo(w)
	})
}

// Render returns the current exposition, or "" when metrics are disabled.
func (p *Exporter) Render() string {
	var sb strings.Builder
	p.WriteTo(&sb)
	return sb.String()
}

// WriteTo writes the exposition to w. Nothing is written when the source
// reports no counters, no histograms and no dropped audit events.
func (p *Exporter) WriteTo(w io.Writer) (int64, error) {
	if p == nil || p.source == nil {
		return 0, nil
	}
	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return 0, nil
	}

	ew := &errWriter{w: w}
	for _, def := range internaldefs.CounterDefs {
		counter(ew, def.Name, def.Help, snap.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snap.Histograms[def.ID]
		if !ok {
			continue
		}
		histogram(ew, def.Name, def.Help, internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw)))
	}
	counter(ew, "boxum_audit_dropped_total", "Audit events dropped on a full dispatcher buffer.", dropped)
	return ew.n, ew.err
}

// errWriter remembers the first write error and skips later writes.
type errWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	n, err := fmt.Fprintf(e.w, format, args...)
	e.n += int64(n)
	e.err = err
}

func counter(w *errWriter, name, help string, v uint64) {
	w.printf("# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, escapeHelp(help), name, name, v)
}

func histogram(w *errWriter, name, help string, cum [boxumco.HistogramBucketCount]uint64) {
	w.printf("# HELP %s %s\n# TYPE %s histogram\n", name, escapeHelp(help), name)
	for i, le := range internaldefs.HistogramBounds {
		w.printf("%s_bucket{le=%q} %d\n", name, le, cum[i])
	}
	// Sums are not tracked.
	w.printf("%s_sum 0\n%s_count %d\n", name, name, cum[len(cum)-1])
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func escapeHelp(help string) string { return helpEscaper.Replace(help) }
