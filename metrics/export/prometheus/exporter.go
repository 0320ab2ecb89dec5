package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/metrics/export/internaldefs"
)

// Source is the part of [phoneauth.Engine] the exporter reads.
type Source interface {
	MetricsSnapshot() phoneauth.MetricsSnapshot
	AuditDropped() uint64
	DeliveryPending() int
}

// Exporter renders engine metrics on demand.
type Exporter struct {
	source Source
}

// NewExporter creates an exporter reading from source, typically an
// [*phoneauth.Engine].
func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler returns an http.Handler that serves the metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics. It is empty when metrics are
// disabled and nothing else has been recorded.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	pending := p.source.DeliveryPending()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 && pending == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range internaldefs.CounterDefs {
		writeMetric(&b, def.Name, def.Help, "counter", snapshot.Counters[def.ID])
	}

	for _, def := range internaldefs.HistogramDefs {
		nonCumulative := internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID])
		cumulative := internaldefs.CumulativeBuckets(nonCumulative)
		writeHistogram(&b, def.Name, def.Help, cumulative)
	}

	writeMetric(&b, "phoneauth_audit_dropped_total", "Dropped audit events due to dispatcher backpressure.", "counter", dropped)
	writeMetric(&b, "phoneauth_delivery_pending", "SMS messages waiting for a delivery worker.", "gauge", uint64(pending))

	return b.String()
}

func writeMetric(b *strings.Builder, name, help, kind string, value uint64) {
	writeHeader(b, name, help, kind)
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	writeHeader(b, name, help, "histogram")

	for i, le := range internaldefs.HistogramBounds {
		b.WriteString(name)
		b.WriteString("_bucket{le=\"")
		b.WriteString(le)
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(cumulative[i], 10))
		b.WriteByte('\n')
	}

	count := cumulative[len(cumulative)-1]
	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(count, 10))
	b.WriteByte('\n')

	// Snapshots keep bucket counts only.
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
