package statusapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xcpkit/xcp/internal/status"
)

// snapshotCollector adapts an Aggregator's published Snapshot into the
// Prometheus collector interface, so /metrics always reflects the most
// recent state without a separate update goroutine.
type snapshotCollector struct {
	agg *status.Aggregator

	bytesCopied *prometheus.Desc
	totalBytes  *prometheus.Desc
	failed      *prometheus.Desc
}

func newSnapshotCollector(agg *status.Aggregator) *snapshotCollector {
	return &snapshotCollector{
		agg: agg,
		bytesCopied: prometheus.NewDesc(
			"xcp_bytes_copied_total", "Total bytes copied so far in this invocation.", nil, nil),
		totalBytes: prometheus.NewDesc(
			"xcp_bytes_total", "Total bytes discovered so far across all sources.", nil, nil),
		failed: prometheus.NewDesc(
			"xcp_failed", "1 if the invocation has observed a failure, 0 otherwise.", nil, nil),
	}
}

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bytesCopied
	ch <- c.totalBytes
	ch <- c.failed
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.agg.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.bytesCopied, prometheus.CounterValue, float64(snap.BytesCopied))
	ch <- prometheus.MustNewConstMetric(c.totalBytes, prometheus.GaugeValue, float64(snap.TotalBytes))
	failed := 0.0
	if snap.FirstError != nil {
		failed = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.GaugeValue, failed)
}

// newMetricsHandler builds a dedicated Prometheus registry scoped to this
// invocation's snapshot collector, avoiding the global default registry so
// that repeated Server construction in tests never panics on double
// registration.
func newMetricsHandler(agg *status.Aggregator) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(newSnapshotCollector(agg))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
