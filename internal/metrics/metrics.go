package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for a capture run.
type Metrics struct {
	registry             *prometheus.Registry
	pollsTotal           prometheus.Counter
	segmentsWrittenTotal *prometheus.CounterVec
	segmentFailuresTotal prometheus.Counter
	bytesWrittenTotal    prometheus.Counter
	activePollers        prometheus.Gauge
}

// New creates and registers the capture metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	pollsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hlsgrab_playlist_polls_total",
		Help: "Total number of media playlist fetches",
	})
	segmentsWrittenTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsgrab_segments_written_total",
		Help: "Total number of segments persisted to disk",
	}, []string{"stream"})
	segmentFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hlsgrab_segment_failures_total",
		Help: "Total number of segments dropped after fetch, decrypt or write failure",
	})
	bytesWrittenTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hlsgrab_bytes_written_total",
		Help: "Total segment bytes persisted to disk",
	})
	activePollers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hlsgrab_active_pollers",
		Help: "Number of playlist pollers currently running",
	})

	registry.MustRegister(
		pollsTotal,
		segmentsWrittenTotal,
		segmentFailuresTotal,
		bytesWrittenTotal,
		activePollers,
	)

	return &Metrics{
		registry:             registry,
		pollsTotal:           pollsTotal,
		segmentsWrittenTotal: segmentsWrittenTotal,
		segmentFailuresTotal: segmentFailuresTotal,
		bytesWrittenTotal:    bytesWrittenTotal,
		activePollers:        activePollers,
	}
}

// IncPolls increments the playlist poll counter.
func (m *Metrics) IncPolls() {
	m.pollsTotal.Inc()
}

// IncSegmentsWritten increments the persisted-segment counter for a stream.
func (m *Metrics) IncSegmentsWritten(stream string) {
	m.segmentsWrittenTotal.WithLabelValues(stream).Inc()
}

// IncSegmentFailures increments the dropped-segment counter.
func (m *Metrics) IncSegmentFailures() {
	m.segmentFailuresTotal.Inc()
}

// AddBytesWritten adds n to the persisted-bytes counter.
func (m *Metrics) AddBytesWritten(n int) {
	m.bytesWrittenTotal.Add(float64(n))
}

// PollerStarted increments the active poller gauge.
func (m *Metrics) PollerStarted() {
	m.activePollers.Inc()
}

// PollerStopped decrements the active poller gauge.
func (m *Metrics) PollerStopped() {
	m.activePollers.Dec()
}

// Handler returns an http.Handler that serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
