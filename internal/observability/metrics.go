package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Mutation metrics
	EventsAppended     *prometheus.CounterVec
	MutationDuration   *prometheus.HistogramVec
	VersionConflicts   *prometheus.CounterVec
	BufferedEventCount *prometheus.GaugeVec

	// Segment/compaction metrics
	SegmentsWritten     *prometheus.CounterVec
	SegmentWriteBytes   *prometheus.HistogramVec
	SegmentWriteLatency *prometheus.HistogramVec
	CompactionRuns      *prometheus.CounterVec
	CompactionDuration  *prometheus.HistogramVec
	CompactedSegments   *prometheus.GaugeVec
	CompactedEvents     *prometheus.GaugeVec

	// Query metrics
	QueryDuration     *prometheus.HistogramVec
	AggregateDuration *prometheus.HistogramVec
	RowsMaterialized  *prometheus.CounterVec

	// Storage metrics
	BlobWriteDuration *prometheus.HistogramVec
	BlobReadDuration  *prometheus.HistogramVec
	BlobErrors        *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		EventsAppended: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parquedb_events_appended_total",
				Help: "Total number of events appended to the log",
			},
			[]string{"namespace", "op"},
		),
		MutationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parquedb_mutation_duration_seconds",
				Help:    "Duration of create/update/delete/restore operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"namespace", "op"},
		),
		VersionConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parquedb_version_conflicts_total",
				Help: "Total number of optimistic concurrency version conflicts",
			},
			[]string{"namespace"},
		),
		BufferedEventCount: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "parquedb_buffered_event_count",
				Help: "Number of events currently buffered awaiting a segment flush",
			},
			[]string{"branch"},
		),

		SegmentsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parquedb_segments_written_total",
				Help: "Total number of Parquet segments written to storage",
			},
			[]string{"branch"},
		),
		SegmentWriteBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parquedb_segment_write_bytes",
				Help:    "Size in bytes of written Parquet segments",
				Buckets: prometheus.ExponentialBuckets(1024*64, 2, 10),
			},
			[]string{"branch"},
		),
		SegmentWriteLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parquedb_segment_write_duration_seconds",
				Help:    "Duration of segment write operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"branch"},
		),
		CompactionRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parquedb_compaction_runs_total",
				Help: "Total number of compaction runs, by outcome",
			},
			[]string{"branch", "status"},
		),
		CompactionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parquedb_compaction_duration_seconds",
				Help:    "Duration of compaction runs",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"branch"},
		),
		CompactedSegments: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "parquedb_compacted_segment_count",
				Help: "Number of segments in the manifest after the last compaction",
			},
			[]string{"branch"},
		),
		CompactedEvents: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "parquedb_compacted_event_count",
				Help: "Number of events merged by the last compaction run",
			},
			[]string{"branch"},
		),

		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parquedb_query_duration_seconds",
				Help:    "Duration of find()/getRelated() queries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"namespace", "op"},
		),
		AggregateDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parquedb_aggregate_duration_seconds",
				Help:    "Duration of columnar aggregate() calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"namespace", "kind"},
		),
		RowsMaterialized: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parquedb_rows_materialized_total",
				Help: "Total number of rows materialized to satisfy a query or aggregate",
			},
			[]string{"namespace", "op"},
		),

		BlobWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parquedb_blob_write_duration_seconds",
				Help:    "Duration of blob store write operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		BlobReadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parquedb_blob_read_duration_seconds",
				Help:    "Duration of blob store read operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		BlobErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parquedb_blob_errors_total",
				Help: "Total number of blob store errors, by backend and operation",
			},
			[]string{"backend", "operation"},
		),
	}
}

// IncEventsAppended increments the events-appended counter.
func (m *Metrics) IncEventsAppended(namespace, op string) {
	m.EventsAppended.WithLabelValues(namespace, op).Inc()
}

// ObserveMutationDuration observes a mutation's wall-clock duration.
func (m *Metrics) ObserveMutationDuration(namespace, op string, seconds float64) {
	m.MutationDuration.WithLabelValues(namespace, op).Observe(seconds)
}

// IncVersionConflicts increments the version-conflict counter.
func (m *Metrics) IncVersionConflicts(namespace string) {
	m.VersionConflicts.WithLabelValues(namespace).Inc()
}

// SetBufferedEventCount sets the current buffered-event gauge.
func (m *Metrics) SetBufferedEventCount(branch string, count float64) {
	m.BufferedEventCount.WithLabelValues(branch).Set(count)
}

// IncSegmentsWritten increments the segments-written counter.
func (m *Metrics) IncSegmentsWritten(branch string) {
	m.SegmentsWritten.WithLabelValues(branch).Inc()
}

// ObserveSegmentWrite records a segment write's size and latency.
func (m *Metrics) ObserveSegmentWrite(branch string, bytes, seconds float64) {
	m.SegmentWriteBytes.WithLabelValues(branch).Observe(bytes)
	m.SegmentWriteLatency.WithLabelValues(branch).Observe(seconds)
}

// ObserveCompaction records the outcome and duration of a compaction run
// and the resulting segment/event counts.
func (m *Metrics) ObserveCompaction(branch, status string, seconds float64, segments, events int) {
	m.CompactionRuns.WithLabelValues(branch, status).Inc()
	m.CompactionDuration.WithLabelValues(branch).Observe(seconds)
	m.CompactedSegments.WithLabelValues(branch).Set(float64(segments))
	m.CompactedEvents.WithLabelValues(branch).Set(float64(events))
}

// ObserveQueryDuration observes a find/getRelated call's duration.
func (m *Metrics) ObserveQueryDuration(namespace, op string, seconds float64) {
	m.QueryDuration.WithLabelValues(namespace, op).Observe(seconds)
}

// ObserveAggregateDuration observes an aggregate() call's duration.
func (m *Metrics) ObserveAggregateDuration(namespace, kind string, seconds float64) {
	m.AggregateDuration.WithLabelValues(namespace, kind).Observe(seconds)
}

// AddRowsMaterialized adds to the rows-materialized counter.
func (m *Metrics) AddRowsMaterialized(namespace, op string, rows float64) {
	m.RowsMaterialized.WithLabelValues(namespace, op).Add(rows)
}

// ObserveBlobWrite observes a blob store write's duration.
func (m *Metrics) ObserveBlobWrite(backend string, seconds float64) {
	m.BlobWriteDuration.WithLabelValues(backend).Observe(seconds)
}

// ObserveBlobRead observes a blob store read's duration.
func (m *Metrics) ObserveBlobRead(backend string, seconds float64) {
	m.BlobReadDuration.WithLabelValues(backend).Observe(seconds)
}

// IncBlobErrors increments the blob-errors counter.
func (m *Metrics) IncBlobErrors(backend, operation string) {
	m.BlobErrors.WithLabelValues(backend, operation).Inc()
}
