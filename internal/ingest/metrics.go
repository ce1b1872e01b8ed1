package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons used as the "reason" label of dtu_ingest_frames_dropped_total.
const (
	ReasonMalformed   = "malformed"
	ReasonUnsupported = "unsupported"
	ReasonPersistence = "persistence"
	ReasonTimeout     = "timeout"
	ReasonCancelled   = "cancelled"
)

// Metrics holds the ingest Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FramesReceived    prometheus.Counter
	FramesDropped     *prometheus.CounterVec
	Verdicts          *prometheus.CounterVec
	RowsStored        prometheus.Counter
	DuplicatesStamped prometheus.Counter
	CacheErrors       *prometheus.CounterVec
	FrameDuration     prometheus.Histogram
	InFlight          prometheus.Gauge
}

// NewMetrics creates the ingest collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtu_ingest_frames_received_total",
			Help: "Frames handed to the processor",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dtu_ingest_frames_dropped_total",
			Help: "Frames dropped before completion, by reason",
		}, []string{"reason"}),
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dtu_ingest_verdicts_total",
			Help: "Change detection verdicts",
		}, []string{"verdict"}),
		RowsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtu_ingest_rows_stored_total",
			Help: "Snapshot rows written as current",
		}),
		DuplicatesStamped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtu_ingest_duplicates_stamped_total",
			Help: "Unchanged observations stamped on the current row",
		}),
		CacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dtu_ingest_cache_errors_total",
			Help: "Fingerprint cache failures, by operation",
		}, []string{"op"}),
		FrameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dtu_ingest_frame_duration_seconds",
			Help:    "Time from frame receipt to outcome",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dtu_ingest_frames_in_flight",
			Help: "Frames currently being processed",
		}),
	}

	reg.MustRegister(
		m.FramesReceived,
		m.FramesDropped,
		m.Verdicts,
		m.RowsStored,
		m.DuplicatesStamped,
		m.CacheErrors,
		m.FrameDuration,
		m.InFlight,
	)
	return m
}

func (m *Metrics) received() {
	if m != nil {
		m.FramesReceived.Inc()
	}
}

func (m *Metrics) dropped(reason string) {
	if m != nil {
		m.FramesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) verdict(v string) {
	if m != nil {
		m.Verdicts.WithLabelValues(v).Inc()
	}
}

func (m *Metrics) stored() {
	if m != nil {
		m.RowsStored.Inc()
	}
}

func (m *Metrics) stamped() {
	if m != nil {
		m.DuplicatesStamped.Inc()
	}
}

func (m *Metrics) cacheError(op string) {
	if m != nil {
		m.CacheErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) observe(seconds float64) {
	if m != nil {
		m.FrameDuration.Observe(seconds)
	}
}

func (m *Metrics) inFlight(delta float64) {
	if m != nil {
		m.InFlight.Add(delta)
	}
}
