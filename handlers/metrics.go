package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RecordsProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlap_records_processed_total",
		Help: "Total number of source records processed",
	})
	OverlapsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlap_events_total",
		Help: "Total number of overlap events found",
	})
	InvalidRecordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlap_invalid_records_total",
		Help: "Total number of records marked invalid",
	})
	DiagnosticsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlap_diagnostics_total",
		Help: "Total number of non-fatal errors by kind",
	}, []string{"kind"})
	ChunkDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "overlap_chunk_duration_seconds",
		Help:    "Wall time to process one chunk",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlap_runs_total",
		Help: "Total detection runs by outcome",
	}, []string{"outcome"})
)

// RegisterMetrics registers the collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		RecordsProcessedTotal,
		OverlapsTotal,
		InvalidRecordsTotal,
		DiagnosticsTotal,
		ChunkDurationSeconds,
		RunsTotal,
	)
}

func observeDiagnostic(kind ErrorKind) {
	DiagnosticsTotal.WithLabelValues(kind.String()).Inc()
}
