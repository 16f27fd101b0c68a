// Package metrics provides Prometheus metrics for the Willow service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ImportJobsTotal tracks finished import jobs by source and terminal status
	ImportJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "import",
			Name:      "jobs_total",
			Help:      "Total number of finished import jobs by status",
		},
		[]string{"source", "status"},
	)

	// ItemsCommittedTotal tracks per-item commit outcomes
	ItemsCommittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "import",
			Name:      "items_committed_total",
			Help:      "Total number of item commit attempts by outcome",
		},
		[]string{"source", "outcome"},
	)

	// CommitDuration tracks the duration of whole-job commit passes
	CommitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "willow",
			Subsystem: "import",
			Name:      "commit_duration_seconds",
			Help:      "Duration of job commit passes in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"source"},
	)

	// FetchedItemsTotal tracks items staged per fetch
	FetchedItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "import",
			Name:      "items_fetched_total",
			Help:      "Total number of items fetched and staged by source",
		},
		[]string{"source"},
	)

	// SyncsTotal tracks account sync attempts
	SyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "accounts",
			Name:      "syncs_total",
			Help:      "Total number of account sync attempts by status",
		},
		[]string{"source", "status"},
	)

	// DuplicateScansTotal tracks duplicate scan passes
	DuplicateScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "dedup",
			Name:      "scans_total",
			Help:      "Total number of duplicate scan passes by status",
		},
		[]string{"status"},
	)

	// DuplicateReportsTotal tracks duplicate report lifecycle changes
	DuplicateReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "dedup",
			Name:      "reports_total",
			Help:      "Total number of duplicate report lifecycle changes",
		},
		[]string{"event"},
	)

	// ScanDuration tracks duplicate scan duration
	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "willow",
			Subsystem: "dedup",
			Name:      "scan_duration_seconds",
			Help:      "Duration of duplicate scan passes in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	// TargetRequestsTotal tracks calls to the platform API
	TargetRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "target",
			Name:      "requests_total",
			Help:      "Total number of platform API calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
)

// RecordJobFinished records a finished import job
func RecordJobFinished(source, status string, durationSeconds float64) {
	ImportJobsTotal.WithLabelValues(source, status).Inc()
	CommitDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordItemCommit records one item commit outcome
func RecordItemCommit(source, outcome string) {
	ItemsCommittedTotal.WithLabelValues(source, outcome).Inc()
}

// RecordSync records an account sync attempt
func RecordSync(source, status string) {
	SyncsTotal.WithLabelValues(source, status).Inc()
}

// RecordScan records a duplicate scan pass
func RecordScan(status string, durationSeconds float64) {
	DuplicateScansTotal.WithLabelValues(status).Inc()
	ScanDuration.Observe(durationSeconds)
}
