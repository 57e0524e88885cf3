package survival

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// skippedRecords counts claims dropped during expansion by category and reason
	skippedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claimsurvival_skipped_records_total",
		Help: "Claims skipped during expansion because their record was incomplete",
	}, []string{"category", "reason"})

	// overlapRemovals counts claims removed from lower-priority categories
	overlapRemovals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claimsurvival_overlap_removals_total",
		Help: "Claims removed from a category because a higher-priority category holds them",
	}, []string{"category"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "claimsurvival_analysis_duration_seconds",
		Help:    "Duration of a full analysis run in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	})

	// analysisRuns counts runs by status: success, error, locked
	analysisRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claimsurvival_analysis_runs_total",
		Help: "Analysis runs by final status",
	}, []string{"status"})
)
