// Package metrics exposes Prometheus collectors for document processing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsProcessed counts documents by final outcome.
	DocumentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scanprep",
		Name:      "documents_processed_total",
		Help:      "Documents processed, labeled by outcome.",
	}, []string{"outcome"})

	// PagesProcessed counts individual pages run through the pipeline.
	PagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scanprep",
		Name:      "pages_processed_total",
		Help:      "Pages run through the preprocessing pipeline.",
	})

	// OrientationCorrections counts pages that were rotated upright.
	OrientationCorrections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scanprep",
		Name:      "orientation_corrections_total",
		Help:      "Pages whose orientation was corrected.",
	})

	// StageFailures counts soft stage failures by stage name.
	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scanprep",
		Name:      "stage_failures_total",
		Help:      "Pipeline stages that failed and were skipped.",
	}, []string{"stage"})

	// StageDuration tracks per-stage wall time.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scanprep",
		Name:      "stage_duration_seconds",
		Help:      "Wall time spent per pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"stage"})
)
