package index

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion and index metrics.
var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "amandrive_index_queue_depth",
		Help: "Records waiting in the ingestion queue",
	})

	enqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amandrive_index_enqueued_total",
			Help: "Change notifications by outcome (accepted, dropped)",
		},
		[]string{"outcome"},
	)

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "amandrive_index_batch_size",
		Help:    "Records per committed batch",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	recordFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amandrive_index_record_failures_total",
		Help: "Records skipped because they could not be mapped or written",
	})

	commitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amandrive_index_commits_total",
			Help: "Index commits by result",
		},
		[]string{"result"},
	)

	commitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "amandrive_index_commit_duration_seconds",
		Help:    "Index commit latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	documentCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "amandrive_index_documents",
		Help: "Live documents in the index after the last commit",
	})
)
