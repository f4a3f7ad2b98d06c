package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amandrive_search_requests_total",
			Help: "Search requests by result (hit, empty, error)",
		},
		[]string{"result"},
	)

	searchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "amandrive_search_duration_seconds",
			Help:    "Search latency by sort order",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sort"},
	)
)
