package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result sources reported by search metrics.
const (
	sourceIndex    = "index"
	sourceFallback = "fallback"
	sourceCache    = "cache"
	sourceEmpty    = "empty"
	sourceDegraded = "degraded"
)

var (
	searchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Search requests by operation and the source that served them",
		},
		[]string{"op", "source"},
	)

	searchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_request_duration_seconds",
			Help:    "Search request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"op"},
	)

	historyWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_history_writes_total",
			Help: "Search history upserts by result",
		},
		[]string{"result"},
	)

	reindexRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_reindex_runs_total",
			Help: "Full reindex runs by strategy and result",
		},
		[]string{"strategy", "result"},
	)

	indexedDocuments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "search_reindex_documents",
			Help: "Documents imported by the last successful full reindex",
		},
	)
)
