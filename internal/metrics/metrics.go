package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecasteval_evaluations_total",
			Help: "Total evaluation calls by outcome",
		},
		[]string{"status"},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forecasteval_evaluation_duration_seconds",
			Help:    "Evaluation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SeriesScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecasteval_series_scored_total",
			Help: "Total series scored, by category",
		},
		[]string{"category"},
	)

	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecasteval_fetches_total",
			Help: "Total corpus file fetches",
		},
		[]string{"scheme", "status"},
	)

	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecasteval_fetch_latency_seconds",
			Help:    "Corpus file fetch latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"scheme"},
	)

	SeriesCached = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecasteval_series_cached_total",
			Help: "Total series written to the value cache",
		},
		[]string{"partition"},
	)
)
