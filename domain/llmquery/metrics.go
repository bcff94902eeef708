package llmquery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "llmquery_submitted_total",
		Help: "Total number of submitted query pipeline runs",
	})

	queriesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llmquery_finished_total",
		Help: "Total number of finished query pipeline runs by terminal status",
	}, []string{"status"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llmquery_stage_duration_seconds",
		Help:    "Wall-clock duration of each pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"stage"})
)
