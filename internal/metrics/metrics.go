package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Research request metrics
	ResearchSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autoshop_research_requests_submitted_total",
			Help: "Total number of research requests submitted",
		},
	)

	ResearchCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoshop_research_requests_completed_total",
			Help: "Total number of research requests reaching a terminal state",
		},
		[]string{"status"},
	)

	ResearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autoshop_research_duration_seconds",
			Help:    "End-to-end research workflow duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// Reasoning service metrics
	ReasoningCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoshop_reasoning_calls_total",
			Help: "Total number of reasoning service invocations",
		},
		[]string{"agent_id"},
	)

	ReasoningLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoshop_reasoning_latency_seconds",
			Help:    "Reasoning service call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent_id"},
	)

	DecompositionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autoshop_decomposition_errors_total",
			Help: "Total number of failed question decompositions",
		},
	)

	SubQuestionsResearched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoshop_subquestions_researched_total",
			Help: "Total number of sub-questions researched",
		},
		[]string{"category"},
	)

	// Progress channel metrics
	ProgressEventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoshop_progress_events_emitted_total",
			Help: "Total number of progress events published",
		},
		[]string{"status"},
	)

	ProgressEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autoshop_progress_events_dropped_total",
			Help: "Total number of progress events the Redis mirror failed to publish",
		},
	)

	// Store metrics
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoshop_store_errors_total",
			Help: "Total number of best-effort request store failures",
		},
		[]string{"operation"},
	)
)
