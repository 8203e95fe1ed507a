// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

// Package metrics provides Prometheus instrumentation for Fleetwright:
// evaluation cycle timing, candidate and suggestion counters, signal
// provider health, weight profile updates, and API request metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Evaluation Cycle Metrics
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_cycle_duration_seconds",
			Help:    "Duration of suggestion evaluation cycles in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_cycles_total",
			Help: "Total number of evaluation cycles by outcome",
		},
		[]string{"outcome"}, // "completed", "aborted", "canceled"
	)

	CandidatesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_candidates_generated_total",
			Help: "Total number of candidates admitted for scoring",
		},
		[]string{"type"},
	)

	CandidatesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_candidates_skipped_total",
			Help: "Total number of candidates skipped during generation",
		},
		[]string{"type", "reason"}, // "open_suggestion", "scoring_error"
	)

	CandidatesDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_candidates_discarded_total",
			Help: "Total number of scored candidates below the actionable threshold",
		},
		[]string{"type"},
	)

	// Suggestion Lifecycle Metrics
	SuggestionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestions_created_total",
			Help: "Total number of suggestions appended to the ledger",
		},
		[]string{"type"},
	)

	SuggestionsDecided = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestions_decided_total",
			Help: "Total number of suggestion decisions by resulting state",
		},
		[]string{"type", "state"}, // "ACCEPTED", "DECLINED"
	)

	SuggestionsExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestions_expired_total",
			Help: "Total number of suggestions expired without a decision",
		},
		[]string{"type"},
	)

	DuplicateSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "suggestions_duplicate_suppressed_total",
			Help: "Total number of duplicate open-suggestion writes suppressed by the idempotency key",
		},
	)

	// Signal Provider Metrics
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signal_provider_latency_seconds",
			Help:    "Latency of signal provider fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	ProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_provider_failures_total",
			Help: "Total number of provider fetches that fell back to a neutral factor",
		},
		[]string{"kind", "reason"}, // "unavailable", "timeout", "breaker_open", "rate_limited", "error"
	)

	// Weight Profile Metrics
	WeightUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weight_profile_updates_total",
			Help: "Total number of weight profile updates by origin",
		},
		[]string{"origin"}, // "feedback", "override", "seed"
	)

	ProfileConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "weight_profile_conflicts_total",
			Help: "Total number of optimistic-concurrency conflicts on profile writes",
		},
	)

	// Feedback Metrics
	FeedbackApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_events_total",
			Help: "Total number of feedback events by outcome",
		},
		[]string{"action", "outcome"}, // outcome: "applied", "stale", "deferred", "invalid"
	)

	FeedbackDeferred = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedback_deferred_pending",
			Help: "Current number of feedback events awaiting deferred reapplication",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordAPIRequest records a completed API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordProviderFetch records the latency of a provider fetch.
func RecordProviderFetch(kind string, duration time.Duration) {
	ProviderLatency.WithLabelValues(kind).Observe(duration.Seconds())
}
