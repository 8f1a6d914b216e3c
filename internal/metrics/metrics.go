// Package metrics declares the Prometheus collectors shared by the fetch
// layer, the ETL routines, and the operator API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Provider API calls, one observation per HTTP attempt
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cricket_api_calls_total",
			Help: "Total number of Cricbuzz API attempts by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cricket_api_call_duration_seconds",
			Help:    "Duration of Cricbuzz API attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIBudgetUsed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cricket_api_budget_used",
			Help: "Provider calls charged against the overall budget",
		},
	)

	// ETL outcomes
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cricket_etl_records_total",
			Help: "Records processed by the ETL by entity and outcome (upserted, skipped)",
		},
		[]string{"entity", "outcome"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cricket_etl_run_duration_seconds",
			Help:    "Duration of ETL routines in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"routine", "status"},
	)

	// Operator API
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cricket_http_requests_total",
			Help: "Operator API requests by route pattern and status code",
		},
		[]string{"route", "status"},
	)

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cricket_cache_hits_total",
			Help: "Total number of response cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cricket_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)
)
