// Package metrics holds the process wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pricehunt"

var (
	// PlatformRequestsTotal counts adapter calls by platform and outcome
	// (success, empty_result, or an error code).
	PlatformRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "platform_requests_total",
		Help:      "Adapter calls by platform and outcome.",
	}, []string{"platform", "status"})

	PlatformRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "platform_request_duration_seconds",
		Help:      "Adapter call latency.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 45, 60},
	}, []string{"platform"})

	PlatformResults = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "platform_results",
		Help:      "Normalized results returned per adapter call.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
	}, []string{"platform"})

	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "searches_total",
		Help:      "Search pipeline runs by result (success, degraded, failed, cached).",
	}, []string{"result"})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_duration_seconds",
		Help:      "End to end search pipeline latency.",
		Buckets:   prometheus.DefBuckets,
	})

	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_requests_total",
		Help:      "Result cache lookups by outcome (hit, miss, bypass).",
	}, []string{"outcome"})

	CacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_evictions_total",
		Help:      "Entries evicted because the cache reached its capacity.",
	})

	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_total",
		Help:      "Search task status transitions by target status.",
	}, []string{"status"})

	TasksRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_running",
		Help:      "Search tasks currently executing.",
	})
)
