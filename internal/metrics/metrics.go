// Package metrics exposes Prometheus instrumentation for request dispatch,
// caching, and spend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rana_requests_total",
		Help: "Completed dispatch requests by provider, model, and outcome",
	}, []string{"provider", "model", "outcome"})

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rana_request_latency_seconds",
		Help:    "Provider round-trip latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "model"})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rana_cache_hits_total",
		Help: "Number of responses served from the cache",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rana_cache_misses_total",
		Help: "Number of requests that required a provider call",
	})

	requestTokens = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rana_request_tokens",
		Help:    "Total token count per request",
		Buckets: []float64{1, 10, 50, 100, 500, 1_000, 2_000, 4_000, 8_000, 16_000, 32_000},
	}, []string{"provider", "model"})

	costUSD = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rana_cost_usd_total",
		Help: "Accumulated spend in USD",
	}, []string{"provider", "model"})

	securityDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rana_security_detections_total",
		Help: "Security findings by category and severity",
	}, []string{"category", "severity"})
)

// ObserveRequest records one completed provider call.
func ObserveRequest(provider, model, outcome string, latencySeconds float64) {
	requestsTotal.WithLabelValues(provider, model, outcome).Inc()
	requestLatency.WithLabelValues(provider, model).Observe(latencySeconds)
}

// ObserveUsage records token volume and spend for a completed request.
func ObserveUsage(provider, model string, totalTokens int, totalCostUSD float64) {
	requestTokens.WithLabelValues(provider, model).Observe(float64(totalTokens))
	costUSD.WithLabelValues(provider, model).Add(totalCostUSD)
}

// CacheHit counts a response served from the cache.
func CacheHit() { cacheHits.Inc() }

// CacheMiss counts a request that reached a provider.
func CacheMiss() { cacheMisses.Inc() }

// SecurityDetection counts one security finding.
func SecurityDetection(category, severity string) {
	securityDetections.WithLabelValues(category, severity).Inc()
}
