// Package metrics exposes relicforge's Prometheus collectors and the
// optional scrape listener.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relicforge/internal/logging"
)

var (
	// CompositionsTotal counts composition runs by outcome
	// (hit, computed, error, timeout).
	CompositionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relicforge_compositions_total",
		Help: "Composition runs by outcome.",
	}, []string{"outcome"})

	// CompositionDuration observes end-to-end composition latency.
	CompositionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relicforge_composition_duration_seconds",
		Help:    "End-to-end composition latency.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	// CacheRequests counts cache lookups by backend and result (hit, miss,
	// expired, error).
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relicforge_cache_requests_total",
		Help: "Cache lookups by backend and result.",
	}, []string{"backend", "result"})

	// OptimizerCandidates counts generated candidates by strategy.
	OptimizerCandidates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relicforge_optimizer_candidates_total",
		Help: "Candidate combinations generated, by strategy.",
	}, []string{"strategy"})

	// OptimizerEvaluations counts candidate evaluations by outcome
	// (kept, below_threshold, failed).
	OptimizerEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relicforge_optimizer_evaluations_total",
		Help: "Candidate evaluations by outcome.",
	}, []string{"outcome"})
)

// Serve starts the scrape listener on addr and returns the server so the
// caller can shut it down. Failures after startup are logged, never fatal.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logging.Metrics("metrics listener on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.MetricsError("metrics listener failed: %v", err)
		}
	}()
	return srv
}
