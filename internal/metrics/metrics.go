// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchUsersProcessed counts users whose candidate maps were computed.
	BatchUsersProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recsys_batch_users_processed_total",
		Help: "Users processed by the candidate generation batch",
	})

	// BatchUsersFailed counts users whose candidate documents could not be
	// persisted.
	BatchUsersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recsys_batch_users_failed_total",
		Help: "Users whose candidate persistence failed",
	})

	// BatchPoolSize records the candidate count of the shared pools per run.
	BatchPoolSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "recsys_batch_pool_size",
		Help: "Candidate count per pool in the latest batch run",
	}, []string{"pool"})

	// BatchRunSeconds records the duration of the latest batch run.
	BatchRunSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recsys_batch_run_seconds",
		Help: "Duration of the latest batch run in seconds",
	})

	// RequestDuration observes end-to-end ranking request latency.
	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recsys_request_duration_seconds",
		Help:    "Ranking request duration",
		Buckets: prometheus.DefBuckets,
	})

	// RuleFailures counts rule errors and panics by pipeline stage and rule.
	RuleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recsys_rule_failures_total",
		Help: "Rule errors caught at the pipeline boundary",
	}, []string{"stage", "rule"})

	// FallbackServed counts requests answered from the curated fallback.
	FallbackServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recsys_fallback_served_total",
		Help: "Ranking requests served from the curated fallback list",
	})
)
