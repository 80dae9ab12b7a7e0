// Package metrics exports the resolver's Prometheus counters and
// histograms: query volume, result codes, upstream latency, and the
// decisions made by the rate limiter and response rate limiter.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "resolverd_queries_total", Help: "Total client queries received"},
		[]string{"qtype"},
	)
	ResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "resolverd_responses_total", Help: "Total responses sent, by result code"},
		[]string{"rcode"},
	)
	ResolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "resolverd_resolve_duration_seconds",
			Help:    "Time to resolve a client query end to end",
			Buckets: prometheus.DefBuckets,
		},
	)
	UpstreamQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "resolverd_upstream_queries_total", Help: "Queries issued to upstream nameservers"},
		[]string{"outcome"},
	)
	RateLimitDrops = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "resolverd_ratelimit_drops_total", Help: "Queries rejected by the per-client rate limiter"},
	)
	RRLActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "resolverd_rrl_actions_total", Help: "Response rate limiting decisions"},
		[]string{"action"},
	)
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "resolverd_worker_queue_depth", Help: "Current depth of the query worker pool queue"},
	)
	OutOfBailiwickGlueTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "resolverd_out_of_bailiwick_glue_total", Help: "Resolved glue used for a delegation whose owner name fell outside the delegated zone (observational: legitimate for root/TLD referrals, not dropped)"},
	)
	WorkerJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "resolverd_worker_jobs_total", Help: "Worker pool jobs by outcome"},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		QueriesTotal,
		ResponsesTotal,
		ResolveDuration,
		UpstreamQueries,
		RateLimitDrops,
		RRLActions,
		WorkerQueueDepth,
		OutOfBailiwickGlueTotal,
		WorkerJobsTotal,
	)
}

// ObserveResolveDuration records how long a single client query took
// from receipt to reply, measured from start.
func ObserveResolveDuration(start time.Time) {
	ResolveDuration.Observe(time.Since(start).Seconds())
}
