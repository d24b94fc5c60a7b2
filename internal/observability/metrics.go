package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpmatch_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "helpmatch_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// ClaimAttempts counts claim calls by outcome (claimed, conflict, rejected).
	ClaimAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpmatch_claim_attempts_total",
		Help: "Claim attempts by outcome",
	}, []string{"outcome"})

	// StatusTransitions counts accepted transitions by from/to status.
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpmatch_status_transitions_total",
		Help: "Accepted request status transitions",
	}, []string{"from", "to"})

	// VersionConflicts counts compare-and-swap rejections by table.
	VersionConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpmatch_version_conflicts_total",
		Help: "Writes rejected because the expected version was stale",
	}, []string{"table"})

	// PhotoReviews counts review decisions.
	PhotoReviews = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpmatch_photo_reviews_total",
		Help: "Proof photo review decisions",
	}, []string{"decision"})

	// RatingsSubmitted counts stored ratings by score.
	RatingsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpmatch_ratings_submitted_total",
		Help: "Ratings stored, by score",
	}, []string{"score"})

	// FanOutEvents counts notification fan-out outcomes by sink and result.
	FanOutEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpmatch_fanout_events_total",
		Help: "Notification fan-out deliveries by sink and result",
	}, []string{"sink", "result"})

	// FanOutQueueDepth is the number of events waiting for a fan-out worker.
	FanOutQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "helpmatch_fanout_queue_depth",
		Help: "Notification events waiting for a worker",
	})

	// ExpiredClaims counts claims cancelled by the reaper.
	ExpiredClaims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helpmatch_expired_claims_total",
		Help: "Claimed requests cancelled because the claim went stale",
	})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
