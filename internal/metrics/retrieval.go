package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval Prometheus metrics.
var (
	SearchOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_outcomes_total",
			Help:      "Search outcomes by kind (ok, soft_fail, hard_error) and reason",
		},
		[]string{"outcome", "reason"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_stage_duration_seconds",
			Help:      "Duration of retrieval stages in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"stage"}, // embed, fetch, score_sort, total
	)

	CandidatesEvaluated = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_candidates_evaluated",
			Help:      "Candidates scored per search",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	CoercionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coercion_total",
			Help:      "Stored embeddings by coercion result (normalized, short, skipped)",
		},
		[]string{"result"},
	)

	ManifestWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manifest_writes_total",
			Help:      "Manifest writes by status",
		},
		[]string{"status"},
	)
)

// Throttle Prometheus metrics.
var (
	// No key label: keys are per knowledge base and unbounded. The
	// throttle.acquire_timeout event carries the key.
	ThrottleAcquireTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_acquire_timeouts_total",
			Help:      "Slot acquisitions that timed out and proceeded anyway (fail-open)",
		},
	)

	ThrottleWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "throttle_wait_duration_seconds",
			Help:      "Time spent waiting in the throttle gate",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"phase"}, // acquire, pace
	)

	ThrottleInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throttle_in_flight",
			Help:      "Searches currently holding a throttle slot",
		},
	)
)
