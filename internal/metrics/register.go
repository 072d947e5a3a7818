package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var registerOnce sync.Once

// Register registers all kbsearch collectors with the default registry.
// Must be called from main; repeated calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestDuration,
			httpRequestsTotal,
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingCacheTotal,
			EmbeddingQuotaRemaining,
			EmbeddingQuotaRejectionsTotal,
			SearchOutcomesTotal,
			SearchDuration,
			CandidatesEvaluated,
			CoercionTotal,
			ManifestWritesTotal,
			ThrottleAcquireTimeoutsTotal,
			ThrottleWaitDuration,
			ThrottleInFlight,
		)
	})
}
