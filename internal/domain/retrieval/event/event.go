// Package event names the structured log events emitted by the retriever.
package event

// Name is a structured log event name.
type Name string

// Causal events. A search that returns no results because of a guarded
// condition emits exactly one of these.
const (
	ThrottleDeadline Name = "throttle.deadline"
	QuerySkipped     Name = "query.skipped"
	QueryInvalid     Name = "query.invalid"
	QueryEmbedFailed Name = "query.embed_failed"
	LatencyBudgetHit Name = "latency_budget.hit"
)

// Informational events.
const (
	QueryStarted           Name = "query.started"
	QueryEmbedded          Name = "query.embedded"
	CandidatesFetched      Name = "candidates.fetched"
	CandidatesFetchFailed  Name = "candidates.fetch_failed"
	ThrottleMetrics        Name = "throttle.metrics"
	ThrottleAcquireTimeout Name = "throttle.acquire_timeout"
	EvidenceSelected       Name = "evidence.selected"
	ManifestWritten        Name = "manifest.written"
	ManifestFailed         Name = "manifest.failed"
)

var causal = map[Name]struct{}{
	ThrottleDeadline: {},
	QuerySkipped:     {},
	QueryInvalid:     {},
	QueryEmbedFailed: {},
	LatencyBudgetHit: {},
}

// IsCausal reports whether n explains an empty result.
func (n Name) IsCausal() bool {
	_, ok := causal[n]
	return ok
}

// Causal returns the causal event set in a stable order.
func Causal() []Name {
	return []Name{ThrottleDeadline, QuerySkipped, QueryInvalid, QueryEmbedFailed, LatencyBudgetHit}
}

func (n Name) String() string { return string(n) }
