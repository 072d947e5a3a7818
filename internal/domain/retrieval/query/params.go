// Package query holds the per-call retrieval request.
package query

import (
	"strings"
	"time"

	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/event"
)

// DefaultCandidateLimit applies when a request sets no candidate limit.
const DefaultCandidateLimit = 500

// Request ceilings enforced by callers that accept untrusted input (HTTP,
// config). The retriever itself honors whatever k and limit it is given.
const (
	MaxCandidateLimit = 20000
	MaxK              = 200
	MaxQueryLength    = 4096
)

// Params is one search request. Callers build it per call and do not mutate
// it while a search is running.
type Params struct {
	// DB identifies the knowledge-base database the candidates live in.
	DB    string
	Slug  string
	Scope string
	Query string
	K     int
	// CandidateLimit bounds how many candidates are fetched. Zero means DefaultCandidateLimit.
	CandidateLimit int
	// LatencyBudget overrides the throttle settings' budget when positive.
	LatencyBudget time.Duration
	// ResponseID names the manifest written for this response. Empty disables the manifest.
	ResponseID string
	// StartedAt anchors the deadline. Zero means the moment the search starts.
	StartedAt time.Time
}

// Text returns the query with surrounding whitespace removed.
func (p *Params) Text() string { return strings.TrimSpace(p.Query) }

// ThrottleKey returns the shared-resource key for this request.
func (p *Params) ThrottleKey() string { return p.Slug + "::" + p.Scope }

// Limit returns the effective candidate limit.
func (p *Params) Limit() int {
	if p.CandidateLimit <= 0 {
		return DefaultCandidateLimit
	}
	return p.CandidateLimit
}

// Check validates the request. It returns the causal event for a rejected
// request and false, or "" and true when the request may proceed.
// A blank query is checked before k.
func (p *Params) Check() (event.Name, bool) {
	text := p.Text()
	if text == "" {
		return event.QueryInvalid, false
	}
	if p.K <= 0 {
		return event.QuerySkipped, false
	}
	return "", true
}
