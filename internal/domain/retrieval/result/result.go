// Package result holds ranked retrieval hits.
package result

import "github.com/kailas-cloud/kbsearch/internal/domain/retrieval/candidate"

// Result is a single ranked candidate.
type Result struct {
	id       string
	content  string
	metadata map[string]any
	lineage  candidate.Lineage
	score    float64
	index    int
}

// New creates a search result. index is the candidate's position in the fetched batch.
func New(c *candidate.Candidate, score float64, index int) Result {
	return Result{
		id:       c.ID,
		content:  c.Content,
		metadata: c.Metadata,
		lineage:  c.Lineage,
		score:    score,
		index:    index,
	}
}

// ID returns the chunk identifier.
func (r *Result) ID() string { return r.id }

// Content returns the chunk text.
func (r *Result) Content() string { return r.content }

// Metadata returns the stored chunk metadata.
func (r *Result) Metadata() map[string]any { return r.metadata }

// Lineage returns the chunk lineage.
func (r *Result) Lineage() candidate.Lineage { return r.lineage }

// Score returns the cosine similarity in [-1, 1].
func (r *Result) Score() float64 { return r.score }

// Index returns the original candidate position, used as the tie-break.
func (r *Result) Index() int { return r.index }

// Before reports whether r ranks ahead of o: higher score first, then lower index.
func (r *Result) Before(o *Result) bool {
	if r.score != o.score {
		return r.score > o.score
	}
	return r.index < o.index
}
