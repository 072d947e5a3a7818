// Package manifest defines the explainability record persisted for each
// search response.
package manifest

import "github.com/kailas-cloud/kbsearch/internal/domain/retrieval/candidate"

// Version is bumped whenever the manifest layout changes.
const Version = 1

// Manifest is the auditable record of one search response.
type Manifest struct {
	Version     int             `json:"version"`
	ResponseID  string          `json:"response_id"`
	GeneratedAt string          `json:"generated_at"`
	Query       string          `json:"query"`
	Retriever   Retriever       `json:"retriever"`
	Models      Models          `json:"models"`
	Evidence    []Evidence      `json:"evidence"`
	Metrics     Metrics         `json:"metrics"`
	LineageRefs []candidate.Ref `json:"lineage_refs"`
	Flags       Flags           `json:"flags"`
}

// Retriever captures the request parameters that shaped the response.
type Retriever struct {
	DB              string    `json:"db,omitempty"`
	Slug            string    `json:"slug"`
	Scope           string    `json:"scope"`
	K               int       `json:"k"`
	CandidateLimit  int       `json:"candidate_limit"`
	LatencyBudgetMs int64     `json:"latency_budget_ms,omitempty"`
	Throttle        *Throttle `json:"throttle,omitempty"`
}

// Throttle mirrors the throttle settings applied to the call.
type Throttle struct {
	Parallelism         int `json:"parallelism"`
	SleepMsBetweenCalls int `json:"sleep_ms_between_calls"`
	AcquireTimeoutMs    int `json:"acquire_timeout_ms,omitempty"`
}

// Models lists the model identifiers involved in the response.
type Models struct {
	Embedding string `json:"embedding,omitempty"`
}

// Evidence is one ranked chunk.
type Evidence struct {
	Rank     int            `json:"rank"`
	Score    float64        `json:"score"`
	ID       string         `json:"id,omitempty"`
	SourceID string         `json:"source_id"`
	ChunkID  string         `json:"chunk_id,omitempty"`
	Path     string         `json:"path,omitempty"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Metrics carries timings (milliseconds) and counts captured during the search.
type Metrics struct {
	EmbedMs     float64 `json:"embed_ms"`
	FetchMs     float64 `json:"fetch_ms"`
	ScoreSortMs float64 `json:"score_sort_ms"`
	TotalMs     float64 `json:"total_ms"`
	Candidates  int     `json:"candidates"`
	Evaluated   int     `json:"evaluated"`
	Returned    int     `json:"returned"`
	Normalized  int     `json:"coercion_normalized"`
	Short       int     `json:"coercion_short"`
	Skipped     int     `json:"coercion_skipped"`
}

// Flags are boolean facts about the response.
type Flags struct {
	BudgetHit       bool `json:"budget_hit"`
	ThrottleTimeout bool `json:"throttle_timeout"`
}
