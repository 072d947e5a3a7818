// Package manifest builds and persists the explainability record of a search
// response.
package manifest

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/candidate"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/manifest"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/query"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/result"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/throttle"
	"github.com/kailas-cloud/kbsearch/internal/retrieval/vector"
)

// Timings are the stage durations captured during a search.
type Timings struct {
	Embed     time.Duration
	Fetch     time.Duration
	ScoreSort time.Duration
	Total     time.Duration
}

// Input is everything Build needs to describe one response.
type Input struct {
	Params         *query.Params
	Settings       *throttle.Settings
	LatencyBudget  time.Duration
	EmbeddingModel string
	Results        []result.Result
	Timings        Timings
	Candidates     int
	Evaluated      int
	Stats          vector.Stats

	BudgetHit       bool
	ThrottleTimeout bool

	GeneratedAt time.Time
}

// Build assembles the manifest. Equal inputs produce equal manifests: evidence
// keeps the ranked order, lineage refs are deduplicated and sorted, and
// timings are rounded to microsecond precision.
func Build(in Input) manifest.Manifest {
	p := in.Params
	if p == nil {
		p = &query.Params{}
	}

	m := manifest.Manifest{
		Version:     manifest.Version,
		ResponseID:  p.ResponseID,
		GeneratedAt: in.GeneratedAt.UTC().Format(time.RFC3339Nano),
		Query:       p.Text(),
		Retriever: manifest.Retriever{
			DB:              p.DB,
			Slug:            p.Slug,
			Scope:           p.Scope,
			K:               p.K,
			CandidateLimit:  p.Limit(),
			LatencyBudgetMs: in.LatencyBudget.Milliseconds(),
		},
		Models:   manifest.Models{Embedding: in.EmbeddingModel},
		Evidence: make([]manifest.Evidence, 0, len(in.Results)),
		Metrics: manifest.Metrics{
			EmbedMs:     millis(in.Timings.Embed),
			FetchMs:     millis(in.Timings.Fetch),
			ScoreSortMs: millis(in.Timings.ScoreSort),
			TotalMs:     millis(in.Timings.Total),
			Candidates:  in.Candidates,
			Evaluated:   in.Evaluated,
			Returned:    len(in.Results),
			Normalized:  in.Stats.Normalized,
			Short:       in.Stats.Short,
			Skipped:     in.Stats.Skipped,
		},
		Flags: manifest.Flags{
			BudgetHit:       in.BudgetHit,
			ThrottleTimeout: in.ThrottleTimeout,
		},
	}

	if in.Settings.Active() {
		m.Retriever.Throttle = &manifest.Throttle{
			Parallelism:         in.Settings.EffectiveParallelism(),
			SleepMsBetweenCalls: in.Settings.SleepMsBetweenCalls,
			AcquireTimeoutMs:    in.Settings.AcquireTimeoutMs,
		}
	}

	refs := make([]candidate.Ref, 0, len(in.Results))
	for i := range in.Results {
		r := &in.Results[i]
		ref := r.Lineage().Resolve()
		m.Evidence = append(m.Evidence, manifest.Evidence{
			Rank:     i + 1,
			Score:    r.Score(),
			ID:       r.ID(),
			SourceID: ref.SourceID,
			ChunkID:  ref.ChunkID,
			Path:     ref.Path,
			Content:  r.Content(),
			Metadata: r.Metadata(),
		})
		refs = append(refs, ref)
	}
	m.LineageRefs = sortRefs(refs)

	return m
}

func sortRefs(refs []candidate.Ref) []candidate.Ref {
	slices.SortFunc(refs, func(a, b candidate.Ref) int {
		return cmp.Or(
			cmp.Compare(a.SourceID, b.SourceID),
			cmp.Compare(a.ChunkID, b.ChunkID),
			cmp.Compare(a.Path, b.Path),
		)
	})
	return slices.Compact(refs)
}

func millis(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Microsecond)) / 1000
}
