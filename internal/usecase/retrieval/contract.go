package retrieval

import (
	"context"
	"time"

	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/candidate"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/manifest"
	settingspkg "github.com/kailas-cloud/kbsearch/internal/domain/retrieval/throttle"
	"github.com/kailas-cloud/kbsearch/internal/throttle"
)

// CandidateSource returns up to Limit candidates in a deterministic order
// (most recent first). Fetching has no side effects.
type CandidateSource interface {
	Fetch(ctx context.Context, req candidate.FetchRequest) ([]candidate.Candidate, error)
}

// Embedder vectorizes the query text.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Gate bounds concurrent searches per key and paces their dispatch.
type Gate interface {
	Guard(ctx context.Context, key string, s *settingspkg.Settings, deadline time.Time) *throttle.Lease
}

// ManifestWriter persists the explainability record of a response.
type ManifestWriter interface {
	Write(ctx context.Context, slug string, m *manifest.Manifest) (string, error)
}
