package candidate

import (
	"context"
	"fmt"

	domcand "github.com/kailas-cloud/kbsearch/internal/domain/retrieval/candidate"
)

// store is the consumer interface for stored chunks (ISP).
type store interface {
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// Repo implements usecase/retrieval.CandidateSource over Redis.
//
// Layout (written by the ingestion pipeline):
//
//	<prefix>kb:<db>:<slug>:<scope>:chunks  sorted set of chunk ids scored by ingestion time
//	<prefix>chunk:<id>                     hash: content, metadata, source_id, chunks, embedding
type Repo struct {
	store  store
	prefix string
}

// New creates a candidate repository. prefix namespaces every key.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Fetch returns up to req.Limit chunks of the scope, most recent first.
// Chunks whose hash has disappeared since they were indexed are dropped.
func (r *Repo) Fetch(ctx context.Context, req domcand.FetchRequest) ([]domcand.Candidate, error) {
	if req.Limit <= 0 {
		return nil, nil
	}

	setKey := r.scopeKey(req.DB, req.Slug, req.Scope)
	ids, err := r.store.ZRevRange(ctx, setKey, 0, int64(req.Limit-1))
	if err != nil {
		return nil, fmt.Errorf("list chunks %s: %w", setKey, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.chunkKey(id)
	}
	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load chunks %s: %w", setKey, err)
	}

	out := make([]domcand.Candidate, 0, len(ids))
	for i, fields := range hashes {
		if len(fields) == 0 {
			continue
		}
		out = append(out, parseChunkHash(ids[i], fields))
	}
	return out, nil
}

func (r *Repo) scopeKey(db, slug, scope string) string {
	return r.prefix + "kb:" + db + ":" + slug + ":" + scope + ":chunks"
}

func (r *Repo) chunkKey(id string) string {
	return r.prefix + "chunk:" + id
}
