package candidate

import (
	"encoding/json"

	domcand "github.com/kailas-cloud/kbsearch/internal/domain/retrieval/candidate"
)

// Hash field names of a stored chunk.
const (
	fieldContent   = "content"
	fieldMetadata  = "metadata"
	fieldSourceID  = "source_id"
	fieldChunks    = "chunks"
	fieldEmbedding = "embedding"
)

// parseChunkHash converts a chunk hash into a candidate. Malformed metadata or
// lineage is dropped; the embedding is passed through untouched and judged
// later by the ranker.
func parseChunkHash(id string, m map[string]string) domcand.Candidate {
	c := domcand.Candidate{
		ID:      id,
		Content: m[fieldContent],
		Lineage: domcand.Lineage{SourceID: m[fieldSourceID]},
	}

	if raw := m[fieldMetadata]; raw != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(raw), &meta); err == nil {
			c.Metadata = meta
		}
	}

	if raw := m[fieldChunks]; raw != "" {
		var chunks []domcand.Chunk
		if err := json.Unmarshal([]byte(raw), &chunks); err == nil {
			c.Lineage.Chunks = chunks
		}
	}

	if raw, ok := m[fieldEmbedding]; ok {
		c.Embedding = raw
	}

	return c
}
