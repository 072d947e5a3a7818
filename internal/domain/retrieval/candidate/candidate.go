// Package candidate describes stored chunks eligible for ranking.
package candidate

// Chunk is one lineage entry of a stored candidate.
type Chunk struct {
	ChunkID string `json:"chunk_id"`
	Path    string `json:"path,omitempty"`
}

// Lineage links a candidate back to the source document it was cut from.
type Lineage struct {
	SourceID string  `json:"source_id"`
	Chunks   []Chunk `json:"chunks,omitempty"`
}

// Ref is the resolved lineage of a single piece of evidence.
type Ref struct {
	SourceID string `json:"source_id"`
	ChunkID  string `json:"chunk_id,omitempty"`
	Path     string `json:"path,omitempty"`
}

// Resolve returns the primary lineage reference: the source plus the first chunk.
func (l Lineage) Resolve() Ref {
	ref := Ref{SourceID: l.SourceID}
	if len(l.Chunks) > 0 {
		ref.ChunkID = l.Chunks[0].ChunkID
		ref.Path = l.Chunks[0].Path
	}
	return ref
}

// Candidate is a read-only snapshot of one stored chunk.
type Candidate struct {
	ID       string
	Content  string
	Metadata map[string]any
	Lineage  Lineage
	// Embedding is the persisted vector as stored. It may be malformed.
	Embedding any
}

// FetchRequest selects the candidates of one knowledge-base scope.
type FetchRequest struct {
	DB    string
	Slug  string
	Scope string
	Limit int
}
