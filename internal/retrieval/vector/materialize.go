// Package vector turns provider responses and stored embeddings into dense
// float64 vectors the ranker can score.
package vector

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"time"

	"github.com/kailas-cloud/kbsearch/internal/domain"
)

// ErrEmptyVector reports a provider response that carried no vector at all.
// It is always wrapped together with domain.ErrEmbedFailed.
var ErrEmptyVector = errors.New("empty embedding")

// Materialize converts an embedding provider response into a single vector.
// Two-dimensional inputs (batches) yield their first row. The result is
// never empty; anything that cannot produce a finite, non-empty vector
// fails with domain.ErrEmbedFailed, and an absent or empty vector also
// matches ErrEmptyVector.
func Materialize(raw any) ([]float64, error) {
	vec, err := materialize(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedFailed, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedFailed, ErrEmptyVector)
	}
	for i, f := range vec {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite component at %d", domain.ErrEmbedFailed, i)
		}
	}
	return vec, nil
}

func materialize(raw any) ([]float64, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case domain.EmbeddingResult:
		return fromFloat32(v.Embedding), nil
	case *domain.EmbeddingResult:
		if v == nil {
			return nil, nil
		}
		return fromFloat32(v.Embedding), nil
	case domain.BatchEmbeddingResult:
		return firstRow(v.Embeddings)
	case *domain.BatchEmbeddingResult:
		if v == nil {
			return nil, nil
		}
		return firstRow(v.Embeddings)
	case [][]float32:
		return firstRow(v)
	case [][]float64:
		if len(v) == 0 {
			return nil, nil
		}
		return clone(v[0]), nil
	case []float32:
		return fromFloat32(v), nil
	case []float64:
		return clone(v), nil
	case []int:
		out := make([]float64, len(v))
		for i, n := range v {
			out[i] = float64(n)
		}
		return out, nil
	case iter.Seq[float64]:
		var out []float64
		for f := range v {
			out = append(out, f)
		}
		return out, nil
	case iter.Seq[float32]:
		var out []float64
		for f := range v {
			out = append(out, float64(f))
		}
		return out, nil
	case []any:
		if len(v) == 0 {
			return nil, nil
		}
		// A nested first element means a batch.
		if _, nested := v[0].([]any); nested {
			return materialize(v[0])
		}
		if _, nested := v[0].([]float64); nested {
			return materialize(v[0])
		}
		if _, nested := v[0].([]float32); nested {
			return materialize(v[0])
		}
		return fromAny(v)
	default:
		return nil, fmt.Errorf("unsupported embedding type %T", raw)
	}
}

// MaterializeQuery embeds text through the provider and converts the response.
// The returned duration covers the provider call only.
func MaterializeQuery(ctx context.Context, e domain.BatchEmbedder, text string) ([]float64, time.Duration, error) {
	start := time.Now()
	res, err := e.BatchEmbed(ctx, []string{text})
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, fmt.Errorf("%w: %w", domain.ErrEmbedFailed, err)
	}
	vec, err := Materialize(res)
	if err != nil {
		return nil, elapsed, err
	}
	return vec, elapsed, nil
}

func firstRow(rows [][]float32) ([]float64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	return fromFloat32(rows[0]), nil
}

func fromFloat32(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func fromAny(v []any) ([]float64, error) {
	out := make([]float64, len(v))
	for i, x := range v {
		f, ok := number(x)
		if !ok {
			return nil, fmt.Errorf("component %d: unsupported type %T", i, x)
		}
		out[i] = f
	}
	return out, nil
}

func number(x any) (float64, bool) {
	switch n := x.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
