package vector

import (
	"context"
	"errors"
	"iter"
	"math"
	"slices"
	"testing"

	"github.com/kailas-cloud/kbsearch/internal/domain"
)

type mockBatchEmbedder struct {
	result domain.BatchEmbeddingResult
	err    error
	texts  []string
}

func (m *mockBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.texts = texts
	return m.result, m.err
}

func seq[T any](vals ...T) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, v := range vals {
			if !yield(v) {
				return
			}
		}
	}
}

func TestMaterialize_Shapes(t *testing.T) {
	want := []float64{1, 2, 3}
	tests := []struct {
		name string
		raw  any
	}{
		{"float32 batch", [][]float32{{1, 2, 3}, {9, 9, 9}}},
		{"float64 batch", [][]float64{{1, 2, 3}}},
		{"float32", []float32{1, 2, 3}},
		{"float64", []float64{1, 2, 3}},
		{"ints", []int{1, 2, 3}},
		{"any numbers", []any{1.0, float32(2), 3}},
		{"any nested", []any{[]any{1.0, 2.0, 3.0}, []any{4.0}}},
		{"seq float64", seq(1.0, 2.0, 3.0)},
		{"seq float32", seq[float32](1, 2, 3)},
		{"embedding result", domain.EmbeddingResult{Embedding: []float32{1, 2, 3}}},
		{"batch result", domain.BatchEmbeddingResult{Embeddings: [][]float32{{1, 2, 3}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Materialize(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, want) {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}
}

func TestMaterialize_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  any
	}{
		{"nil", nil},
		{"empty batch", [][]float32{}},
		{"empty row", [][]float32{{}}},
		{"empty slice", []float64{}},
		{"unsupported", "not a vector"},
		{"bad component", []any{1.0, "x"}},
		{"nan", []float64{1, math.NaN()}},
		{"inf", []float64{math.Inf(1)}},
		{"empty batch result", domain.BatchEmbeddingResult{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Materialize(tt.raw)
			if !errors.Is(err, domain.ErrEmbedFailed) {
				t.Fatalf("expected ErrEmbedFailed, got %v", err)
			}
		})
	}
}

func TestMaterialize_EmptyIsDistinguishable(t *testing.T) {
	for _, raw := range []any{nil, [][]float32{}, []float64{}, domain.BatchEmbeddingResult{}, []any{}} {
		if _, err := Materialize(raw); !errors.Is(err, ErrEmptyVector) {
			t.Errorf("%T: expected ErrEmptyVector, got %v", raw, err)
		}
	}
	if _, err := Materialize("nope"); errors.Is(err, ErrEmptyVector) {
		t.Error("unsupported input must not look empty")
	}
}

func TestMaterialize_DoesNotAliasInput(t *testing.T) {
	in := []float64{1, 2}
	got, err := Materialize(in)
	if err != nil {
		t.Fatal(err)
	}
	got[0] = 42
	if in[0] != 1 {
		t.Error("Materialize must copy its input")
	}
}

func TestMaterializeQuery(t *testing.T) {
	e := &mockBatchEmbedder{result: domain.BatchEmbeddingResult{Embeddings: [][]float32{{0.5, 0.25}}}}

	vec, _, err := MaterializeQuery(context.Background(), e, "termination clause")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(vec, []float64{0.5, 0.25}) {
		t.Errorf("got %v", vec)
	}
	if len(e.texts) != 1 || e.texts[0] != "termination clause" {
		t.Errorf("provider got %v", e.texts)
	}
}

func TestMaterializeQuery_ProviderError(t *testing.T) {
	cause := errors.New("provider down")
	e := &mockBatchEmbedder{err: cause}

	_, _, err := MaterializeQuery(context.Background(), e, "q")
	if !errors.Is(err, domain.ErrEmbedFailed) {
		t.Errorf("expected ErrEmbedFailed, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected the provider error to be kept, got %v", err)
	}
}

func TestMaterializeQuery_EmptyResponse(t *testing.T) {
	e := &mockBatchEmbedder{}

	_, _, err := MaterializeQuery(context.Background(), e, "q")
	if !errors.Is(err, domain.ErrEmbedFailed) || !errors.Is(err, ErrEmptyVector) {
		t.Errorf("expected ErrEmbedFailed and ErrEmptyVector, got %v", err)
	}
}
