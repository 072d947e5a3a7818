package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbsearch/internal/domain"
)

type mockEmbedder struct {
	result     domain.EmbeddingResult
	err        error
	calls      int
	batchCalls int
	healthErr  error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = m.result.Embedding
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: m.result.PromptTokens * len(texts),
		TotalTokens:  m.result.TotalTokens * len(texts),
	}, nil
}

func (m *mockEmbedder) HealthCheck(_ context.Context) error { return m.healthErr }

// singleEmbedder has no native batch call.
type singleEmbedder struct {
	calls int
}

func (s *singleEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	s.calls++
	return domain.EmbeddingResult{Embedding: []float32{1}, TotalTokens: 2}, nil
}

func TestMeteredEmbedder_Embed(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 4,
		TotalTokens:  4,
	}}
	q := NewQuota("m-embed", 0, 0, ActionReject, zap.NewNop())
	m := NewMeteredEmbedder(inner, "m-embed", "model", q, zap.NewNop())

	res, err := m.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 3 || res.TotalTokens != 4 {
		t.Errorf("result = %+v", res)
	}
	if q.Used(Daily) != 4 {
		t.Errorf("quota used = %d, want 4", q.Used(Daily))
	}
}

func TestMeteredEmbedder_BatchEmbedRecordsTokens(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 2}, TotalTokens: 3}}
	q := NewQuota("m-batch", 1000, 0, ActionReject, zap.NewNop())
	m := NewMeteredEmbedder(inner, "m-batch", "model", q, zap.NewNop())

	res, err := m.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 || inner.batchCalls != 1 {
		t.Errorf("embeddings = %d, batch calls = %d", len(res.Embeddings), inner.batchCalls)
	}
	if q.Remaining(Daily) != 994 {
		t.Errorf("remaining = %d, want 994", q.Remaining(Daily))
	}
}

func TestMeteredEmbedder_QuotaRejects(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	q := NewQuota("m-reject", 10, 0, ActionReject, zap.NewNop())
	q.Record(context.Background(), 10)
	m := NewMeteredEmbedder(inner, "m-reject", "model", q, zap.NewNop())

	_, err := m.BatchEmbed(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected ErrEmbeddingQuotaExceeded, got %v", err)
	}
	if _, err := m.Embed(context.Background(), "a"); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected ErrEmbeddingQuotaExceeded, got %v", err)
	}
	if inner.calls != 0 || inner.batchCalls != 0 {
		t.Error("provider must not be called once the quota is spent")
	}
}

func TestMeteredEmbedder_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrEmbeddingProviderError}
	m := NewMeteredEmbedder(inner, "m-err", "model", nil, zap.NewNop())

	if _, err := m.BatchEmbed(context.Background(), []string{"a"}); !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if _, err := m.Embed(context.Background(), "a"); !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestMeteredEmbedder_EmptyBatch(t *testing.T) {
	inner := &mockEmbedder{}
	m := NewMeteredEmbedder(inner, "m-empty", "model", nil, nil)

	res, err := m.BatchEmbed(context.Background(), nil)
	if err != nil || res.Embeddings != nil {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
	if inner.batchCalls != 0 {
		t.Error("empty batch must not reach the provider")
	}
}

func TestMeteredEmbedder_FallsBackToSingleCalls(t *testing.T) {
	inner := &singleEmbedder{}
	q := NewQuota("m-single", 0, 0, ActionReject, zap.NewNop())
	m := NewMeteredEmbedder(inner, "m-single", "model", q, zap.NewNop())

	res, err := m.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 || inner.calls != 3 {
		t.Errorf("embeddings = %d, calls = %d", len(res.Embeddings), inner.calls)
	}
	if q.Used(Daily) != 6 {
		t.Errorf("used = %d, want 6", q.Used(Daily))
	}
}

func TestMeteredEmbedder_HealthCheck(t *testing.T) {
	inner := &mockEmbedder{healthErr: errors.New("down")}
	m := NewMeteredEmbedder(inner, "m-health", "model", nil, nil)
	if err := m.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected inner health error")
	}

	if err := NewMeteredEmbedder(&singleEmbedder{}, "p", "m", nil, nil).HealthCheck(context.Background()); err != nil {
		t.Fatalf("embedder without health check should be healthy, got %v", err)
	}
}
