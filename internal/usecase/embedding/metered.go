package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbsearch/internal/domain"
)

// QuotaChecker is the quota surface the metered embedder needs.
type QuotaChecker interface {
	Check(ctx context.Context) error
	Record(ctx context.Context, tokens int64)
}

// MeteredEmbedder checks the token quota before each provider call and
// records the tokens spent. Transport metrics live in transport/openai; cache
// hits never reach this layer when it sits under the cache.
type MeteredEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	quota    QuotaChecker
	logger   *zap.Logger
}

// NewMeteredEmbedder wraps inner. quota can be nil.
func NewMeteredEmbedder(inner domain.Embedder, provider, model string, quota QuotaChecker, logger *zap.Logger) *MeteredEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeteredEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		quota:    quota,
		logger:   logger,
	}
}

// Embed implements domain.Embedder.
func (m *MeteredEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := m.check(ctx, 1); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	res, err := m.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	m.record(ctx, res.PromptTokens, res.TotalTokens, 1, time.Since(start))
	return res, nil
}

// BatchEmbed implements domain.BatchEmbedder.
func (m *MeteredEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	if err := m.check(ctx, len(texts)); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	start := time.Now()
	res, err := domain.AsBatch(m.inner).BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}

	m.record(ctx, res.PromptTokens, res.TotalTokens, len(texts), time.Since(start))
	return res, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (m *MeteredEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := m.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (m *MeteredEmbedder) check(ctx context.Context, inputs int) error {
	if m.quota == nil {
		return nil
	}
	if err := m.quota.Check(ctx); err != nil {
		m.logger.Warn("Embedding refused by quota",
			zap.String("provider", m.provider),
			zap.String("model", m.model),
			zap.Int("inputs", inputs),
			zap.Error(err),
		)
		return fmt.Errorf("quota check: %w", err)
	}
	return nil
}

func (m *MeteredEmbedder) record(ctx context.Context, promptTokens, totalTokens, inputs int, d time.Duration) {
	if m.quota != nil && totalTokens > 0 {
		m.quota.Record(ctx, int64(totalTokens))
	}
	m.logger.Debug("Embedding completed",
		zap.String("provider", m.provider),
		zap.String("model", m.model),
		zap.Int("inputs", inputs),
		zap.Duration("duration", d),
		zap.Int("prompt_tokens", promptTokens),
		zap.Int("total_tokens", totalTokens),
	)
}
