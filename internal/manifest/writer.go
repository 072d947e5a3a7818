package manifest

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/event"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/manifest"
	"github.com/kailas-cloud/kbsearch/internal/logger"
	"github.com/kailas-cloud/kbsearch/internal/metrics"
)

// Writer persists manifests through a Sink and reports the result.
type Writer struct {
	sink   Sink
	events logger.Events
}

// NewWriter creates a manifest writer.
func NewWriter(sink Sink, l *zap.Logger) *Writer {
	return &Writer{sink: sink, events: logger.NewEvents(l)}
}

// Write persists m and returns its location. Any failure is returned as a
// *domain.ManifestWriteError.
func (w *Writer) Write(ctx context.Context, slug string, m *manifest.Manifest) (string, error) {
	path, err := w.sink.Write(ctx, m.ResponseID, m)
	if err != nil {
		metrics.ManifestWritesTotal.WithLabelValues("error").Inc()
		w.events.Error(event.ManifestFailed,
			zap.String("slug", slug),
			zap.String("response_id", m.ResponseID),
			zap.String("path", path),
			zap.Error(err),
		)
		return "", domain.NewManifestWriteError(slug, m.ResponseID, path, err)
	}

	metrics.ManifestWritesTotal.WithLabelValues("ok").Inc()
	w.events.Info(event.ManifestWritten,
		zap.String("slug", slug),
		zap.String("response_id", m.ResponseID),
		zap.String("path", path),
		zap.Int("evidence", len(m.Evidence)),
	)
	return path, nil
}
