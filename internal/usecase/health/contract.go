package health

import "context"

// DBPinger checks candidate store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// ManifestChecker checks that manifests can be published.
type ManifestChecker interface {
	Ready(ctx context.Context) error
}
