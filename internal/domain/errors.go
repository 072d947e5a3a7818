package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest signals a malformed request that never reached the retriever.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingQuotaExceeded signals that the embedding token quota is spent.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbedFailed signals that the query could not be turned into a vector.
	ErrEmbedFailed = errors.New("embed failed")
	// ErrCandidateFetch signals a candidate source failure.
	ErrCandidateFetch = errors.New("candidate fetch failed")
	// ErrManifestWrite signals that a manifest could not be persisted.
	ErrManifestWrite = errors.New("manifest write failed")
	// ErrManifestExists signals a second write for the same response id.
	ErrManifestExists = errors.New("manifest already exists")
)

// ManifestWriteError wraps ErrManifestWrite with the context operators need
// to locate the lost audit record.
type ManifestWriteError struct {
	Slug       string
	ResponseID string
	Path       string
	Err        error
}

func (e *ManifestWriteError) Error() string {
	return fmt.Sprintf("%s: slug=%s response_id=%s path=%s: %v",
		ErrManifestWrite.Error(), e.Slug, e.ResponseID, e.Path, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is.
func (e *ManifestWriteError) Unwrap() []error { return []error{ErrManifestWrite, e.Err} }

// NewManifestWriteError creates a manifest write error.
func NewManifestWriteError(slug, responseID, path string, err error) error {
	return &ManifestWriteError{Slug: slug, ResponseID: responseID, Path: path, Err: err}
}
