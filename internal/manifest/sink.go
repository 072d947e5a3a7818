package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/domain/retrieval/manifest"
)

// Sink persists manifests keyed by response id.
type Sink interface {
	Write(ctx context.Context, responseID string, m *manifest.Manifest) (string, error)
}

// FileSink stores each manifest as <dir>/<response_id>.json.
type FileSink struct {
	dir string
}

// NewFileSink creates a sink rooted at dir. The directory is created on first write.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Dir returns the sink's root directory.
func (s *FileSink) Dir() string { return s.dir }

// Ready reports whether manifests can be published: the directory exists
// (or can be created) and accepts new files.
func (s *FileSink) Ready(_ context.Context) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	f, err := os.CreateTemp(s.dir, ".ready-*")
	if err != nil {
		return fmt.Errorf("manifest dir not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// Path returns where the manifest for responseID lives.
func (s *FileSink) Path(responseID string) (string, error) {
	if err := validateID(responseID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, responseID+".json"), nil
}

// Write stores m atomically: it is written to a temp file in the same
// directory, synced, and then linked into place. An existing manifest for
// the same response id is never overwritten.
func (s *FileSink) Write(_ context.Context, responseID string, m *manifest.Manifest) (string, error) {
	path, err := s.Path(responseID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return path, fmt.Errorf("marshal manifest: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return path, fmt.Errorf("create manifest dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return path, domain.ErrManifestExists
	}

	tmp, err := os.CreateTemp(s.dir, "."+responseID+".*.tmp")
	if err != nil {
		return path, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return path, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return path, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return path, fmt.Errorf("close temp file: %w", err)
	}

	// Link fails when path exists, which makes the publish step no-clobber.
	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return path, domain.ErrManifestExists
		}
		return path, fmt.Errorf("publish manifest: %w", err)
	}
	syncDir(s.dir)
	return path, nil
}

// Read loads the manifest for responseID.
func (s *FileSink) Read(_ context.Context, responseID string) (*manifest.Manifest, error) {
	path, err := s.Path(responseID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("manifest %q: %w", responseID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

func validateID(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return fmt.Errorf("%w: response id %q", domain.ErrInvalidRequest, id)
	case strings.ContainsAny(id, `/\`+"\x00"), strings.ContainsRune(id, filepath.Separator):
		return fmt.Errorf("%w: response id %q contains a path separator", domain.ErrInvalidRequest, id)
	}
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
