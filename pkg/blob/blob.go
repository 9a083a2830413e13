// Package blob resolves and stores local artifact references.
//
// Artifacts are addressed by opaque URIs; this package understands file://
// URIs and bare filesystem paths, which is all the device-side pipeline
// produces.
package blob

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"voicenotes/pkg/domain"
)

// PathFromURI converts an artifact URI into a filesystem path.
func PathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		// Bare path.
		return uri, nil
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported artifact scheme %q", u.Scheme)
	}
	return u.Path, nil
}

// Open opens the artifact bytes behind a URI. A missing file maps to
// *domain.AudioNotFoundError so the orchestrator classifies it as fatal.
func Open(uri string) (io.ReadCloser, error) {
	path, err := PathFromURI(uri)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.AudioNotFoundError{URI: uri, Err: err}
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

// Store writes session artifacts under a per-session folder, mirroring the
// recorder's layout: <root>/<sessionId>/<name>.
type Store struct {
	Root string
}

// Save writes one artifact and returns its file:// URI.
func (s *Store) Save(sessionID, name string, data []byte) (string, error) {
	dir := filepath.Join(s.Root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session folder: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return "file://" + path, nil
}
