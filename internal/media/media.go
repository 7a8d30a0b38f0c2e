// Package media writes anomaly snapshot images under the configured
// media root.
package media

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const snapshotDirPerm = 0o755

// Store writes snapshots below a base directory.
type Store struct {
	root string
}

// NewStore creates a snapshot store rooted at root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// SaveSnapshot decodes a base64 image and writes it to
// <root>/snapshots/anomaly_events/<episode>/<phase>-<camera>-<ts>.<ext>,
// returning the written path.
func (s *Store) SaveSnapshot(episode, phase, cameraID string, tsMs int64, ext, imageB64 string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(imageB64)
	if err != nil {
		return "", fmt.Errorf("decoding snapshot image: %w", err)
	}

	ext = sanitize(strings.TrimPrefix(ext, "."))
	if ext == "" {
		ext = "jpg"
	}

	dir := filepath.Join(s.root, "snapshots", "anomaly_events", sanitize(episode))
	if err := os.MkdirAll(dir, snapshotDirPerm); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s-%d.%s", sanitize(phase), sanitize(cameraID), tsMs, ext)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	return path, nil
}

// sanitize keeps identifiers from external payloads out of path traversal.
// Separators and NUL are replaced, and a bare ".." segment is neutralized
// so a crafted identifier cannot climb out of the snapshot root.
func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, s)
	if s == ".." || s == "." {
		return strings.ReplaceAll(s, ".", "_")
	}
	return s
}
