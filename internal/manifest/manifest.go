// Package manifest defines the file manifest exchanged with the update
// server and the local last-known-good copy persisted between runs.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// digestChunkSize bounds memory use when hashing large files.
const digestChunkSize = 64 * 1024

// Manifest describes a deployable file set: relative forward-slash paths
// mapped to their SHA-256 hex digests. DownloadURL is only present on
// manifests fetched from the server.
type Manifest struct {
	DownloadURL string            `json:"download_url,omitempty"`
	Files       map[string]string `json:"files"`
}

// New returns an empty manifest
func New() *Manifest {
	return &Manifest{Files: make(map[string]string)}
}

// SortedPaths returns the manifest's file paths in lexical order.
// The diff and download stages iterate in this order so that progress
// reporting is deterministic across passes.
func (m *Manifest) SortedPaths() []string {
	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// FileURL returns the download URL for a relative path
func (m *Manifest) FileURL(relPath string) string {
	return strings.TrimRight(m.DownloadURL, "/") + "/" + relPath
}

// FileDigest computes the SHA-256 hex digest of a file, streaming the
// content in fixed-size chunks
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	buf := make([]byte, digestChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Generate walks dir and builds a manifest covering every regular file,
// keyed by forward-slash relative path. Hidden files and directories
// (names starting with ".") are skipped.
func Generate(dir string) (*Manifest, error) {
	m := New()

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip hidden files and directories (e.g. .git, .gitignore)
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		digest, err := FileDigest(path)
		if err != nil {
			return err
		}

		m.Files[filepath.ToSlash(relPath)] = digest
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	return m, nil
}
