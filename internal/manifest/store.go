package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Store persists the last-known-good manifest at a fixed local path.
type Store struct {
	path string
}

// NewStore creates a store bound to the given manifest file path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the local manifest file path
func (s *Store) Path() string {
	return s.path
}

// Load reads the local manifest. A missing or unparseable file yields the
// default empty manifest: stale local state must never block startup, and
// a fresh install has no manifest at all.
func (s *Store) Load() *Manifest {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return New()
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return New()
	}
	if m.Files == nil {
		m.Files = make(map[string]string)
	}

	return &m
}

// Save replaces the local manifest wholesale. Only the files map is
// persisted; the server's download URL is transient per pass. The write
// goes through a temp file and rename so a crash cannot leave a truncated
// file that parses as valid.
func (s *Store) Save(m *Manifest) error {
	data, err := json.MarshalIndent(&Manifest{Files: m.Files}, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, ".manifest-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, s.path)
}
