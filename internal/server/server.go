// Package server publishes an update channel over HTTP: the manifest of a
// root directory plus the files it lists. It is the counterpart the
// launcher's sync engine talks to.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	gosync "sync"
	"time"

	"github.com/knsrhuseyin/crm-client-splash-update/internal/config"
	"github.com/knsrhuseyin/crm-client-splash-update/internal/manifest"
)

// filesPrefix is the URL path under which channel files are served.
const filesPrefix = "/files/"

// Server implements the update channel HTTP server
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	mu       gosync.RWMutex // guards current
	current  *manifest.Manifest
	rootDir  string
	announce string
}

// New creates an update channel server for the configured root directory
func New(cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		rootDir:  cfg.Serve.RootDir,
		announce: cfg.Serve.AdvertiseURL,
	}
}

// Refresh rehashes the root directory and swaps in the new manifest
func (s *Server) Refresh() error {
	m, err := manifest.Generate(s.rootDir)
	if err != nil {
		return fmt.Errorf("failed to build channel manifest: %w", err)
	}

	s.mu.Lock()
	s.current = m
	s.mu.Unlock()

	s.logger.Info("channel manifest built", "root", s.rootDir, "files", len(m.Files))
	return nil
}

// Start builds the channel manifest and serves it until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Refresh(); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              s.cfg.Serve.ListenAddr,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("update channel server starting", "addr", s.cfg.Serve.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down update channel server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler returns the HTTP handler serving the channel. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/manifest.json", s.handleManifest)
	mux.HandleFunc(filesPrefix, s.handleFile)
	return mux
}

// handleManifest serves the channel manifest with its download base URL
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.logger.Warn("rejecting non-GET manifest request", "method", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()
	if current == nil {
		http.Error(w, "Channel not ready", http.StatusServiceUnavailable)
		return
	}

	payload := manifest.Manifest{
		DownloadURL: s.downloadURL(r),
		Files:       current.Files,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(&payload); err != nil {
		s.logger.Error("failed to write manifest response", "error", err)
	}
}

// handleFile serves one channel file. Only paths listed in the current
// manifest are served, which also rules out any path traversal.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.logger.Warn("rejecting non-GET file request", "method", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	relPath := path.Clean(strings.TrimPrefix(r.URL.Path, filesPrefix))

	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()
	if current == nil {
		http.Error(w, "Channel not ready", http.StatusServiceUnavailable)
		return
	}

	if _, known := current.Files[relPath]; !known {
		s.logger.Warn("rejecting request for unknown file", "path", relPath)
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	// http.ServeFile sets Content-Length, which the launcher relies on for
	// progress reporting
	http.ServeFile(w, r, filepath.Join(s.rootDir, filepath.FromSlash(relPath)))
}

// downloadURL returns the base URL clients should download files from,
// derived from the request host unless an advertise URL is configured
func (s *Server) downloadURL(r *http.Request) string {
	if s.announce != "" {
		return strings.TrimRight(s.announce, "/")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/files", scheme, r.Host)
}
