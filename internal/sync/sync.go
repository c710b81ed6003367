// Package sync orchestrates one update pass: fetch the remote manifest,
// diff it against the installed files, download what is missing or stale,
// and persist the manifest as the new last-known-good state.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	gosync "sync"

	"github.com/knsrhuseyin/crm-client-splash-update/internal/config"
	"github.com/knsrhuseyin/crm-client-splash-update/internal/manifest"
	"github.com/knsrhuseyin/crm-client-splash-update/internal/remote"
)

// manifestLabel is the progress label reported during the manifest phase.
const manifestLabel = "manifest"

// ErrPassInProgress is returned when Run is invoked while another pass is
// still running. Callers serialize passes; overlapping retries are a caller
// bug, not a supported mode.
var ErrPassInProgress = fmt.Errorf("a sync pass is already in progress")

// Engine orchestrates the sync process
type Engine struct {
	cfg      *config.Config
	remote   remote.Client
	store    *manifest.Store
	logger   *slog.Logger
	progress remote.ProgressFunc
	dryRun   bool

	mu      gosync.Mutex // guards running
	running bool
}

// NewEngine creates a new sync engine. onProgress may be nil.
func NewEngine(cfg *config.Config, remoteClient remote.Client, store *manifest.Store, logger *slog.Logger, onProgress remote.ProgressFunc, dryRun bool) *Engine {
	return &Engine{
		cfg:      cfg,
		remote:   remoteClient,
		store:    store,
		logger:   logger,
		progress: onProgress,
		dryRun:   dryRun,
	}
}

// Run executes one complete sync pass. Recoverable network and protocol
// failures end the pass in StateError inside the Outcome; local filesystem
// failures are fatal and returned as a non-nil error. Run is re-invokable:
// a failed pass leaves the local manifest untouched, so a later pass
// recomputes the full diff against unchanged state.
func (e *Engine) Run(ctx context.Context) (*Outcome, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrPassInProgress
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.logger.Info("starting sync pass",
		"manifest_url", e.cfg.Server.ManifestURL,
		"install_dir", e.cfg.Paths.InstallDir)
	e.report(0, manifestLabel)

	// Fetch the authoritative manifest
	remoteManifest, err := e.remote.FetchManifest(ctx, e.cfg.Server.ManifestURL)
	if err != nil {
		e.logger.Warn("manifest fetch failed", "error", err)
		return &Outcome{State: StateError, Err: err}, nil
	}
	e.logger.Info("manifest fetched", "files", len(remoteManifest.Files))

	// Load local state. The loaded digests are not consulted during the
	// diff (local files are always rehashed against the remote manifest),
	// but the forgiving load keeps first runs and corrupt state identical.
	localManifest := e.store.Load()
	e.logger.Debug("local manifest loaded", "path", e.store.Path(), "files", len(localManifest.Files))

	// Diff installed files against the remote manifest
	toDownload, err := Diff(e.cfg.Paths.InstallDir, remoteManifest)
	if err != nil {
		return nil, fmt.Errorf("failed to diff local files: %w", err)
	}
	e.logger.Info("diff computed", "stale", len(toDownload), "total", len(remoteManifest.Files))

	// check for dry-run mode
	if e.dryRun {
		for _, relPath := range toDownload {
			e.logger.Info("[dry-run] would download", "path", relPath)
		}
		e.logger.Info("dry-run complete, no changes applied")
		return &Outcome{State: StateDone, Updated: toDownload}, nil
	}

	// Download missing or stale files
	if len(toDownload) > 0 {
		if err := e.remote.DownloadAll(ctx, remoteManifest, toDownload, e.cfg.Paths.InstallDir, e.progress); err != nil {
			e.logger.Warn("download failed", "error", err)
			return &Outcome{State: StateError, Err: err}, nil
		}
	}

	// Persist the remote manifest wholesale as the new last-known-good
	if err := e.store.Save(remoteManifest); err != nil {
		return nil, fmt.Errorf("failed to persist manifest: %w", err)
	}

	e.report(100, manifestLabel)
	e.logger.Info("sync pass completed", "updated", len(toDownload))

	return &Outcome{State: StateDone, Updated: toDownload}, nil
}

// report invokes the progress sink when one is configured
func (e *Engine) report(percent int, label string) {
	if e.progress != nil {
		e.progress(percent, label)
	}
}

// Diff returns the remote manifest paths that are missing locally or whose
// content digest disagrees with the remote digest, in sorted path order.
// Files present locally but absent from the manifest are never flagged;
// there are no deletion semantics. Every candidate is rehashed, so the cost
// is proportional to the byte volume of all checked files.
func Diff(localDir string, remoteManifest *manifest.Manifest) ([]string, error) {
	toDownload := make([]string, 0)

	for _, relPath := range remoteManifest.SortedPaths() {
		localPath := filepath.Join(localDir, filepath.FromSlash(relPath))

		if _, err := os.Stat(localPath); err != nil {
			if os.IsNotExist(err) {
				toDownload = append(toDownload, relPath)
				continue
			}
			return nil, fmt.Errorf("failed to stat %s: %w", localPath, err)
		}

		digest, err := manifest.FileDigest(localPath)
		if err != nil {
			return nil, err
		}
		if digest != remoteManifest.Files[relPath] {
			toDownload = append(toDownload, relPath)
		}
	}

	return toDownload, nil
}
