// Package launcher starts the downstream client executable once the
// installed files are up to date.
package launcher

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/knsrhuseyin/crm-client-splash-update/internal/config"
)

// Launcher starts the configured client executable
type Launcher struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a launcher for the given configuration
func New(cfg *config.Config, logger *slog.Logger) *Launcher {
	return &Launcher{cfg: cfg, logger: logger}
}

// ExecutablePath resolves the client executable path. Relative paths are
// resolved against the install directory.
func (l *Launcher) ExecutablePath() string {
	exe := l.cfg.Client.Executable
	if exe == "" || filepath.IsAbs(exe) {
		return exe
	}
	return filepath.Join(l.cfg.Paths.InstallDir, filepath.FromSlash(exe))
}

// Launch starts the client detached and returns without waiting for it to
// exit. The launcher's own lifetime is independent of the client's.
func (l *Launcher) Launch() error {
	if l.cfg.Client.Executable == "" {
		return fmt.Errorf("client.executable is not configured")
	}

	exePath := l.ExecutablePath()
	if _, err := os.Stat(exePath); err != nil {
		return fmt.Errorf("client executable not found at %s: %w", exePath, err)
	}

	cmd := exec.Command(exePath, l.cfg.Client.Args...)
	cmd.Dir = l.cfg.Paths.InstallDir
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}

	l.logger.Info("client started", "executable", exePath, "pid", cmd.Process.Pid)

	// Detach: the client keeps running after the launcher exits
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("failed to detach from client process: %w", err)
	}

	return nil
}
